package discord

import (
	"context"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/format"
	"github.com/blockrelay/blockrelay/internal/linking"
	"github.com/bwmarrin/discordgo"
)

const (
	linkButtonID    = "link"
	linkModalID     = "link"
	linkCodeInputID = "code"
)

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := b.handlerContext()
	defer cancel()

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID == linkButtonID {
			b.openLinkModal(ctx, i.Interaction)
		}
	case discordgo.InteractionModalSubmit:
		if i.ModalSubmitData().CustomID == linkModalID {
			b.submitLinkCode(ctx, i.Interaction)
		}
	}
}

func (b *Bot) openLinkModal(ctx context.Context, i *discordgo.Interaction) {
	err := b.api.InteractionRespond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: linkModalID,
			Title:    "Discord Account Linking",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    linkCodeInputID,
						Label:       "Link Code",
						Style:       discordgo.TextInputShort,
						Placeholder: "ABC123",
						Required:    true,
						MinLength:   linking.CodeLength,
						MaxLength:   linking.CodeLength,
					},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Warn("link_modal_failed", "error", err)
	}
}

func (b *Bot) submitLinkCode(ctx context.Context, i *discordgo.Interaction) {
	user := interactionUser(i)
	if user == nil {
		return
	}

	code := modalValue(i.ModalSubmitData(), linkCodeInputID)
	if code == "" {
		b.respondEphemeral(ctx, i, "Please provide a link code!")
		return
	}

	err := b.api.InteractionRespond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Warn("link_defer_failed", "user_id", user.ID, "error", err)
		return
	}

	result := b.linker.Submit(ctx, user.ID, code)
	_, err = b.api.FollowupMessageCreate(ctx, i, &discordgo.WebhookParams{
		Content: result.Message,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		b.logger.Warn("link_followup_failed", "user_id", user.ID, "error", err)
	}

	if result.Outcome != linking.Linked {
		return
	}
	b.finishLink(ctx, i, user.ID, result.Account)
	if b.events != nil {
		b.events.DiscordLinked(ctx, result)
	}
}

// finishLink replaces the link announcement with a welcome and grants the linked role
func (b *Bot) finishLink(ctx context.Context, i *discordgo.Interaction, userID string, account *domain.Account) {
	if i.Message != nil && account != nil {
		embeds := []*discordgo.MessageEmbed{{
			Description: format.Fill(b.messages.NewPlayer, "username", account.Nickname),
		}}
		components := []discordgo.MessageComponent{}
		edit := discordgo.NewMessageEdit(i.Message.ChannelID, i.Message.ID)
		edit.Embeds = &embeds
		edit.Components = &components
		if _, err := b.api.ChannelMessageEditComplex(ctx, edit); err != nil {
			b.logger.Warn("link_announcement_edit_failed", "message_id", i.Message.ID, "error", err)
		}
	} else {
		b.logger.Warn("link_announcement_missing", "user_id", userID)
	}

	if b.cfg.LinkedRoleID != "" {
		if err := b.api.GuildMemberRoleAdd(ctx, b.cfg.GuildID, userID, b.cfg.LinkedRoleID); err != nil {
			b.logger.Warn("linked_role_add_failed", "user_id", userID, "error", err)
		}
	}
	// Force the next membership check to see the new role
	b.members.cache.Delete(userID)
}

func (b *Bot) respondEphemeral(ctx context.Context, i *discordgo.Interaction, content string) {
	err := b.api.InteractionRespond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("interaction_response_failed", "error", err)
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
