package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/relay"
	"github.com/bwmarrin/discordgo"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	ctx, cancel := b.handlerContext()
	defer cancel()

	b.mu.Lock()
	b.selfID = r.User.ID
	b.selfName = r.User.Username
	b.selfAvatar = r.User.AvatarURL("")
	b.mu.Unlock()

	if ch, err := b.api.Channel(ctx, b.cfg.ChatChannelID); err != nil {
		b.logger.Error("chat_channel_lookup_failed", "channel_id", b.cfg.ChatChannelID, "error", err)
	} else {
		b.mu.Lock()
		b.channelName = ch.Name
		b.mu.Unlock()
	}

	deleted, err := b.webhooks.cleanup(ctx, r.User.ID)
	if err != nil {
		b.logger.Warn("webhook_cleanup_failed", "error", err)
	}

	if s != nil {
		if err := s.RequestGuildMembers(b.cfg.GuildID, "", 0, "", false); err != nil {
			b.logger.Warn("request_guild_members_failed", "error", err)
		}
	}

	b.logger.Info("discord_ready",
		"user", r.User.Username,
		"guild_id", b.cfg.GuildID,
		"stale_webhooks_deleted", deleted,
	)
}

func (b *Bot) onGuildMembersChunk(_ *discordgo.Session, c *discordgo.GuildMembersChunk) {
	if c.GuildID != b.cfg.GuildID {
		return
	}
	for _, m := range c.Members {
		b.members.update(m)
		b.mentions.Put(m)
	}
	b.logger.Debug("guild_members_chunk", "members", len(c.Members), "indexed_names", b.mentions.Len())
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.GuildID != b.cfg.GuildID {
		return
	}
	b.members.update(m.Member)
	b.mentions.Put(m.Member)
}

func (b *Bot) onGuildMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.GuildID != b.cfg.GuildID || m.User == nil {
		return
	}
	b.members.update(m.Member)
	b.mentions.Put(m.Member)

	if !b.members.hasLinkedRole(m.Member) && b.events != nil {
		ctx, cancel := b.handlerContext()
		defer cancel()
		b.events.DiscordMemberLost(ctx, m.User.ID)
	}
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.GuildID != b.cfg.GuildID || m.User == nil {
		return
	}
	b.members.remove(m.User.ID)
	b.mentions.Remove(m.User.ID)

	if b.events != nil {
		ctx, cancel := b.handlerContext()
		defer cancel()
		b.events.DiscordMemberLost(ctx, m.User.ID)
	}
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(m.Message, false)
}

// onMessageUpdate relays edits. Updates without an edit timestamp are embed unfurls.
func (b *Bot) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil || m.EditedTimestamp == nil {
		return
	}
	b.handleMessage(m.Message, true)
}

func (b *Bot) handleMessage(m *discordgo.Message, edited bool) {
	selfID, _, _ := b.self()
	if m == nil || m.Author == nil || m.Author.ID == selfID || b.events == nil {
		return
	}

	ctx, cancel := b.handlerContext()
	defer cancel()

	if m.GuildID == "" {
		if !edited {
			b.handleDirectMessage(ctx, m)
		}
		return
	}
	if m.WebhookID != "" || m.ChannelID != b.cfg.ChatChannelID {
		return
	}

	body := withAttachments(m.ContentWithMentionsReplaced(), len(m.Attachments))
	if body == "" {
		b.logger.Warn("empty_discord_message", "user_id", m.Author.ID, "username", m.Author.Username)
		return
	}

	b.mu.RLock()
	origin := b.channelName
	b.mu.RUnlock()

	b.events.DiscordChat(ctx, domain.ChatMessage{
		UserID:      m.Author.ID,
		Body:        body,
		Origin:      origin,
		FromDiscord: true,
		Edited:      edited,
	})
}

// handleDirectMessage treats replies to relayed private messages as answers to their sender
func (b *Bot) handleDirectMessage(ctx context.Context, m *discordgo.Message) {
	if m.Type != discordgo.MessageTypeReply || m.MessageReference == nil {
		b.replyTo(ctx, m, b.messages.ReplyToExisting)
		return
	}

	err := b.events.DiscordReply(ctx, m.Author.ID, m.MessageReference.MessageID, m.ContentWithMentionsReplaced())
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrNoReplyRecord):
		b.replyTo(ctx, m, b.messages.ReplyToExisting)
	case errors.Is(err, relay.ErrNoSuchPlayer):
		b.replyTo(ctx, m, b.messages.NoSuchPlayer)
	case errors.Is(err, relay.ErrSenderUnlinked):
		b.logger.Info("dm_reply_from_unlinked_user", "user_id", m.Author.ID)
	default:
		b.logger.Error("dm_reply_failed", "user_id", m.Author.ID, "error", err)
	}
}

func (b *Bot) replyTo(ctx context.Context, m *discordgo.Message, content string) {
	_, err := b.api.ChannelMessageSendComplex(ctx, m.ChannelID, &discordgo.MessageSend{
		Content:   content,
		Reference: m.Reference(),
	})
	if err != nil {
		b.logger.Warn("dm_reply_send_failed", "channel_id", m.ChannelID, "error", err)
	}
}

func (b *Bot) onMessageReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	selfID, _, _ := b.self()
	if r.ChannelID != b.cfg.ChatChannelID || r.UserID == selfID || b.events == nil {
		return
	}

	ctx, cancel := b.handlerContext()
	defer cancel()

	reaction, err := b.reactionFor(ctx, r.MessageReaction, r.Member)
	if err != nil {
		b.logger.Warn("reaction_lookup_failed", "message_id", r.MessageID, "error", err)
		return
	}
	b.events.DiscordReaction(ctx, reaction)
}

// reactionFor works out who reacted to whom. Reactions to relayed Minecraft
// chat are attributed to the player named in the embed author.
func (b *Bot) reactionFor(ctx context.Context, r *discordgo.MessageReaction, reactor *discordgo.Member) (relay.Reaction, error) {
	reaction := relay.Reaction{Emoji: r.Emoji.Name}

	if reactor != nil && reactor.User != nil {
		reaction.From = effectiveName(reactor)
	} else {
		name, err := b.members.displayName(ctx, r.UserID)
		if err != nil {
			return relay.Reaction{}, fmt.Errorf("resolving reacting user: %w", err)
		}
		reaction.From = name
	}

	msg, err := b.api.ChannelMessage(ctx, r.ChannelID, r.MessageID)
	if err != nil {
		return relay.Reaction{}, fmt.Errorf("fetching reacted message: %w", err)
	}
	if msg.Author == nil {
		return relay.Reaction{}, errors.New("reacted message has no author")
	}

	if msg.WebhookID == "" {
		name, err := b.members.displayName(ctx, msg.Author.ID)
		if err != nil {
			return relay.Reaction{}, fmt.Errorf("resolving message author: %w", err)
		}
		reaction.To = name
		return reaction, nil
	}

	reaction.To = msg.Author.Username
	if len(msg.Embeds) == 1 && msg.Embeds[0].Author != nil && msg.Embeds[0].Author.Name != "" {
		reaction.To = msg.Embeds[0].Author.Name
		reaction.OnMinecraftMessage = true
	}
	return reaction, nil
}

// withAttachments appends an attachment count such as "[2 attachments]"
func withAttachments(content string, n int) string {
	if n == 0 {
		return content
	}
	suffix := fmt.Sprintf("[%d attachment]", n)
	if n != 1 {
		suffix = fmt.Sprintf("[%d attachments]", n)
	}
	if content == "" {
		return suffix
	}
	return content + " " + suffix
}
