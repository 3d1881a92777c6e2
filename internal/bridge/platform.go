package bridge

import (
	"context"

	"github.com/blockrelay/blockrelay/internal/discord"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/linking"
	"github.com/blockrelay/blockrelay/internal/relay"
)

var _ discord.Events = (*Bridge)(nil)

// DiscordChat relays a message from the chat channel into the game
func (b *Bridge) DiscordChat(ctx context.Context, msg domain.ChatMessage) {
	text, id, ok := b.router.Route(ctx, msg)
	if !ok {
		return
	}
	b.emitEvent(domain.EventChat, domain.ChatEvent{
		FromDiscord: true,
		Origin:      msg.Origin,
		Minecraft:   id.MinecraftName,
		Discord:     id.DiscordName,
		Message:     text,
	})
}

func (b *Bridge) DiscordReaction(_ context.Context, reaction relay.Reaction) {
	b.router.RouteReaction(reaction)
}

// DiscordReply sends a reply to a relayed DM back to the player who wrote it
func (b *Bridge) DiscordReply(ctx context.Context, discordUserID, repliedMessageID, body string) error {
	d, err := b.messenger.ReplyFromDiscord(ctx, discordUserID, repliedMessageID, body)
	if err != nil {
		return err
	}
	if d != nil {
		b.emitPrivateMessage(d, true)
	}
	return nil
}

// DiscordMemberLost removes a player from the game once they can no longer pass admission
func (b *Bridge) DiscordMemberLost(ctx context.Context, discordUserID string) {
	acct, err := b.store.AccountByDiscordID(ctx, discordUserID)
	if err != nil {
		b.logger.Error("member_lost_lookup_failed", "user_id", discordUserID, "error", err)
		return
	}
	if acct == nil {
		return
	}
	if _, online := b.game.Player(acct.ID); !online {
		return
	}
	b.game.Kick(acct.ID, b.messages.LeftDiscord)
	b.logger.Info("player_kicked", "username", acct.Username, "user_id", discordUserID, "reason", "left_discord")
}

func (b *Bridge) DiscordLinked(_ context.Context, result linking.Result) {
	if result.Account == nil {
		return
	}
	b.emitEvent(domain.EventLinkCompleted, domain.LinkCompletedEvent{Nickname: result.Account.Nickname})
}

func (b *Bridge) emitPrivateMessage(d *relay.Delivery, fromDiscord bool) {
	b.emitEvent(domain.EventPrivateMessage, domain.PrivateMessageEvent{
		From:        d.Sender.Nickname,
		To:          d.Recipient.Nickname,
		RelayedToDM: d.MessageID != "",
		FromDiscord: fromDiscord,
	})
}
