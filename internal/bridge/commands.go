package bridge

import (
	"context"
	"errors"
	"strings"

	"github.com/blockrelay/blockrelay/internal/gamenet"
	"github.com/blockrelay/blockrelay/internal/relay"
)

const (
	msgUsage   = "Usage: /msg <player> <message>"
	replyUsage = "Usage: /r <message>"
)

// HandleCommand runs /msg, /r and /discord for a player
func (b *Bridge) HandleCommand(ctx context.Context, ev gamenet.Command) {
	switch strings.ToLower(ev.Command) {
	case "msg":
		if len(ev.Args) < 2 {
			b.game.SendTo(ev.UUID, msgUsage)
			return
		}
		d, err := b.messenger.Send(ctx, ev.UUID, ev.Args[0], strings.Join(ev.Args[1:], " "))
		b.afterPrivateMessage(ev, d, err)

	case "r":
		if len(ev.Args) == 0 {
			b.game.SendTo(ev.UUID, replyUsage)
			return
		}
		d, err := b.messenger.Reply(ctx, ev.UUID, strings.Join(ev.Args, " "))
		b.afterPrivateMessage(ev, d, err)

	case "discord":
		reply, err := b.preferences(ctx, ev.UUID, ev.Args)
		if err != nil {
			b.logger.Error("preferences_failed", "username", ev.Username, "error", err)
			return
		}
		b.game.SendTo(ev.UUID, reply)

	default:
		b.logger.Warn("unknown_command", "command", ev.Command, "username", ev.Username)
	}
}

func (b *Bridge) afterPrivateMessage(ev gamenet.Command, d *relay.Delivery, err error) {
	switch {
	case err == nil:
	case errors.Is(err, relay.ErrNoSuchPlayer), errors.Is(err, relay.ErrNoReplyTarget):
		return
	default:
		b.logger.Error("private_message_failed", "username", ev.Username, "command", ev.Command, "error", err)
	}
	if d != nil {
		b.emitPrivateMessage(d, false)
	}
}

// HandleSuggest completes player names for /msg and options for /discord
func (b *Bridge) HandleSuggest(ctx context.Context, req gamenet.SuggestRequest) gamenet.SuggestReply {
	switch strings.ToLower(req.Command) {
	case "msg":
		if len(req.Args) > 1 {
			break
		}
		names, err := b.messenger.Suggestions(ctx)
		if err != nil {
			b.logger.Warn("suggestions_failed", "error", err)
			break
		}
		prefix := ""
		if len(req.Args) == 1 {
			prefix = req.Args[0]
		}
		return gamenet.SuggestReply{Suggestions: withPrefix(names, prefix)}

	case "discord":
		return gamenet.SuggestReply{Suggestions: preferenceSuggestions(req.Args)}
	}
	return gamenet.SuggestReply{Suggestions: []string{}}
}
