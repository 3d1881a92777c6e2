// Package relay formats chat between Discord and the Minecraft network
package relay

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/format"
	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/google/uuid"
)

// Players is the live session registry of the game network
type Players interface {
	Player(id uuid.UUID) (domain.Player, bool)
	Online() []domain.Player
	Broadcast(message string)
	SendTo(id uuid.UUID, message string)
}

// Directory resolves Discord users to display names
type Directory interface {
	DisplayName(ctx context.Context, discordID string) (string, error)
}

// Accounts is the subset of the account store used for chat
type Accounts interface {
	AccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	AccountByDiscordID(ctx context.Context, discordID string) (*domain.Account, error)
	UpdateUsername(ctx context.Context, id uuid.UUID, username string) error
}

var (
	urlPattern    = regexp.MustCompile(`(https?://(?:www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b[-a-zA-Z0-9()@:%_+.~#?&/=]*)`)
	markupEscaper = strings.NewReplacer(`\`, `\\`, `<`, `\<`)
)

// EscapeMarkup stops text from opening MiniMessage tags
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}

// Sanitize escapes markup in a chat body and turns bare URLs into clickable links
func Sanitize(body string) string {
	return urlPattern.ReplaceAllString(EscapeMarkup(body), `<u><click:open_url:'$1'>$1</click></u>`)
}

// Identity is who a chat message is from on both platforms
type Identity struct {
	MinecraftID   uuid.UUID
	MinecraftName string
	DiscordID     string
	DiscordName   string
	Linked        bool
}

// Router renders chat messages and delivers them to every connected player
type Router struct {
	accounts  Accounts
	players   Players
	directory Directory
	messages  config.Messages
	logger    *slog.Logger
}

// NewRouter creates a chat router
func NewRouter(accounts Accounts, players Players, directory Directory, messages config.Messages, logger *slog.Logger) *Router {
	return &Router{
		accounts:  accounts,
		players:   players,
		directory: directory,
		messages:  messages,
		logger:    logger,
	}
}

// Resolve finds the display names of a message's sender on both platforms.
// It returns false when the message must be dropped.
func (r *Router) Resolve(ctx context.Context, msg domain.ChatMessage) (Identity, bool) {
	if msg.FromDiscord {
		return r.resolveDiscordSender(ctx, msg)
	}
	return r.resolveMinecraftSender(ctx, msg)
}

func (r *Router) resolveDiscordSender(ctx context.Context, msg domain.ChatMessage) (Identity, bool) {
	id := Identity{DiscordID: msg.UserID}

	name, err := r.directory.DisplayName(ctx, msg.UserID)
	if err != nil {
		r.logger.Warn("discord_name_lookup_failed", "discord_id", msg.UserID, "error", err)
		return id, false
	}
	id.DiscordName = name

	acct, err := r.accounts.AccountByDiscordID(ctx, msg.UserID)
	if err != nil {
		r.logger.Error("account_lookup_failed", "discord_id", msg.UserID, "error", err)
		return id, false
	}
	if acct == nil {
		id.MinecraftName = r.messages.NoAccountPlaceholder
		return id, true
	}

	id.Linked = true
	id.MinecraftID = acct.ID
	id.MinecraftName = acct.Nickname
	if id.MinecraftName == "" {
		// Linked accounts always carry a nickname; recover from the live session if one exists
		player, online := r.players.Player(acct.ID)
		if !online {
			r.logger.Error("linked_account_without_name",
				"discord_id", msg.UserID,
				"minecraft_id", acct.ID.String(),
				"message", msg.Body,
			)
			return id, false
		}
		r.logger.Warn("linked_account_name_recovered",
			"discord_id", msg.UserID,
			"minecraft_id", acct.ID.String(),
			"username", player.Username,
		)
		if err := r.accounts.UpdateUsername(ctx, acct.ID, player.Username); err != nil {
			r.logger.Error("update_username_failed", "minecraft_id", acct.ID.String(), "error", err)
		}
		id.MinecraftName = player.Username
	}
	return id, true
}

func (r *Router) resolveMinecraftSender(ctx context.Context, msg domain.ChatMessage) (Identity, bool) {
	var id Identity

	mcID, err := uuid.Parse(msg.UserID)
	if err != nil {
		r.logger.Error("chat_sender_invalid_id", "user_id", msg.UserID, "error", err)
		return id, false
	}
	id.MinecraftID = mcID

	player, online := r.players.Player(mcID)
	if !online {
		// Chat only arrives from connected sessions
		r.logger.Error("chat_sender_not_online", "minecraft_id", msg.UserID, "message", msg.Body)
		return id, false
	}
	id.MinecraftName = player.Username

	acct, err := r.accounts.AccountByID(ctx, mcID)
	if err != nil {
		r.logger.Error("account_lookup_failed", "minecraft_id", msg.UserID, "error", err)
		return id, false
	}
	id.DiscordID = acct.DiscordID()
	id.DiscordName = r.messages.NoAccountPlaceholder
	if id.DiscordID == "" {
		return id, true
	}

	id.Linked = true
	name, err := r.directory.DisplayName(ctx, id.DiscordID)
	if err != nil {
		r.logger.Warn("discord_name_lookup_failed", "discord_id", id.DiscordID, "error", err)
		return id, true
	}
	id.DiscordName = name
	return id, true
}

// Render formats a message for the game network. It returns false when no
// template applies, as for edits with no edit template configured.
func (r *Router) Render(msg domain.ChatMessage, id Identity) (string, bool) {
	var tmpl string
	switch {
	case !msg.FromDiscord:
		tmpl = r.messages.MinecraftChat
	case msg.Edited:
		tmpl = r.messages.DiscordChatEdited
	default:
		tmpl = r.messages.DiscordChat
	}
	if tmpl == "" {
		return "", false
	}

	return format.Fill(tmpl,
		"server", msg.Origin,
		"minecraftUsername", EscapeMarkup(id.MinecraftName),
		"discordUsername", EscapeMarkup(id.DiscordName),
		"message", Sanitize(msg.Body),
	), true
}

// Route resolves, renders and broadcasts one chat message to every connected player.
// It returns the delivered text and the resolved identity, or false if the message was dropped.
func (r *Router) Route(ctx context.Context, msg domain.ChatMessage) (string, Identity, bool) {
	if msg.FromDiscord && msg.Edited && r.messages.DiscordChatEdited == "" {
		return "", Identity{}, false
	}

	id, ok := r.Resolve(ctx, msg)
	if !ok {
		return "", id, false
	}
	text, ok := r.Render(msg, id)
	if !ok {
		return "", id, false
	}

	r.players.Broadcast(text)
	metrics.MessagesRelayed.WithLabelValues("to_minecraft").Inc()
	return text, id, true
}

// Reaction is an emoji added to a message in the chat channel
type Reaction struct {
	From  string // display name of the reacting Discord user
	To    string // author of the message reacted to
	Emoji string
	// OnMinecraftMessage is set when the message is a relayed Minecraft chat line,
	// in which case To is the Minecraft player name.
	OnMinecraftMessage bool
}

// RouteReaction announces a reaction in game. Reactions are ignored unless a template is configured.
func (r *Router) RouteReaction(reaction Reaction) (string, bool) {
	tmpl := r.messages.DiscordReaction
	if reaction.OnMinecraftMessage && r.messages.MinecraftReaction != "" {
		tmpl = r.messages.MinecraftReaction
	}
	if tmpl == "" {
		return "", false
	}

	text := format.Fill(tmpl,
		"from", EscapeMarkup(reaction.From),
		"to", EscapeMarkup(reaction.To),
		"reaction", EscapeMarkup(reaction.Emoji),
	)
	r.players.Broadcast(text)
	return text, true
}
