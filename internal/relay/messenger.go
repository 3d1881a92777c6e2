package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/format"
	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/google/uuid"
)

// User-facing failures. The sender has already been told when one of these is returned.
var (
	ErrNoSuchPlayer   = errors.New("no such player")
	ErrNoReplyTarget  = errors.New("no reply target")
	ErrNoReplyRecord  = errors.New("message is not a relayed private message")
	ErrSenderUnlinked = errors.New("discord user has no linked account")
)

// DirectMessenger delivers private messages to Discord users
type DirectMessenger interface {
	// SendPrivateMessage DMs text to a Discord user and returns the new message id
	SendPrivateMessage(ctx context.Context, sender *domain.Account, recipientDiscordID, text string) (string, error)
}

// MessageStore is the subset of the account store used for private messages
type MessageStore interface {
	AccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	AccountByName(ctx context.Context, name string) (*domain.Account, error)
	AccountByDiscordID(ctx context.Context, discordID string) (*domain.Account, error)
	SetLastReplyTarget(ctx context.Context, id uuid.UUID, target string) error
	UsernamesWithOfflineDMs(ctx context.Context) ([]string, error)
	AddDirectMessage(ctx context.Context, dm domain.DirectMessage) error
	DirectMessageByID(ctx context.Context, messageID string) (*domain.DirectMessage, error)
}

// Delivery describes where a private message ended up
type Delivery struct {
	Sender    *domain.Account
	Recipient *domain.Account
	InGame    bool
	MessageID string // Discord DM id, empty when not relayed
}

// Messenger relays private messages between players, in game and through Discord DMs
type Messenger struct {
	store    MessageStore
	players  Players
	dms      DirectMessenger
	messages config.Messages
	logger   *slog.Logger
}

// NewMessenger creates a private message relay
func NewMessenger(store MessageStore, players Players, dms DirectMessenger, messages config.Messages, logger *slog.Logger) *Messenger {
	return &Messenger{
		store:    store,
		players:  players,
		dms:      dms,
		messages: messages,
		logger:   logger,
	}
}

// Send handles /msg from a connected player
func (m *Messenger) Send(ctx context.Context, senderID uuid.UUID, destination, body string) (*Delivery, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	sender, err := m.store.AccountByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("loading sender: %w", err)
	}
	if sender == nil {
		return nil, fmt.Errorf("sender %s has no account", senderID)
	}

	recipient, err := m.store.AccountByName(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("loading recipient: %w", err)
	}
	if recipient == nil {
		metrics.PrivateMessages.WithLabelValues("unknown_player").Inc()
		m.players.SendTo(senderID, m.messages.NoSuchPlayer)
		return nil, ErrNoSuchPlayer
	}

	return m.deliver(ctx, sender, recipient, body)
}

// Reply handles /r, answering whoever the player last exchanged a message with
func (m *Messenger) Reply(ctx context.Context, senderID uuid.UUID, body string) (*Delivery, error) {
	sender, err := m.store.AccountByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("loading sender: %w", err)
	}
	if sender == nil || sender.LastReplyTarget == nil {
		m.players.SendTo(senderID, m.messages.NoReplyTarget)
		return nil, ErrNoReplyTarget
	}
	return m.Send(ctx, senderID, *sender.LastReplyTarget, body)
}

// ReplyFromDiscord routes a Discord reply to a relayed DM back to the player who sent it
func (m *Messenger) ReplyFromDiscord(ctx context.Context, discordUserID, repliedMessageID, body string) (*Delivery, error) {
	rec, err := m.store.DirectMessageByID(ctx, repliedMessageID)
	if err != nil {
		return nil, fmt.Errorf("loading dm record: %w", err)
	}
	if rec == nil {
		return nil, ErrNoReplyRecord
	}
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	sender, err := m.store.AccountByDiscordID(ctx, discordUserID)
	if err != nil {
		return nil, fmt.Errorf("loading sender: %w", err)
	}
	if sender == nil {
		return nil, ErrSenderUnlinked
	}

	recipient, err := m.store.AccountByDiscordID(ctx, rec.SenderID)
	if err != nil {
		return nil, fmt.Errorf("loading recipient: %w", err)
	}
	if recipient == nil {
		// The original sender was unlinked since
		return nil, ErrNoSuchPlayer
	}

	return m.deliver(ctx, sender, recipient, body)
}

func (m *Messenger) deliver(ctx context.Context, sender, recipient *domain.Account, body string) (*Delivery, error) {
	d := &Delivery{Sender: sender, Recipient: recipient}

	text := format.Fill(m.messages.MinecraftPrivate,
		"sender", EscapeMarkup(sender.Nickname),
		"recipient", EscapeMarkup(recipient.Nickname),
		"message", Sanitize(body),
	)

	// Messaging yourself shows the line once
	if sender.ID != recipient.ID {
		if _, online := m.players.Player(sender.ID); online {
			m.players.SendTo(sender.ID, text)
		}
	}

	if err := m.store.SetLastReplyTarget(ctx, sender.ID, recipient.Nickname); err != nil {
		return d, fmt.Errorf("setting reply target: %w", err)
	}
	if err := m.store.SetLastReplyTarget(ctx, recipient.ID, sender.Nickname); err != nil {
		return d, fmt.Errorf("setting reply target: %w", err)
	}

	_, online := m.players.Player(recipient.ID)
	if online {
		m.players.SendTo(recipient.ID, text)
		d.InGame = true
		metrics.PrivateMessages.WithLabelValues("in_game").Inc()
	}

	senderDiscord, recipientDiscord := sender.DiscordID(), recipient.DiscordID()
	if senderDiscord == "" || recipientDiscord == "" {
		return d, nil
	}
	if !recipient.NotifyFor(online) {
		return d, nil
	}

	dmText := format.Fill(m.messages.DiscordPrivate,
		"sender", sender.Nickname,
		"recipient", recipient.Nickname,
		"message", body,
	)
	messageID, err := m.dms.SendPrivateMessage(ctx, sender, recipientDiscord, dmText)
	if err != nil {
		m.logger.Warn("private_message_dm_failed",
			"sender", sender.Nickname,
			"recipient", recipient.Nickname,
			"error", err,
		)
		return d, nil
	}

	if err := m.store.AddDirectMessage(ctx, domain.DirectMessage{
		MessageID:   messageID,
		SenderID:    senderDiscord,
		RecipientID: recipientDiscord,
	}); err != nil {
		return d, err
	}
	d.MessageID = messageID
	metrics.PrivateMessages.WithLabelValues("discord_dm").Inc()
	return d, nil
}

// Suggestions lists the names /msg can complete to: everyone reachable on Discord while
// offline plus everyone online, sorted without regard to case
func (m *Messenger) Suggestions(ctx context.Context) ([]string, error) {
	names, err := m.store.UsernamesWithOfflineDMs(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range m.players.Online() {
		if !slices.Contains(names, p.Username) {
			names = append(names, p.Username)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return names, nil
}
