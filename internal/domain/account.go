package domain

import (
	"time"

	"github.com/google/uuid"
)

// LinkStatus is the discriminant of LinkState
type LinkStatus string

const (
	LinkUnlinked LinkStatus = "unlinked"
	LinkPending  LinkStatus = "pending"
	LinkLinked   LinkStatus = "linked"
)

// LinkState describes how a Minecraft account relates to a Discord account.
// Code and IssuedAt are only meaningful while pending, DiscordID only once linked.
type LinkState struct {
	Status    LinkStatus `json:"status"`
	Code      string     `json:"code,omitempty"`
	IssuedAt  time.Time  `json:"issued_at,omitempty"`
	DiscordID string     `json:"discord_id,omitempty"`
}

// Unlinked returns the initial link state
func Unlinked() LinkState {
	return LinkState{Status: LinkUnlinked}
}

// Pending returns a link state waiting for code to be submitted on Discord
func Pending(code string, issuedAt time.Time) LinkState {
	return LinkState{Status: LinkPending, Code: code, IssuedAt: issuedAt}
}

// Linked returns a link state bound to a Discord account
func Linked(discordID string) LinkState {
	return LinkState{Status: LinkLinked, DiscordID: discordID}
}

func (s LinkState) IsLinked() bool  { return s.Status == LinkLinked }
func (s LinkState) IsPending() bool { return s.Status == LinkPending }

// Account is one known Minecraft account and its bridge preferences
type Account struct {
	ID                 uuid.UUID     `json:"id"`
	Username           string        `json:"username"`
	Nickname           string        `json:"nickname"`
	Link               LinkState     `json:"link"`
	NotifyWhileOnline  bool          `json:"notify_while_online"`
	NotifyWhileOffline bool          `json:"notify_while_offline"`
	DeathAlertDelay    time.Duration `json:"death_alert_delay"`
	LastReplyTarget    *string       `json:"last_reply_target,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// DiscordID returns the linked Discord account id, or "" when the account is not linked
func (a *Account) DiscordID() string {
	if a == nil || !a.Link.IsLinked() {
		return ""
	}
	return a.Link.DiscordID
}

// NotifyFor reports whether a private message should be forwarded to Discord
// given whether the account currently has a session on the network
func (a *Account) NotifyFor(online bool) bool {
	if online {
		return a.NotifyWhileOnline
	}
	return a.NotifyWhileOffline
}

// DirectMessage correlates a relayed Discord DM with the two linked Discord accounts
type DirectMessage struct {
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
}
