package domain

import (
	"time"

	"github.com/google/uuid"
)

// Player is a live session on the proxy network
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Server   string    `json:"server,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// PlayerStatus is a Player annotated with its link state for the status API
type PlayerStatus struct {
	Player
	Nickname string     `json:"nickname,omitempty"`
	Link     LinkStatus `json:"link"`
}

// ChatMessage is one message being relayed between platforms.
// UserID is a Minecraft UUID string when FromDiscord is false and a Discord id otherwise.
type ChatMessage struct {
	UserID      string
	Body        string
	Origin      string // backend server name or Discord channel name
	FromDiscord bool
	Edited      bool
}
