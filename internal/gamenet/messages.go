package gamenet

import "github.com/google/uuid"

// Subject suffixes under the configured prefix
const (
	SubjectLogin        = "login"
	SubjectConnected    = "connected"
	SubjectDisconnected = "disconnected"
	SubjectChat         = "chat"
	SubjectCommand      = "command"
	SubjectSuggest      = "suggest"
	SubjectPlugin       = "plugin"
	SubjectSend         = "send"
	SubjectKick         = "kick"
)

// LoginRequest is published by the proxy before a player is let in
type LoginRequest struct {
	UUID     uuid.UUID `json:"uuid"`
	Username string    `json:"username"`
}

// LoginReply answers a LoginRequest. Reason is shown to a refused player.
type LoginReply struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Connected is published when a player lands on a backend server.
// PreviousServer is set when the player switched servers.
type Connected struct {
	UUID           uuid.UUID `json:"uuid"`
	Username       string    `json:"username"`
	Server         string    `json:"server"`
	PreviousServer string    `json:"previous_server,omitempty"`
}

// Disconnected is published when a player leaves the proxy.
// LoggedIn is false when the player was refused at login.
type Disconnected struct {
	UUID     uuid.UUID `json:"uuid"`
	Username string    `json:"username"`
	LoggedIn bool      `json:"logged_in"`
}

// Chat is a chat line typed by a player. The proxy suppresses the default delivery.
type Chat struct {
	UUID     uuid.UUID `json:"uuid"`
	Username string    `json:"username"`
	Server   string    `json:"server"`
	Message  string    `json:"message"`
}

// Command is a bridge command run by a player: msg, r or discord
type Command struct {
	UUID     uuid.UUID `json:"uuid"`
	Username string    `json:"username"`
	Command  string    `json:"command"`
	Args     []string  `json:"args"`
}

// SuggestRequest asks for tab completions of a partly typed bridge command.
// Args holds the words typed so far, the last one possibly incomplete.
type SuggestRequest struct {
	UUID    uuid.UUID `json:"uuid"`
	Command string    `json:"command"`
	Args    []string  `json:"args"`
}

// SuggestReply answers a SuggestRequest
type SuggestReply struct {
	Suggestions []string `json:"suggestions"`
}

// Plugin carries a plugin message from a backend server, untouched
type Plugin struct {
	UUID   uuid.UUID `json:"uuid"`
	Server string    `json:"server"`
	Data   []byte    `json:"data"`
}

// Send asks the proxy to show a message. A nil UUID addresses every player.
type Send struct {
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	Message string     `json:"message"`
}

// Kick asks the proxy to disconnect a player
type Kick struct {
	UUID   uuid.UUID `json:"uuid"`
	Reason string    `json:"reason"`
}
