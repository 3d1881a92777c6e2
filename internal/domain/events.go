package domain

import "time"

// Event types for WebSocket notifications
const (
	EventPlayerJoin      = "player_join"
	EventPlayerLeave     = "player_leave"
	EventPlayerSwitch    = "player_switch"
	EventChat            = "chat"
	EventPrivateMessage  = "private_message"
	EventLinkCompleted   = "link_completed"
	EventAdmissionDenied = "admission_denied"
	EventDeath           = "death"
	EventAdvancement     = "advancement"
)

// Event represents a real-time event for WebSocket broadcast
type Event struct {
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// PlayerJoinEvent is sent when a player connects to a backend server for the first time in a session
type PlayerJoinEvent struct {
	Username string `json:"username"`
	Server   string `json:"server"`
}

// PlayerSwitchEvent is sent when a player moves between backend servers
type PlayerSwitchEvent struct {
	Username  string `json:"username"`
	OldServer string `json:"old_server"`
	NewServer string `json:"new_server"`
}

// PlayerLeaveEvent is sent when a player disconnects from the network
type PlayerLeaveEvent struct {
	Username string `json:"username"`
}

// ChatEvent is sent for every relayed chat line, after formatting
type ChatEvent struct {
	FromDiscord bool   `json:"from_discord"`
	Origin      string `json:"origin"`
	Minecraft   string `json:"minecraft_name"`
	Discord     string `json:"discord_name"`
	Message     string `json:"message"`
}

// PrivateMessageEvent is sent when a private message is delivered
type PrivateMessageEvent struct {
	From        string `json:"from"`
	To          string `json:"to"`
	RelayedToDM bool   `json:"relayed_to_dm"`
	FromDiscord bool   `json:"from_discord"`
}

// LinkCompletedEvent is sent when a Discord account finishes linking
type LinkCompletedEvent struct {
	Nickname string `json:"nickname"`
}

// AdmissionDeniedEvent is sent when a login is refused
type AdmissionDeniedEvent struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// DeathEvent is sent when a backend server reports a player death
type DeathEvent struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// AdvancementEvent is sent when a backend server reports an advancement
type AdvancementEvent struct {
	Username    string `json:"username"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Challenge   bool   `json:"challenge"`
}
