package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	NATS     NATSConfig     `yaml:"nats"`
	Discord  DiscordConfig  `yaml:"discord"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Messages Messages       `yaml:"messages"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds status API settings. An empty ListenAddr disables the API.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// AuthConfig holds bearer token settings for the status API
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// LoggingConfig holds log output settings. Format is auto, text or json.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NATSConfig describes how to reach the proxy network.
// With Embedded set, an in-process server listens on EmbeddedPort and URL is ignored.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Embedded      bool          `yaml:"embedded"`
	EmbeddedHost  string        `yaml:"embedded_host"`
	EmbeddedPort  int           `yaml:"embedded_port"`
	LoginTimeout  time.Duration `yaml:"login_timeout"`
}

// DiscordConfig holds bot settings
type DiscordConfig struct {
	Token            string        `yaml:"token"`
	GuildID          string        `yaml:"guild_id"`
	ChatChannelID    string        `yaml:"chat_channel_id"`
	LinkChannelID    string        `yaml:"link_channel_id"`
	LinkedRoleID     string        `yaml:"linked_role_id"`
	MemberCacheTTL   time.Duration `yaml:"member_cache_ttl"`
	MinecraftHeadURL string        `yaml:"minecraft_head_url"`
}

// AlertsConfig controls the death alert sweep
type AlertsConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Messages holds every user-facing template. Placeholders are written as {name}.
type Messages struct {
	MinecraftChat         string `yaml:"minecraft_chat"`
	DiscordChat           string `yaml:"discord_chat"`
	DiscordChatEdited     string `yaml:"discord_chat_edited"`
	DiscordReaction       string `yaml:"discord_reaction"`
	MinecraftReaction     string `yaml:"minecraft_reaction"`
	NoAccountPlaceholder  string `yaml:"no_account_placeholder"`
	PlayerJoin            string `yaml:"player_join"`
	PlayerJoinUnlinked    string `yaml:"player_join_unlinked"`
	PlayerSwitch          string `yaml:"player_switch"`
	PlayerLeave           string `yaml:"player_leave"`
	NewPlayer             string `yaml:"new_player"`
	NeedsLink             string `yaml:"needs_link"`
	LeftDiscord           string `yaml:"left_discord"`
	AdmissionError        string `yaml:"admission_error"`
	ServerStarted         string `yaml:"server_started"`
	ServerStopped         string `yaml:"server_stopped"`
	MinecraftPrivate      string `yaml:"minecraft_private"`
	DiscordPrivate        string `yaml:"discord_private"`
	AlreadyLinked         string `yaml:"already_linked"`
	LinkedSuccessfully    string `yaml:"linked_successfully"`
	InvalidLinkCode       string `yaml:"invalid_link_code"`
	LinkError             string `yaml:"link_error"`
	LinkRateLimited       string `yaml:"link_rate_limited"`
	NoSuchPlayer          string `yaml:"no_such_player"`
	NoReplyTarget         string `yaml:"no_reply_target"`
	ReplyToExisting       string `yaml:"reply_to_existing"`
	DeathAlert            string `yaml:"death_alert"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// The token usually lives outside the config file
	if tok := os.Getenv("DISCORD_TOKEN"); tok != "" {
		cfg.Discord.Token = tok
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default value
func (cfg *Config) ApplyDefaults() {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/blockrelay/blockrelay.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "auto"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 30 * 24 * time.Hour
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "blockrelay"
	}
	if cfg.NATS.EmbeddedHost == "" {
		cfg.NATS.EmbeddedHost = "127.0.0.1"
	}
	if cfg.NATS.EmbeddedPort == 0 {
		cfg.NATS.EmbeddedPort = 4222
	}
	if cfg.NATS.LoginTimeout == 0 {
		cfg.NATS.LoginTimeout = 5 * time.Second
	}

	// Announcements for linking go to the chat channel unless a dedicated one is set
	if cfg.Discord.LinkChannelID == "" {
		cfg.Discord.LinkChannelID = cfg.Discord.ChatChannelID
	}
	if cfg.Discord.MemberCacheTTL == 0 {
		cfg.Discord.MemberCacheTTL = 5 * time.Minute
	}
	if cfg.Discord.MinecraftHeadURL == "" {
		cfg.Discord.MinecraftHeadURL = "https://mc-heads.net/avatar/{uuid}"
	}

	if cfg.Alerts.SweepInterval == 0 {
		cfg.Alerts.SweepInterval = time.Second
	}

	cfg.Messages.applyDefaults()
}

func (m *Messages) applyDefaults() {
	def := DefaultMessages()
	setDefault(&m.MinecraftChat, def.MinecraftChat)
	setDefault(&m.DiscordChat, def.DiscordChat)
	// DiscordChatEdited, DiscordReaction and MinecraftReaction stay empty when unset: empty disables them
	setDefault(&m.NoAccountPlaceholder, def.NoAccountPlaceholder)
	setDefault(&m.PlayerJoin, def.PlayerJoin)
	setDefault(&m.PlayerJoinUnlinked, def.PlayerJoinUnlinked)
	setDefault(&m.PlayerSwitch, def.PlayerSwitch)
	setDefault(&m.PlayerLeave, def.PlayerLeave)
	setDefault(&m.NewPlayer, def.NewPlayer)
	setDefault(&m.NeedsLink, def.NeedsLink)
	setDefault(&m.LeftDiscord, def.LeftDiscord)
	setDefault(&m.AdmissionError, def.AdmissionError)
	setDefault(&m.ServerStarted, def.ServerStarted)
	setDefault(&m.ServerStopped, def.ServerStopped)
	setDefault(&m.MinecraftPrivate, def.MinecraftPrivate)
	setDefault(&m.DiscordPrivate, def.DiscordPrivate)
	setDefault(&m.AlreadyLinked, def.AlreadyLinked)
	setDefault(&m.LinkedSuccessfully, def.LinkedSuccessfully)
	setDefault(&m.InvalidLinkCode, def.InvalidLinkCode)
	setDefault(&m.LinkError, def.LinkError)
	setDefault(&m.LinkRateLimited, def.LinkRateLimited)
	setDefault(&m.NoSuchPlayer, def.NoSuchPlayer)
	setDefault(&m.NoReplyTarget, def.NoReplyTarget)
	setDefault(&m.ReplyToExisting, def.ReplyToExisting)
	setDefault(&m.DeathAlert, def.DeathAlert)
}

func setDefault(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// DefaultMessages returns the built-in message set
func DefaultMessages() Messages {
	return Messages{
		MinecraftChat:        "[<red>{server}</red> <white>|</white> <green>{minecraftUsername}</green> <white>|</white> <blue>{discordUsername}</blue>] <white>{message}</white>",
		DiscordChat:          "[<red>DISCORD</red> <white>|</white> <green>{minecraftUsername}</green> <white>|</white> <blue>{discordUsername}</blue>] <white>{message}</white>",
		NoAccountPlaceholder: "[NonCrafter]",
		PlayerJoin:           "{username} has joined the network!",
		PlayerJoinUnlinked:   "Welcome to the server, {username}! Click the button below and enter your link code to link your Discord and Minecraft accounts!",
		PlayerSwitch:         "{username} moved from {old_server} to {new_server}",
		PlayerLeave:          "{username} has left the network!",
		NewPlayer:            "Welcome to the server, {username}!",
		NeedsLink:            "Please link your Discord account!\nCheck the Discord server for details.\n\nLink code:\n{code}",
		LeftDiscord:          "You left the Discord server! You must be in the Discord server to access the Minecraft server.",
		AdmissionError:       "Unable to verify your Discord account right now. Please try again later.",
		ServerStarted:        "✅ Server has started!",
		ServerStopped:        "🛑 Server has stopped!",
		MinecraftPrivate:     "[<blue>{sender}</blue> <dark_gray>-></dark_gray> <green>{recipient}</green>] {message}",
		DiscordPrivate:       "*{sender} whispers to you:* {message}",
		AlreadyLinked:        "Your Discord account is already linked to a Minecraft account! Unlink the account '{nickname}' first.",
		LinkedSuccessfully:   "Successfully linked with Minecraft account '{nickname}'! You can now join the server!",
		InvalidLinkCode:      "Invalid link code '{code}'. Please check to make sure you typed it correctly!",
		LinkError:            "Unknown error while linking your account. Please contact the server administrator.",
		LinkRateLimited:      "Too many link attempts. Please wait a moment and try again.",
		NoSuchPlayer:         "No such player!",
		NoReplyTarget:        "You haven't messaged anyone yet! Send someone a message with /msg first.",
		ReplyToExisting:      "Reply to an existing message in order to respond!",
		DeathAlert:           "You died {when} and haven't respawned yet! Your stuff may despawn.",
	}
}
