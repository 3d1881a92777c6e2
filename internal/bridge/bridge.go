// Package bridge wires the proxy network and Discord to the linking and relay core
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blockrelay/blockrelay/internal/admission"
	"github.com/blockrelay/blockrelay/internal/alerts"
	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/discord"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/linking"
	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/blockrelay/blockrelay/internal/relay"
	"github.com/google/uuid"
)

// GameNetwork is the proxy side of the bridge
type GameNetwork interface {
	relay.Players
	Kick(id uuid.UUID, reason string)
}

// ChatPlatform is the Discord side of the bridge
type ChatPlatform interface {
	admission.MembershipChecker
	admission.LinkAnnouncer
	relay.Directory
	relay.DirectMessenger
	AvatarURL(ctx context.Context, discordID string) string
	Announce(ctx context.Context, a discord.Announcement) error
	AnnounceTitle(ctx context.Context, title string) error
	SendChat(ctx context.Context, post discord.ChatPost) error
	SendDeathAlert(ctx context.Context, discordID string, diedAt time.Time) error
}

// Store is everything the bridge and its components need from the account store
type Store interface {
	admission.Accounts
	relay.Accounts
	relay.MessageStore
	SetNotifyWhileOnline(ctx context.Context, id uuid.UUID, enabled bool) error
	SetNotifyWhileOffline(ctx context.Context, id uuid.UUID, enabled bool) error
	SetDeathAlertDelay(ctx context.Context, id uuid.UUID, delay time.Duration) error
}

// Options configures a Bridge
type Options struct {
	Store         Store
	Linker        *linking.Linker
	Game          GameNetwork
	Chat          ChatPlatform
	Messages      config.Messages
	HeadURL       string
	LoginTimeout  time.Duration
	AlertInterval time.Duration
	Logger        *slog.Logger
}

// Bridge handles events from both platforms
type Bridge struct {
	store    Store
	game     GameNetwork
	chat     ChatPlatform
	messages config.Messages
	headURL  string
	logger   *slog.Logger

	loginTimeout time.Duration

	admission *admission.Controller
	router    *relay.Router
	messenger *relay.Messenger
	alerts    *alerts.Scheduler

	events chan domain.Event
	now    func() time.Time

	wg    sync.WaitGroup // background loops
	sends sync.WaitGroup // outbound Discord calls
}

// New creates a bridge and the components it drives
func New(opts Options) *Bridge {
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 5 * time.Second
	}
	b := &Bridge{
		store:        opts.Store,
		game:         opts.Game,
		chat:         opts.Chat,
		messages:     opts.Messages,
		headURL:      opts.HeadURL,
		logger:       opts.Logger,
		loginTimeout: opts.LoginTimeout,
		events:       make(chan domain.Event, 100),
		now:          time.Now,
	}
	b.admission = admission.NewController(opts.Store, opts.Linker, opts.Chat, opts.Chat, opts.Messages, opts.Logger)
	b.router = relay.NewRouter(opts.Store, opts.Game, opts.Chat, opts.Messages, opts.Logger)
	b.messenger = relay.NewMessenger(opts.Store, opts.Game, opts.Chat, opts.Messages, opts.Logger)
	b.alerts = alerts.NewScheduler(opts.AlertInterval, b.fireDeathAlert)
	return b
}

// Events returns the event stream for websocket clients
func (b *Bridge) Events() <-chan domain.Event {
	return b.events
}

// Start announces that the server is up and runs the death alert sweep until ctx is done
func (b *Bridge) Start(ctx context.Context) {
	b.async(func() {
		if err := b.chat.AnnounceTitle(ctx, b.messages.ServerStarted); err != nil {
			b.logger.Warn("start_announcement_failed", "error", err)
		}
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.alerts.Run(ctx)
	}()
	b.logger.Info("bridge_started")
}

// Stop waits for background work and announces the shutdown. The stop
// announcement is sent synchronously so it goes out before Discord disconnects.
func (b *Bridge) Stop(ctx context.Context) {
	b.wg.Wait()
	b.sends.Wait()
	if err := b.chat.AnnounceTitle(ctx, b.messages.ServerStopped); err != nil {
		b.logger.Warn("stop_announcement_failed", "error", err)
	}
	b.logger.Info("bridge_stopped")
}

// PendingAlerts returns the number of scheduled death alerts
func (b *Bridge) PendingAlerts() int {
	return b.alerts.Pending()
}

// async runs an outbound call without holding up the event that caused it
func (b *Bridge) async(fn func()) {
	b.sends.Add(1)
	go func() {
		defer b.sends.Done()
		fn()
	}()
}

// emitEvent sends an event to the event channel
func (b *Bridge) emitEvent(eventType string, data any) {
	select {
	case b.events <- domain.Event{Type: eventType, Timestamp: b.now(), Data: data}:
	default:
		// Channel full, drop event
	}
}

func (b *Bridge) head(id uuid.UUID, username string) string {
	return discord.HeadURL(b.headURL, id, username)
}

func (b *Bridge) fireDeathAlert(ctx context.Context, a alerts.Alert) {
	acct, err := b.store.AccountByID(ctx, a.PlayerID)
	if err != nil {
		b.logger.Error("death_alert_lookup_failed", "minecraft_id", a.PlayerID.String(), "error", err)
		return
	}
	discordID := acct.DiscordID()
	if discordID == "" {
		return
	}
	if err := b.chat.SendDeathAlert(ctx, discordID, a.DiedAt); err != nil {
		b.logger.Warn("death_alert_failed", "minecraft_id", a.PlayerID.String(), "error", err)
		return
	}
	metrics.DeathAlertsSent.Inc()
	b.logger.Info("death_alert_sent", "minecraft_id", a.PlayerID.String(), "died_at", a.DiedAt)
}
