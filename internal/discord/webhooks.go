package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/bwmarrin/discordgo"
)

// maxWebhooks leaves part of Discord's per-channel limit of 15 to other integrations
const maxWebhooks = 10

// webhooks owns one chat channel webhook per display name, so Discord
// notifications show each player as a separate author. The least recently
// used webhook is deleted when the channel runs out of room.
type webhooks struct {
	api       restAPI
	channelID string
	logger    *slog.Logger

	mu    sync.Mutex
	hooks map[string]*webhookEntry
	seq   uint64
}

type webhookEntry struct {
	hook *discordgo.Webhook
	used uint64
}

func newWebhooks(api restAPI, channelID string, logger *slog.Logger) *webhooks {
	return &webhooks{
		api:       api,
		channelID: channelID,
		logger:    logger,
		hooks:     make(map[string]*webhookEntry),
	}
}

// cleanup deletes incoming webhooks left behind in the channel by earlier runs of this bot
func (w *webhooks) cleanup(ctx context.Context, selfID string) (int, error) {
	existing, err := w.api.ChannelWebhooks(ctx, w.channelID)
	if err != nil {
		return 0, fmt.Errorf("listing webhooks: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	deleted := 0
	for _, hook := range existing {
		if hook.Type != discordgo.WebhookTypeIncoming || hook.User == nil || hook.User.ID != selfID {
			continue
		}
		if err := w.api.WebhookDelete(ctx, hook.ID); err != nil {
			w.logger.Warn("webhook_delete_failed", "webhook_id", hook.ID, "error", err)
			continue
		}
		deleted++
	}
	w.hooks = make(map[string]*webhookEntry)
	return deleted, nil
}

// execute posts params through the webhook named name, creating it on first
// use and recreating it once if it was deleted from the channel
func (w *webhooks) execute(ctx context.Context, name string, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	hook, err := w.get(ctx, name)
	if err != nil {
		return nil, err
	}

	msg, err := w.api.WebhookExecute(ctx, hook.ID, hook.Token, params)
	if err != nil && isNotFound(err) {
		w.forget(name, hook)
		if hook, err = w.get(ctx, name); err != nil {
			return nil, err
		}
		msg, err = w.api.WebhookExecute(ctx, hook.ID, hook.Token, params)
	}
	if err != nil {
		metrics.DiscordErrors.WithLabelValues("webhook_execute").Inc()
		return nil, fmt.Errorf("executing webhook %q: %w", name, err)
	}
	return msg, nil
}

func (w *webhooks) get(ctx context.Context, name string) (*discordgo.Webhook, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	if e, ok := w.hooks[name]; ok {
		e.used = w.seq
		return e.hook, nil
	}

	if len(w.hooks) >= maxWebhooks {
		w.evictLocked(ctx)
	}
	hook, err := w.api.WebhookCreate(ctx, w.channelID, name)
	if err != nil && isMaxWebhooks(err) && w.evictLocked(ctx) {
		hook, err = w.api.WebhookCreate(ctx, w.channelID, name)
	}
	if err != nil {
		metrics.DiscordErrors.WithLabelValues("webhook_create").Inc()
		return nil, fmt.Errorf("creating webhook %q: %w", name, err)
	}
	w.hooks[name] = &webhookEntry{hook: hook, used: w.seq}
	w.logger.Debug("webhook_created", "name", name, "webhook_id", hook.ID)
	return hook, nil
}

// evictLocked deletes the least recently used webhook. w.mu must be held.
func (w *webhooks) evictLocked(ctx context.Context) bool {
	var (
		oldest string
		entry  *webhookEntry
	)
	for name, e := range w.hooks {
		if entry == nil || e.used < entry.used {
			oldest, entry = name, e
		}
	}
	if entry == nil {
		return false
	}

	if err := w.api.WebhookDelete(ctx, entry.hook.ID); err != nil && !isNotFound(err) {
		w.logger.Warn("webhook_evict_failed", "name", oldest, "webhook_id", entry.hook.ID, "error", err)
		return false
	}
	delete(w.hooks, oldest)
	w.logger.Debug("webhook_evicted", "name", oldest, "webhook_id", entry.hook.ID)
	return true
}

func (w *webhooks) forget(name string, hook *discordgo.Webhook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.hooks[name]; ok && e.hook == hook {
		delete(w.hooks, name)
	}
}

func (w *webhooks) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hooks)
}
