// Package gamenet talks to the Minecraft proxy over NATS and tracks who is online
package gamenet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Handler receives events from the proxy. Connected, Disconnected, Chat,
// Command and Plugin are called from a single goroutine in publish order.
type Handler interface {
	HandleLogin(ctx context.Context, req LoginRequest) LoginReply
	HandleConnected(ctx context.Context, ev Connected)
	HandleDisconnected(ctx context.Context, ev Disconnected)
	HandleChat(ctx context.Context, ev Chat)
	HandleCommand(ctx context.Context, ev Command)
	HandleSuggest(ctx context.Context, req SuggestRequest) SuggestReply
	HandlePlugin(ctx context.Context, ev Plugin)
}

// Client is the bridge's side of the proxy connection
type Client struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger

	mu      sync.RWMutex
	players map[uuid.UUID]domain.Player
	subs    []*nats.Subscription
}

// Connect dials the NATS server the proxy publishes to
func Connect(url, prefix string, logger *slog.Logger) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("blockrelay"),
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return NewClient(nc, prefix, logger), nil
}

// NewClient wraps an existing connection
func NewClient(nc *nats.Conn, prefix string, logger *slog.Logger) *Client {
	return &Client{
		nc:      nc,
		prefix:  strings.TrimSuffix(prefix, "."),
		logger:  logger,
		players: make(map[uuid.UUID]domain.Player),
	}
}

func (c *Client) subject(name string) string {
	return c.prefix + "." + name
}

// Start subscribes to the proxy subjects and dispatches to h until Close.
// Login and suggest requests are answered on their own subscriptions. Every
// other event arrives on one wildcard subscription, so events are handled one
// at a time in the order the proxy published them.
func (c *Client) Start(ctx context.Context, h Handler) error {
	subscribe := func(subject string, cb nats.MsgHandler) error {
		sub, err := c.nc.Subscribe(subject, cb)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
		return nil
	}

	if err := subscribe(c.subject(SubjectLogin), func(m *nats.Msg) {
		var req LoginRequest
		if !c.decode(m, &req) {
			c.respond(m, LoginReply{Allowed: false, Reason: "Malformed login request"})
			return
		}
		c.respond(m, h.HandleLogin(ctx, req))
	}); err != nil {
		return err
	}

	if err := subscribe(c.subject(SubjectSuggest), func(m *nats.Msg) {
		var req SuggestRequest
		if !c.decode(m, &req) {
			c.respond(m, SuggestReply{})
			return
		}
		c.respond(m, h.HandleSuggest(ctx, req))
	}); err != nil {
		return err
	}

	if err := subscribe(c.subject("*"), func(m *nats.Msg) {
		c.dispatch(ctx, h, m)
	}); err != nil {
		return err
	}
	return c.nc.Flush()
}

// dispatch handles one event from the ordered stream
func (c *Client) dispatch(ctx context.Context, h Handler, m *nats.Msg) {
	switch strings.TrimPrefix(m.Subject, c.prefix+".") {
	case SubjectConnected:
		var ev Connected
		if c.decode(m, &ev) {
			c.track(ev)
			h.HandleConnected(ctx, ev)
		}
	case SubjectDisconnected:
		var ev Disconnected
		if c.decode(m, &ev) {
			c.untrack(ev.UUID)
			h.HandleDisconnected(ctx, ev)
		}
	case SubjectChat:
		var ev Chat
		if c.decode(m, &ev) {
			h.HandleChat(ctx, ev)
		}
	case SubjectCommand:
		var ev Command
		if c.decode(m, &ev) {
			h.HandleCommand(ctx, ev)
		}
	case SubjectPlugin:
		var ev Plugin
		if c.decode(m, &ev) {
			h.HandlePlugin(ctx, ev)
		}
	}
	// login and suggest have their own subscriptions; send and kick are ours
}

func (c *Client) decode(m *nats.Msg, v any) bool {
	if err := json.Unmarshal(m.Data, v); err != nil {
		c.logger.Warn("gamenet_decode_failed", "subject", m.Subject, "error", err)
		return false
	}
	return true
}

func (c *Client) respond(m *nats.Msg, reply any) {
	data, err := json.Marshal(reply)
	if err != nil {
		c.logger.Error("gamenet_encode_failed", "subject", m.Subject, "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		c.logger.Warn("gamenet_respond_failed", "subject", m.Subject, "error", err)
	}
}

func (c *Client) track(ev Connected) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.players[ev.UUID]
	if !ok {
		p = domain.Player{ID: ev.UUID, JoinedAt: time.Now()}
	}
	p.Username = ev.Username
	p.Server = ev.Server
	c.players[ev.UUID] = p
	metrics.PlayersOnline.Set(float64(len(c.players)))
}

func (c *Client) untrack(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.players, id)
	metrics.PlayersOnline.Set(float64(len(c.players)))
}

// Player returns the live session for id
func (c *Client) Player(id uuid.UUID) (domain.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.players[id]
	return p, ok
}

// PlayerByName returns the live session with the given username, ignoring case
func (c *Client) PlayerByName(username string) (domain.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.players {
		if strings.EqualFold(p.Username, username) {
			return p, true
		}
	}
	return domain.Player{}, false
}

// Online returns every connected player ordered by username
func (c *Client) Online() []domain.Player {
	c.mu.RLock()
	players := make([]domain.Player, 0, len(c.players))
	for _, p := range c.players {
		players = append(players, p)
	}
	c.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool {
		return strings.ToLower(players[i].Username) < strings.ToLower(players[j].Username)
	})
	return players
}

// Broadcast shows a message to every connected player
func (c *Client) Broadcast(message string) {
	c.publish(SubjectSend, Send{Message: message})
}

// SendTo shows a message to one player
func (c *Client) SendTo(id uuid.UUID, message string) {
	c.publish(SubjectSend, Send{UUID: &id, Message: message})
}

// Kick disconnects a player with reason shown to them
func (c *Client) Kick(id uuid.UUID, reason string) {
	c.publish(SubjectKick, Kick{UUID: id, Reason: reason})
}

func (c *Client) publish(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("gamenet_encode_failed", "subject", c.subject(name), "error", err)
		return
	}
	if err := c.nc.Publish(c.subject(name), data); err != nil {
		c.logger.Warn("gamenet_publish_failed", "subject", c.subject(name), "error", err)
	}
}

// Close drains subscriptions and closes the connection
func (c *Client) Close() error {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}
