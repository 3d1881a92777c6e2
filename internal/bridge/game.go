package bridge

import (
	"context"

	"github.com/blockrelay/blockrelay/internal/discord"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/format"
	"github.com/blockrelay/blockrelay/internal/gamenet"
	"github.com/blockrelay/blockrelay/internal/pluginmsg"
	"github.com/google/uuid"
)

var _ gamenet.Handler = (*Bridge)(nil)

// HandleLogin runs admission for a player trying to join the network
func (b *Bridge) HandleLogin(ctx context.Context, req gamenet.LoginRequest) gamenet.LoginReply {
	ctx, cancel := context.WithTimeout(ctx, b.loginTimeout)
	defer cancel()

	d := b.admission.Check(ctx, req.Username, req.UUID)
	if !d.Allowed {
		b.emitEvent(domain.EventAdmissionDenied, domain.AdmissionDeniedEvent{
			Username: req.Username,
			Reason:   d.Reason,
		})
		return gamenet.LoginReply{Allowed: false, Reason: d.Message}
	}
	b.logger.Info("login_allowed", "username", req.Username, "minecraft_id", req.UUID.String())
	return gamenet.LoginReply{Allowed: true}
}

// HandleConnected announces a join or a server switch
func (b *Bridge) HandleConnected(ctx context.Context, ev gamenet.Connected) {
	var (
		message string
		color   int
	)
	if ev.PreviousServer != "" {
		message = format.Fill(b.messages.PlayerSwitch,
			"username", ev.Username,
			"old_server", ev.PreviousServer,
			"new_server", ev.Server,
		)
		color = discord.ColorSwitch
		b.emitEvent(domain.EventPlayerSwitch, domain.PlayerSwitchEvent{
			Username:  ev.Username,
			OldServer: ev.PreviousServer,
			NewServer: ev.Server,
		})
	} else {
		message = format.Fill(b.messages.PlayerJoin, "username", ev.Username)
		color = discord.ColorJoin
		b.emitEvent(domain.EventPlayerJoin, domain.PlayerJoinEvent{Username: ev.Username, Server: ev.Server})
	}

	b.game.Broadcast(message)
	b.announcePlayer(ctx, ev.UUID, ev.Username, discord.Announcement{Color: color, Description: message})
}

// HandleDisconnected announces a leave. Players refused at login were never announced.
func (b *Bridge) HandleDisconnected(ctx context.Context, ev gamenet.Disconnected) {
	if !ev.LoggedIn {
		return
	}

	// No reminders for players who are no longer playing
	b.alerts.Cancel(ev.UUID)

	message := format.Fill(b.messages.PlayerLeave, "username", ev.Username)
	b.game.Broadcast(message)
	b.announcePlayer(ctx, ev.UUID, ev.Username, discord.Announcement{Color: discord.ColorLeave, Description: message})
	b.emitEvent(domain.EventPlayerLeave, domain.PlayerLeaveEvent{Username: ev.Username})
}

// HandleChat relays a player's chat line to everyone in game and to Discord
func (b *Bridge) HandleChat(ctx context.Context, ev gamenet.Chat) {
	msg := domain.ChatMessage{
		UserID: ev.UUID.String(),
		Body:   ev.Message,
		Origin: ev.Server,
	}
	if msg.Origin == "" {
		msg.Origin = "no server"
	}

	text, id, ok := b.router.Route(ctx, msg)
	if !ok {
		return
	}
	b.emitEvent(domain.EventChat, domain.ChatEvent{
		Origin:    msg.Origin,
		Minecraft: id.MinecraftName,
		Discord:   id.DiscordName,
		Message:   text,
	})

	b.async(func() {
		post := discord.ChatPost{
			AuthorName: id.DiscordName,
			PlayerName: id.MinecraftName,
			PlayerIcon: b.head(ev.UUID, id.MinecraftName),
			Content:    ev.Message,
		}
		if id.Linked {
			post.AuthorIcon = b.chat.AvatarURL(ctx, id.DiscordID)
		}
		if err := b.chat.SendChat(ctx, post); err != nil {
			b.logger.Warn("discord_chat_send_failed", "minecraft_id", ev.UUID.String(), "error", err)
		}
	})
}

// HandlePlugin reacts to deaths, respawns and advancements reported by backend servers
func (b *Bridge) HandlePlugin(ctx context.Context, ev gamenet.Plugin) {
	msg, err := pluginmsg.Decode(ev.Data)
	if err != nil {
		b.logger.Warn("plugin_message_decode_failed", "server", ev.Server, "minecraft_id", ev.UUID.String(), "error", err)
		return
	}
	name := b.playerName(ctx, ev.UUID)

	switch m := msg.(type) {
	case pluginmsg.PlayerDeath:
		b.announcePlayer(ctx, ev.UUID, name, discord.Announcement{Color: discord.ColorDeath, Description: m.Message})
		b.emitEvent(domain.EventDeath, domain.DeathEvent{Username: name, Message: m.Message})
		b.scheduleDeathAlert(ctx, ev.UUID)

	case pluginmsg.PlayerRespawn:
		if b.alerts.Cancel(ev.UUID) {
			b.logger.Debug("death_alert_cancelled", "minecraft_id", ev.UUID.String())
		}

	case pluginmsg.PlayerAdvancement:
		color := discord.ColorAdvancement
		if m.Challenge {
			color = discord.ColorChallenge
		}
		b.announcePlayer(ctx, ev.UUID, name, discord.Announcement{
			Color:       color,
			Title:       m.Type,
			Description: m.Title,
			Footer:      m.Description,
		})
		b.emitEvent(domain.EventAdvancement, domain.AdvancementEvent{
			Username:    name,
			Type:        m.Type,
			Title:       m.Title,
			Description: m.Description,
			Challenge:   m.Challenge,
		})

	case pluginmsg.Unknown:
		b.logger.Info("plugin_message_unknown",
			"server", ev.Server,
			"event", m.Name,
			"username", name,
			"data", m.Raw,
		)
	}
}

func (b *Bridge) scheduleDeathAlert(ctx context.Context, id uuid.UUID) {
	acct, err := b.store.AccountByID(ctx, id)
	if err != nil {
		b.logger.Error("death_alert_lookup_failed", "minecraft_id", id.String(), "error", err)
		return
	}
	if acct == nil {
		return
	}
	if b.alerts.Schedule(id, b.now(), acct.DeathAlertDelay) {
		b.logger.Debug("death_alert_scheduled", "minecraft_id", id.String(), "delay", acct.DeathAlertDelay)
	}
}

// playerName prefers the live session's name and falls back to the stored one
func (b *Bridge) playerName(ctx context.Context, id uuid.UUID) string {
	if p, ok := b.game.Player(id); ok {
		return p.Username
	}
	if acct, err := b.store.AccountByID(ctx, id); err == nil && acct != nil {
		return acct.Username
	}
	return id.String()
}

func (b *Bridge) announcePlayer(ctx context.Context, id uuid.UUID, username string, a discord.Announcement) {
	a.PlayerName = username
	a.PlayerIcon = b.head(id, username)
	b.async(func() {
		if err := b.chat.Announce(ctx, a); err != nil {
			b.logger.Warn("discord_announce_failed", "username", username, "error", err)
		}
	})
}
