package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/bwmarrin/discordgo"
	"github.com/jellydator/ttlcache/v3"
)

// ErrNotMember is returned by name lookups for users who are not in the guild
var ErrNotMember = errors.New("not a member of the discord server")

// members answers membership and display name questions for one guild.
// Lookups are cached, and a nil cached member means "not in the guild".
type members struct {
	api          restAPI
	guildID      string
	linkedRoleID string
	cache        *ttlcache.Cache[string, *discordgo.Member]
	breaker      *Breaker
	logger       *slog.Logger
}

func newMembers(api restAPI, guildID, linkedRoleID string, ttl time.Duration, breaker *Breaker, logger *slog.Logger) *members {
	cache := ttlcache.New[string, *discordgo.Member](
		ttlcache.WithTTL[string, *discordgo.Member](ttl),
	)
	return &members{
		api:          api,
		guildID:      guildID,
		linkedRoleID: linkedRoleID,
		cache:        cache,
		breaker:      breaker,
		logger:       logger,
	}
}

// lookup returns the guild member for userID, or nil when the user is not in the guild
func (m *members) lookup(ctx context.Context, userID string) (*discordgo.Member, error) {
	if item := m.cache.Get(userID); item != nil {
		return item.Value(), nil
	}

	var member *discordgo.Member
	err := m.breaker.Do(func() error {
		var err error
		member, err = m.api.GuildMember(ctx, m.guildID, userID)
		return err
	}, func(err error) bool { return !isNotFound(err) })

	switch {
	case err == nil:
	case isNotFound(err):
		member = nil
	default:
		metrics.DiscordErrors.WithLabelValues("guild_member").Inc()
		return nil, fmt.Errorf("fetching member %s: %w", userID, err)
	}

	m.cache.Set(userID, member, ttlcache.DefaultTTL)
	return member, nil
}

// checkMember reports whether userID is in the guild and holds the linked role, if one is configured
func (m *members) checkMember(ctx context.Context, userID string) (bool, error) {
	member, err := m.lookup(ctx, userID)
	if err != nil {
		return false, err
	}
	if member == nil {
		m.logger.Warn("member_not_in_guild", "discord_id", userID)
		return false, nil
	}
	if !m.hasLinkedRole(member) {
		m.logger.Warn("member_missing_linked_role", "discord_id", userID, "role_id", m.linkedRoleID)
		return false, nil
	}
	return true, nil
}

func (m *members) hasLinkedRole(member *discordgo.Member) bool {
	return m.linkedRoleID == "" || slices.Contains(member.Roles, m.linkedRoleID)
}

func (m *members) displayName(ctx context.Context, userID string) (string, error) {
	member, err := m.lookup(ctx, userID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", ErrNotMember
	}
	return effectiveName(member), nil
}

func (m *members) avatarURL(ctx context.Context, userID string) string {
	member, err := m.lookup(ctx, userID)
	if err != nil || member == nil {
		return ""
	}
	return member.AvatarURL("")
}

// update records a member seen in a gateway event
func (m *members) update(member *discordgo.Member) {
	if member == nil || member.User == nil {
		return
	}
	m.cache.Set(member.User.ID, member, ttlcache.DefaultTTL)
}

func (m *members) remove(userID string) {
	m.cache.Set(userID, nil, ttlcache.DefaultTTL)
}

// start runs expiry in the background until stop
func (m *members) start() {
	go m.cache.Start()
}

func (m *members) stop() {
	m.cache.Stop()
}

// effectiveName is the name Discord shows for a member: nickname, then global name, then username
func effectiveName(member *discordgo.Member) string {
	if member.Nick != "" {
		return member.Nick
	}
	if member.User == nil {
		return ""
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}
