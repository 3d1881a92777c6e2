// Package discord is the bridge's Discord side: a bot session that relays chat
// through webhooks, answers membership checks and runs the account linking UI.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/format"
	"github.com/blockrelay/blockrelay/internal/linking"
	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/blockrelay/blockrelay/internal/relay"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// Embed colours
const (
	ColorJoin        = 0x00ff00
	ColorSwitch      = 0x0000ff
	ColorLeave       = 0xff0000
	ColorDeath       = 0xff7f00
	ColorAdvancement = 0x0000ff
	ColorChallenge   = 0x9400d3
	colorPrivate     = 0x00ffff
	colorAlert       = 0xff0000
)

const (
	handlerTimeout       = 10 * time.Second
	privateMessageFooter = "This is a private message."
)

// Linker redeems link codes submitted through the link modal
type Linker interface {
	Submit(ctx context.Context, discordID, input string) linking.Result
}

// Events receives what happens on Discord. Methods are called from gateway goroutines.
type Events interface {
	DiscordChat(ctx context.Context, msg domain.ChatMessage)
	DiscordReaction(ctx context.Context, reaction relay.Reaction)
	// DiscordReply handles a DM replying to repliedMessageID
	DiscordReply(ctx context.Context, discordUserID, repliedMessageID, body string) error
	// DiscordMemberLost is called when a user leaves the guild or loses the linked role
	DiscordMemberLost(ctx context.Context, discordUserID string)
	DiscordLinked(ctx context.Context, result linking.Result)
}

// Announcement is an embed posted to the chat channel under the bot's name
type Announcement struct {
	Color       int
	Title       string
	Description string
	PlayerName  string
	PlayerIcon  string
	Footer      string
}

// ChatPost is a Minecraft chat line posted through a webhook named after the sender
type ChatPost struct {
	AuthorName string
	AuthorIcon string
	PlayerName string
	PlayerIcon string
	Content    string
}

// Bot is a Discord session bound to one guild and chat channel
type Bot struct {
	session  *discordgo.Session
	api      restAPI
	cfg      config.DiscordConfig
	messages config.Messages
	linker   Linker
	logger   *slog.Logger

	breaker  *Breaker
	members  *members
	mentions *MentionIndex
	webhooks *webhooks

	ctx    context.Context
	events Events

	mu          sync.RWMutex
	selfID      string
	selfName    string
	selfAvatar  string
	channelName string
}

// New creates a bot for cfg. Call Open to connect.
func New(cfg config.DiscordConfig, messages config.Messages, linker Linker, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := newBot(sessionAPI{s: session}, cfg, messages, linker, logger)
	b.session = session
	return b, nil
}

func newBot(api restAPI, cfg config.DiscordConfig, messages config.Messages, linker Linker, logger *slog.Logger) *Bot {
	breaker := NewBreaker(5, 30*time.Second, 2)
	return &Bot{
		api:         api,
		cfg:         cfg,
		messages:    messages,
		linker:      linker,
		logger:      logger,
		breaker:     breaker,
		members:     newMembers(api, cfg.GuildID, cfg.LinkedRoleID, cfg.MemberCacheTTL, breaker, logger),
		mentions:    NewMentionIndex(),
		webhooks:    newWebhooks(api, cfg.ChatChannelID, logger),
		ctx:         context.Background(),
		channelName: "discord",
	}
}

// Open registers gateway handlers and connects. Events are delivered until Close.
func (b *Bot) Open(ctx context.Context, events Events) error {
	b.ctx = ctx
	b.events = events

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildMembersChunk)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberUpdate)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onMessageReactionAdd)
	b.session.AddHandler(b.onInteractionCreate)

	b.members.start()
	if err := b.session.Open(); err != nil {
		b.members.stop()
		return fmt.Errorf("opening discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway
func (b *Bot) Close() error {
	b.members.stop()
	return b.session.Close()
}

func (b *Bot) handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, handlerTimeout)
}

func (b *Bot) self() (id, name, avatar string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selfID, b.selfName, b.selfAvatar
}

// BreakerState reports whether membership checks currently reach Discord
func (b *Bot) BreakerState() BreakerState {
	return b.breaker.State()
}

// CheckMember reports whether a linked Discord user may still join the game
func (b *Bot) CheckMember(ctx context.Context, discordID string) (bool, error) {
	return b.members.checkMember(ctx, discordID)
}

// DisplayName returns the name the guild shows for discordID
func (b *Bot) DisplayName(ctx context.Context, discordID string) (string, error) {
	return b.members.displayName(ctx, discordID)
}

// AvatarURL returns the avatar for discordID, or "" when it cannot be resolved
func (b *Bot) AvatarURL(ctx context.Context, discordID string) string {
	return b.members.avatarURL(ctx, discordID)
}

// HeadURL renders a Minecraft head image URL template for a player
func HeadURL(template string, id uuid.UUID, username string) string {
	return format.Fill(template,
		"uuid", strings.ReplaceAll(id.String(), "-", ""),
		"username", username,
	)
}

// AnnounceTitle posts a title-only embed to the chat channel as the bot itself
func (b *Bot) AnnounceTitle(ctx context.Context, title string) error {
	_, err := b.api.ChannelMessageSendComplex(ctx, b.cfg.ChatChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{Title: title}},
	})
	if err != nil {
		metrics.DiscordErrors.WithLabelValues("announce").Inc()
		return fmt.Errorf("sending announcement: %w", err)
	}
	return nil
}

// Announce posts a player event to the chat channel
func (b *Bot) Announce(ctx context.Context, a Announcement) error {
	_, name, avatar := b.self()
	if name == "" {
		name = "blockrelay"
	}

	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Description,
		Color:       a.Color,
	}
	if a.PlayerName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: a.PlayerName, IconURL: a.PlayerIcon}
	}
	if a.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: a.Footer}
	}

	_, err := b.webhooks.execute(ctx, name, &discordgo.WebhookParams{
		Username:        name,
		AvatarURL:       avatar,
		Embeds:          []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	return err
}

// SendChat relays a Minecraft chat line, turning @name into mentions
func (b *Bot) SendChat(ctx context.Context, p ChatPost) error {
	_, err := b.webhooks.execute(ctx, p.AuthorName, &discordgo.WebhookParams{
		Username:  p.AuthorName,
		AvatarURL: p.AuthorIcon,
		Embeds: []*discordgo.MessageEmbed{{
			Description: b.mentions.Replace(p.Content),
			Author:      &discordgo.MessageEmbedAuthor{Name: p.PlayerName, IconURL: p.PlayerIcon},
		}},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	})
	if err != nil {
		return err
	}
	metrics.MessagesRelayed.WithLabelValues("to_discord").Inc()
	return nil
}

// AnnounceLinkRequest posts a welcome with a link button for a player who needs to link
func (b *Bot) AnnounceLinkRequest(ctx context.Context, username string) {
	_, err := b.api.ChannelMessageSendComplex(ctx, b.cfg.LinkChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Description: format.Fill(b.messages.PlayerJoinUnlinked, "username", username),
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Link Discord Account",
					Style:    discordgo.PrimaryButton,
					CustomID: linkButtonID,
				},
			}},
		},
	})
	if err != nil {
		metrics.DiscordErrors.WithLabelValues("link_announcement").Inc()
		b.logger.Warn("link_announcement_failed", "username", username, "error", err)
	}
}

// SendPrivateMessage DMs a relayed private message and returns the DM's message id
func (b *Bot) SendPrivateMessage(ctx context.Context, sender *domain.Account, recipientDiscordID, text string) (string, error) {
	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    sender.Nickname,
			IconURL: HeadURL(b.cfg.MinecraftHeadURL, sender.ID, sender.Nickname),
		},
		Description: text,
		Color:       colorPrivate,
		Footer:      &discordgo.MessageEmbedFooter{Text: privateMessageFooter},
	}
	msg, err := b.sendDM(ctx, recipientDiscordID, embed)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// SendDeathAlert DMs a player who has been dead for longer than their alert delay
func (b *Bot) SendDeathAlert(ctx context.Context, discordID string, diedAt time.Time) error {
	_, err := b.sendDM(ctx, discordID, &discordgo.MessageEmbed{
		Description: format.Fill(b.messages.DeathAlert, "when", fmt.Sprintf("<t:%d:R>", diedAt.Unix())),
		Color:       colorAlert,
	})
	return err
}

func (b *Bot) sendDM(ctx context.Context, userID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	channel, err := b.api.UserChannelCreate(ctx, userID)
	if err != nil {
		metrics.DiscordErrors.WithLabelValues("dm").Inc()
		return nil, fmt.Errorf("opening dm channel with %s: %w", userID, err)
	}
	msg, err := b.api.ChannelMessageSendComplex(ctx, channel.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		metrics.DiscordErrors.WithLabelValues("dm").Inc()
		return nil, fmt.Errorf("sending dm to %s: %w", userID, err)
	}
	return msg, nil
}
