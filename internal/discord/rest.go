package discord

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// restAPI is the part of the Discord REST API the bot uses
type restAPI interface {
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)
	ChannelMessageSendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	ChannelMessageEditComplex(ctx context.Context, edit *discordgo.MessageEdit) (*discordgo.Message, error)
	UserChannelCreate(ctx context.Context, userID string) (*discordgo.Channel, error)

	GuildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	GuildMemberRoleAdd(ctx context.Context, guildID, userID, roleID string) error

	ChannelWebhooks(ctx context.Context, channelID string) ([]*discordgo.Webhook, error)
	WebhookCreate(ctx context.Context, channelID, name string) (*discordgo.Webhook, error)
	WebhookDelete(ctx context.Context, webhookID string) error
	WebhookExecute(ctx context.Context, webhookID, token string, params *discordgo.WebhookParams) (*discordgo.Message, error)

	InteractionRespond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	FollowupMessageCreate(ctx context.Context, i *discordgo.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error)
}

// sessionAPI adapts a discordgo session to restAPI
type sessionAPI struct {
	s *discordgo.Session
}

func (a sessionAPI) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	return a.s.Channel(channelID, discordgo.WithContext(ctx))
}

func (a sessionAPI) ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	return a.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
}

func (a sessionAPI) ChannelMessageSendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return a.s.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
}

func (a sessionAPI) ChannelMessageEditComplex(ctx context.Context, edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	return a.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
}

func (a sessionAPI) UserChannelCreate(ctx context.Context, userID string) (*discordgo.Channel, error) {
	return a.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
}

func (a sessionAPI) GuildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	return a.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
}

func (a sessionAPI) GuildMemberRoleAdd(ctx context.Context, guildID, userID, roleID string) error {
	return a.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (a sessionAPI) ChannelWebhooks(ctx context.Context, channelID string) ([]*discordgo.Webhook, error) {
	return a.s.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
}

func (a sessionAPI) WebhookCreate(ctx context.Context, channelID, name string) (*discordgo.Webhook, error) {
	return a.s.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
}

func (a sessionAPI) WebhookDelete(ctx context.Context, webhookID string) error {
	return a.s.WebhookDelete(webhookID, discordgo.WithContext(ctx))
}

func (a sessionAPI) WebhookExecute(ctx context.Context, webhookID, token string, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return a.s.WebhookExecute(webhookID, token, true, params, discordgo.WithContext(ctx))
}

func (a sessionAPI) InteractionRespond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return a.s.InteractionRespond(i, resp, discordgo.WithContext(ctx))
}

func (a sessionAPI) FollowupMessageCreate(ctx context.Context, i *discordgo.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	return a.s.FollowupMessageCreate(i, true, params, discordgo.WithContext(ctx))
}

// isNotFound reports whether err is a 404 from Discord, such as an unknown member or a deleted webhook
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return true
	}
	return restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember
}

func isMaxWebhooks(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Message != nil &&
		restErr.Message.Code == discordgo.ErrCodeMaximumNumberOfWebhooksReached
}
