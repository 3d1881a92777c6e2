package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/linking"
	"github.com/blockrelay/blockrelay/internal/relay"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

var errNotFound = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

type executed struct {
	webhookID string
	params    *discordgo.WebhookParams
}

// fakeREST is an in-memory Discord
type fakeREST struct {
	mu sync.Mutex

	members     map[string]*discordgo.Member
	memberErr   error
	memberCalls int
	messages    map[string]*discordgo.Message
	sent        []sentMessage
	edits       []*discordgo.MessageEdit
	roleAdds    []string
	webhooks     []*discordgo.Webhook
	webhookLimit int
	deleted      []string
	executed    []executed
	executeErrs map[string]error
	nextID      int
	responses   []*discordgo.InteractionResponse
	followups   []*discordgo.WebhookParams
}

func newFakeREST() *fakeREST {
	return &fakeREST{
		members:     make(map[string]*discordgo.Member),
		messages:    make(map[string]*discordgo.Message),
		executeErrs: make(map[string]error),
	}
}

func (f *fakeREST) id() string {
	f.nextID++
	return fmt.Sprintf("%d", 1000+f.nextID)
}

func (f *fakeREST) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: channelID, Name: "minecraft-chat"}, nil
}

func (f *fakeREST) ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[messageID]; ok {
		return m, nil
	}
	return nil, errNotFound
}

func (f *fakeREST) ChannelMessageSendComplex(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: f.id(), ChannelID: channelID}, nil
}

func (f *fakeREST) ChannelMessageEditComplex(ctx context.Context, edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	return &discordgo.Message{ID: edit.ID, ChannelID: edit.Channel}, nil
}

func (f *fakeREST) UserChannelCreate(ctx context.Context, userID string) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + userID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *fakeREST) GuildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberCalls++
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return nil, errNotFound
}

func (f *fakeREST) GuildMemberRoleAdd(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleAdds = append(f.roleAdds, userID+":"+roleID)
	return nil
}

func (f *fakeREST) ChannelWebhooks(ctx context.Context, channelID string) ([]*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Webhook(nil), f.webhooks...), nil
}

func (f *fakeREST) WebhookCreate(ctx context.Context, channelID, name string) (*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.webhookLimit > 0 && len(f.webhooks) >= f.webhookLimit {
		return nil, &discordgo.RESTError{
			Response: &http.Response{StatusCode: http.StatusBadRequest},
			Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMaximumNumberOfWebhooksReached, Message: "Maximum number of webhooks reached (15)"},
		}
	}
	hook := &discordgo.Webhook{ID: f.id(), Name: name, Token: "token", Type: discordgo.WebhookTypeIncoming}
	f.webhooks = append(f.webhooks, hook)
	return hook, nil
}

func (f *fakeREST) WebhookDelete(ctx context.Context, webhookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, webhookID)
	for i, hook := range f.webhooks {
		if hook.ID == webhookID {
			f.webhooks = append(f.webhooks[:i], f.webhooks[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeREST) WebhookExecute(ctx context.Context, webhookID, token string, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.executeErrs[webhookID]; ok {
		return nil, err
	}
	f.executed = append(f.executed, executed{webhookID: webhookID, params: params})
	return &discordgo.Message{ID: f.id(), WebhookID: webhookID}, nil
}

func (f *fakeREST) InteractionRespond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeREST) FollowupMessageCreate(ctx context.Context, i *discordgo.Interaction, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, params)
	return &discordgo.Message{ID: f.id()}, nil
}

type fakeLinker struct {
	result    linking.Result
	submitted []string
}

func (l *fakeLinker) Submit(ctx context.Context, discordID, input string) linking.Result {
	l.submitted = append(l.submitted, discordID+":"+input)
	return l.result
}

type recordedEvents struct {
	chats     []domain.ChatMessage
	reactions []relay.Reaction
	replies   []string
	replyErr  error
	lost      []string
	linked    []linking.Result
}

func (e *recordedEvents) DiscordChat(ctx context.Context, msg domain.ChatMessage) {
	e.chats = append(e.chats, msg)
}
func (e *recordedEvents) DiscordReaction(ctx context.Context, r relay.Reaction) {
	e.reactions = append(e.reactions, r)
}
func (e *recordedEvents) DiscordReply(ctx context.Context, userID, repliedID, body string) error {
	e.replies = append(e.replies, userID+":"+repliedID+":"+body)
	return e.replyErr
}
func (e *recordedEvents) DiscordMemberLost(ctx context.Context, userID string) {
	e.lost = append(e.lost, userID)
}
func (e *recordedEvents) DiscordLinked(ctx context.Context, res linking.Result) {
	e.linked = append(e.linked, res)
}

func testConfig() config.DiscordConfig {
	return config.DiscordConfig{
		GuildID:          "guild",
		ChatChannelID:    "chat",
		LinkChannelID:    "link",
		LinkedRoleID:     "linked-role",
		MemberCacheTTL:   time.Minute,
		MinecraftHeadURL: "https://mc-heads.net/avatar/{uuid}",
	}
}

func newTestBot(t *testing.T) (*Bot, *fakeREST, *fakeLinker, *recordedEvents) {
	t.Helper()
	api := newFakeREST()
	linker := &fakeLinker{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := newBot(api, testConfig(), config.DefaultMessages(), linker, logger)
	events := &recordedEvents{}
	b.events = events
	b.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "bot", Username: "Relay"}})
	return b, api, linker, events
}

func member(id, username, nick string, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		GuildID: "guild",
		Nick:    nick,
		Roles:   roles,
		User:    &discordgo.User{ID: id, Username: username},
	}
}

func TestCheckMember(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	api.members["linked"] = member("linked", "alex", "", "linked-role")
	api.members["norole"] = member("norole", "steve", "")

	tests := []struct {
		id   string
		want bool
	}{
		{"linked", true},
		{"norole", false},
		{"gone", false},
	}
	for _, tt := range tests {
		got, err := b.CheckMember(context.Background(), tt.id)
		if err != nil {
			t.Fatalf("CheckMember(%s): %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("CheckMember(%s) = %v, want %v", tt.id, got, tt.want)
		}
	}

	// Answers are cached, including "not a member"
	calls := api.memberCalls
	b.CheckMember(context.Background(), "linked")
	b.CheckMember(context.Background(), "gone")
	if api.memberCalls != calls {
		t.Errorf("expected cached lookups, got %d new calls", api.memberCalls-calls)
	}
}

func TestCheckMember_OutageOpensBreaker(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	api.memberErr = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusBadGateway}}

	for i := 0; i < 5; i++ {
		if _, err := b.CheckMember(context.Background(), fmt.Sprintf("user%d", i)); err == nil {
			t.Fatal("expected error during outage")
		}
	}
	if b.BreakerState() != BreakerOpen {
		t.Fatalf("breaker = %s, want open", b.BreakerState())
	}

	calls := api.memberCalls
	_, err := b.CheckMember(context.Background(), "another")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if api.memberCalls != calls {
		t.Error("open breaker still called Discord")
	}
}

func TestDisplayName(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	api.members["a"] = member("a", "alex", "Alexandra")
	api.members["b"] = &discordgo.Member{User: &discordgo.User{ID: "b", Username: "bob", GlobalName: "Bobby"}}
	api.members["c"] = member("c", "carl", "")

	for id, want := range map[string]string{"a": "Alexandra", "b": "Bobby", "c": "carl"} {
		got, err := b.DisplayName(context.Background(), id)
		if err != nil || got != want {
			t.Errorf("DisplayName(%s) = %q, %v; want %q", id, got, err, want)
		}
	}
	if _, err := b.DisplayName(context.Background(), "nobody"); !errors.Is(err, ErrNotMember) {
		t.Errorf("unknown member err = %v", err)
	}
}

func TestMentionIndex(t *testing.T) {
	x := NewMentionIndex()
	x.Put(member("1", "alex", "Lexi"))
	x.Put(&discordgo.Member{User: &discordgo.User{ID: "2", Username: "bob", GlobalName: "Robert"}})

	tests := []struct {
		in, want string
	}{
		{"hi @alex", "hi <@1>"},
		{"@LEXI and @robert look", "<@1> and <@2> look"},
		{"mail me at me@bob", "mail me at me<@2>"},
		{"@nobody here", "@nobody here"},
		{"trailing @", "trailing @"},
		{"no mentions", "no mentions"},
	}
	for _, tt := range tests {
		if got := x.Replace(tt.in); got != tt.want {
			t.Errorf("Replace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// A nickname change drops the old name
	x.Put(member("1", "alex", "Al"))
	if _, ok := x.Lookup("lexi"); ok {
		t.Error("old nickname still indexed")
	}
	x.Remove("1")
	if _, ok := x.Lookup("alex"); ok {
		t.Error("removed member still indexed")
	}
}

func TestMemberEventsUpdateIndex(t *testing.T) {
	b, _, _, events := newTestBot(t)

	b.onGuildMembersChunk(nil, &discordgo.GuildMembersChunk{
		GuildID: "guild",
		Members: []*discordgo.Member{member("1", "alex", "", "linked-role")},
	})
	if id, ok := b.mentions.Lookup("alex"); !ok || id != "1" {
		t.Fatalf("chunk not indexed: %q %v", id, ok)
	}

	// Keeping the role is not a loss
	b.onGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: member("1", "alex", "", "linked-role")})
	if len(events.lost) != 0 {
		t.Fatalf("lost = %v", events.lost)
	}
	b.onGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: member("1", "alex", "")})
	b.onGuildMemberRemove(nil, &discordgo.GuildMemberRemove{Member: member("1", "alex", "")})
	if len(events.lost) != 2 {
		t.Errorf("lost = %v, want two notifications", events.lost)
	}
	if _, ok := b.mentions.Lookup("alex"); ok {
		t.Error("removed member still indexed")
	}
	if ok, _ := b.CheckMember(context.Background(), "1"); ok {
		t.Error("removed member still passes membership check")
	}
}

func TestWebhooks(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := b.SendChat(ctx, ChatPost{AuthorName: "Alex", PlayerName: "Steve", Content: "hi"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.SendChat(ctx, ChatPost{AuthorName: "Bob", PlayerName: "Notch", Content: "yo"}); err != nil {
		t.Fatal(err)
	}
	if len(api.webhooks) != 2 || len(api.executed) != 3 {
		t.Fatalf("webhooks = %d, executed = %d", len(api.webhooks), len(api.executed))
	}
	post := api.executed[0].params
	if post.Username != "Alex" || post.Embeds[0].Author.Name != "Steve" || post.Embeds[0].Description != "hi" {
		t.Errorf("post = %+v", post)
	}

	// A webhook deleted from the channel is recreated once
	api.executeErrs[api.webhooks[0].ID] = errNotFound
	if err := b.SendChat(ctx, ChatPost{AuthorName: "Alex", PlayerName: "Steve", Content: "again"}); err != nil {
		t.Fatal(err)
	}
	if len(api.webhooks) != 3 || len(api.executed) != 4 {
		t.Errorf("after recreate webhooks = %d, executed = %d", len(api.webhooks), len(api.executed))
	}
}

func (f *fakeREST) webhookID(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, hook := range f.webhooks {
		if hook.Name == name {
			return hook.ID
		}
	}
	return ""
}

func TestWebhooks_ChannelFull(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	ctx := context.Background()
	api.webhookLimit = 3
	api.webhooks = append(api.webhooks, &discordgo.Webhook{ID: "other-integration", Name: "CI"})

	send := func(author string) {
		t.Helper()
		if err := b.SendChat(ctx, ChatPost{AuthorName: author, PlayerName: author + "_mc", Content: "hi"}); err != nil {
			t.Fatalf("send as %s: %v", author, err)
		}
	}
	send("Alex")
	send("Bob")
	send("Alex")
	bobHook := api.webhookID("Bob")

	// The channel is full: Bob's hook is the least recently used and makes room
	send("Carol")
	if len(api.deleted) != 1 || api.deleted[0] != bobHook {
		t.Fatalf("deleted = %v, want [%s]", api.deleted, bobHook)
	}
	if got := api.executed[len(api.executed)-1].params.Username; got != "Carol" {
		t.Errorf("last post by %q", got)
	}
	if n := b.webhooks.count(); n != 2 {
		t.Errorf("cached webhooks = %d", n)
	}

	// Alex kept the cached hook
	created := len(api.webhooks)
	send("Alex")
	if len(api.webhooks) != created {
		t.Error("Alex's webhook was recreated")
	}
}

func TestWebhooks_Cap(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	ctx := context.Background()

	for i := 0; i <= maxWebhooks; i++ {
		if err := b.SendChat(ctx, ChatPost{AuthorName: fmt.Sprintf("player%d", i), Content: "hi"}); err != nil {
			t.Fatal(err)
		}
	}
	if n := b.webhooks.count(); n != maxWebhooks {
		t.Errorf("cached webhooks = %d, want %d", n, maxWebhooks)
	}
	if len(api.deleted) != 1 {
		t.Errorf("deleted = %v", api.deleted)
	}
}

func TestWebhookCleanup(t *testing.T) {
	api := newFakeREST()
	api.webhooks = []*discordgo.Webhook{
		{ID: "mine", Type: discordgo.WebhookTypeIncoming, User: &discordgo.User{ID: "bot"}},
		{ID: "theirs", Type: discordgo.WebhookTypeIncoming, User: &discordgo.User{ID: "someone"}},
		{ID: "follower", Type: discordgo.WebhookTypeChannelFollower, User: &discordgo.User{ID: "bot"}},
		{ID: "ownerless", Type: discordgo.WebhookTypeIncoming},
	}
	w := newWebhooks(api, "chat", slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := w.cleanup(context.Background(), "bot")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(api.deleted) != 1 || api.deleted[0] != "mine" {
		t.Errorf("deleted %d: %v", n, api.deleted)
	}
}

func TestChatMessages(t *testing.T) {
	b, _, _, events := newTestBot(t)

	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", GuildID: "guild", ChannelID: "chat", Content: "look",
		Author:      &discordgo.User{ID: "42", Username: "alex"},
		Attachments: []*discordgo.MessageAttachment{{}, {}},
	}})
	// Ignored: other channel, webhook, the bot itself
	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "guild", ChannelID: "other", Content: "x", Author: &discordgo.User{ID: "42"},
	}})
	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "guild", ChannelID: "chat", Content: "x", WebhookID: "w", Author: &discordgo.User{ID: "w"},
	}})
	b.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: "guild", ChannelID: "chat", Content: "x", Author: &discordgo.User{ID: "bot"},
	}})
	// Link previews arrive as updates without an edit timestamp
	b.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: &discordgo.Message{
		GuildID: "guild", ChannelID: "chat", Content: "see https://example.com", Author: &discordgo.User{ID: "42"},
		Embeds: []*discordgo.MessageEmbed{{URL: "https://example.com"}},
	}})
	editedAt := time.Now()
	b.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: &discordgo.Message{
		GuildID: "guild", ChannelID: "chat", Content: "fixed", Author: &discordgo.User{ID: "42"},
		EditedTimestamp: &editedAt,
	}})

	if len(events.chats) != 2 {
		t.Fatalf("chats = %+v", events.chats)
	}
	first := events.chats[0]
	want := domain.ChatMessage{UserID: "42", Body: "look [2 attachments]", Origin: "minecraft-chat", FromDiscord: true}
	if first != want {
		t.Errorf("chat = %+v, want %+v", first, want)
	}
	if !events.chats[1].Edited {
		t.Error("update not marked edited")
	}
}

func TestWithAttachments(t *testing.T) {
	tests := []struct {
		content string
		n       int
		want    string
	}{
		{"hi", 0, "hi"},
		{"hi", 1, "hi [1 attachment]"},
		{"", 3, "[3 attachments]"},
		{"", 0, ""},
	}
	for _, tt := range tests {
		if got := withAttachments(tt.content, tt.n); got != tt.want {
			t.Errorf("withAttachments(%q, %d) = %q, want %q", tt.content, tt.n, got, tt.want)
		}
	}
}

func TestDirectMessages(t *testing.T) {
	b, api, _, events := newTestBot(t)
	dm := func(m *discordgo.Message) {
		m.ChannelID = "dm-7"
		m.Author = &discordgo.User{ID: "7"}
		b.onMessageCreate(nil, &discordgo.MessageCreate{Message: m})
	}

	dm(&discordgo.Message{ID: "d1", Content: "hello?"})
	if len(api.sent) != 1 || api.sent[0].data.Content != b.messages.ReplyToExisting {
		t.Fatalf("plain DM answer = %+v", api.sent)
	}

	dm(&discordgo.Message{
		ID: "d2", Content: "sure", Type: discordgo.MessageTypeReply,
		MessageReference: &discordgo.MessageReference{MessageID: "relayed"},
	})
	if len(events.replies) != 1 || events.replies[0] != "7:relayed:sure" {
		t.Fatalf("replies = %v", events.replies)
	}
	if len(api.sent) != 1 {
		t.Errorf("successful reply produced an answer: %+v", api.sent)
	}

	events.replyErr = relay.ErrNoReplyRecord
	dm(&discordgo.Message{
		ID: "d3", Content: "?", Type: discordgo.MessageTypeReply,
		MessageReference: &discordgo.MessageReference{MessageID: "random"},
	})
	if len(api.sent) != 2 || api.sent[1].data.Content != b.messages.ReplyToExisting {
		t.Errorf("unknown reply answer = %+v", api.sent)
	}
}

func TestReactions(t *testing.T) {
	b, api, _, events := newTestBot(t)
	api.members["author"] = member("author", "carol", "Caz")
	api.messages["relayed"] = &discordgo.Message{
		ID: "relayed", WebhookID: "hook", Author: &discordgo.User{ID: "hook", Username: "Alex"},
		Embeds: []*discordgo.MessageEmbed{{Author: &discordgo.MessageEmbedAuthor{Name: "Steve"}}},
	}
	api.messages["plain"] = &discordgo.Message{ID: "plain", Author: &discordgo.User{ID: "author"}}

	react := func(messageID string) {
		b.onMessageReactionAdd(nil, &discordgo.MessageReactionAdd{
			MessageReaction: &discordgo.MessageReaction{
				UserID: "r", MessageID: messageID, ChannelID: "chat", GuildID: "guild",
				Emoji: discordgo.Emoji{Name: "👍"},
			},
			Member: member("r", "rita", ""),
		})
	}
	react("relayed")
	react("plain")

	want := []relay.Reaction{
		{From: "rita", To: "Steve", Emoji: "👍", OnMinecraftMessage: true},
		{From: "rita", To: "Caz", Emoji: "👍"},
	}
	if len(events.reactions) != len(want) {
		t.Fatalf("reactions = %+v", events.reactions)
	}
	for i := range want {
		if events.reactions[i] != want[i] {
			t.Errorf("reaction %d = %+v, want %+v", i, events.reactions[i], want[i])
		}
	}
}

func TestLinkButtonOpensModal(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.onInteractionCreate(nil, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		Data: discordgo.MessageComponentInteractionData{CustomID: linkButtonID},
	}})
	if len(api.responses) != 1 {
		t.Fatalf("responses = %d", len(api.responses))
	}
	resp := api.responses[0]
	if resp.Type != discordgo.InteractionResponseModal || resp.Data.CustomID != linkModalID {
		t.Errorf("response = %+v", resp)
	}
}

func modalSubmit(code string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionModalSubmit,
		Member:  member("42", "alex", ""),
		Message: &discordgo.Message{ID: "announce", ChannelID: "link"},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: linkModalID,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: linkCodeInputID, Value: code},
				}},
			},
		},
	}}
}

func TestLinkModal_Linked(t *testing.T) {
	b, api, linker, events := newTestBot(t)
	acct := &domain.Account{ID: uuid.New(), Username: "Steve", Nickname: "Steve", Link: domain.Linked("42")}
	linker.result = linking.Result{Outcome: linking.Linked, Message: "linked!", Account: acct}

	b.onInteractionCreate(nil, modalSubmit("abc123"))

	if len(linker.submitted) != 1 || linker.submitted[0] != "42:abc123" {
		t.Fatalf("submitted = %v", linker.submitted)
	}
	if len(api.followups) != 1 || api.followups[0].Content != "linked!" {
		t.Errorf("followups = %+v", api.followups)
	}
	if len(api.edits) != 1 {
		t.Fatalf("edits = %d", len(api.edits))
	}
	edit := api.edits[0]
	if edit.ID != "announce" || edit.Components == nil || len(*edit.Components) != 0 {
		t.Errorf("edit did not clear components: %+v", edit)
	}
	if got := (*edit.Embeds)[0].Description; !strings.Contains(got, "Steve") {
		t.Errorf("welcome = %q", got)
	}
	if len(api.roleAdds) != 1 || api.roleAdds[0] != "42:linked-role" {
		t.Errorf("role adds = %v", api.roleAdds)
	}
	if len(events.linked) != 1 {
		t.Errorf("linked events = %d", len(events.linked))
	}
}

func TestLinkModal_Invalid(t *testing.T) {
	b, api, linker, events := newTestBot(t)
	linker.result = linking.Result{Outcome: linking.InvalidCode, Message: "bad code"}

	b.onInteractionCreate(nil, modalSubmit("zzzzzz"))

	if len(api.followups) != 1 || api.followups[0].Content != "bad code" {
		t.Errorf("followups = %+v", api.followups)
	}
	if len(api.edits) != 0 || len(api.roleAdds) != 0 || len(events.linked) != 0 {
		t.Error("side effects ran for an invalid code")
	}
}

func TestSendPrivateMessage(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	sender := &domain.Account{ID: id, Nickname: "Notch"}

	msgID, err := b.SendPrivateMessage(context.Background(), sender, "99", "psst")
	if err != nil {
		t.Fatal(err)
	}
	if msgID == "" {
		t.Error("empty message id")
	}
	sent := api.sent[len(api.sent)-1]
	if sent.channelID != "dm-99" {
		t.Errorf("channel = %s", sent.channelID)
	}
	embed := sent.data.Embeds[0]
	if embed.Author.Name != "Notch" ||
		embed.Author.IconURL != "https://mc-heads.net/avatar/069a79f444e94726a5befca90e38aaf5" ||
		embed.Description != "psst" || embed.Footer.Text != privateMessageFooter {
		t.Errorf("embed = %+v", embed)
	}
}

func TestSendDeathAlert(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	died := time.Unix(1700000000, 0)
	if err := b.SendDeathAlert(context.Background(), "99", died); err != nil {
		t.Fatal(err)
	}
	got := api.sent[len(api.sent)-1].data.Embeds[0].Description
	if !strings.Contains(got, "<t:1700000000:R>") {
		t.Errorf("alert = %q", got)
	}
}
