package admission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/linking"
	"github.com/blockrelay/blockrelay/internal/storage"
	"github.com/google/uuid"
)

type fakeMembers struct {
	member bool
	err    error
	calls  int
}

func (f *fakeMembers) CheckMember(ctx context.Context, discordID string) (bool, error) {
	f.calls++
	return f.member, f.err
}

type fakeAnnouncer struct {
	names chan string
}

func (f *fakeAnnouncer) AnnounceLinkRequest(ctx context.Context, username string) {
	f.names <- username
}

type failingAccounts struct{}

func (failingAccounts) FindOrCreateByLogin(ctx context.Context, username string, id uuid.UUID) (*domain.Account, error) {
	return nil, errors.New("disk on fire")
}

type harness struct {
	ctrl      *Controller
	store     *storage.Store
	linker    *linking.Linker
	members   *fakeMembers
	announcer *fakeAnnouncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "admission.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	msgs := config.DefaultMessages()
	h := &harness{
		store:     store,
		linker:    linking.NewLinker(store, msgs, logger),
		members:   &fakeMembers{member: true},
		announcer: &fakeAnnouncer{names: make(chan string, 10)},
	}
	h.ctrl = NewController(store, h.linker, h.members, h.announcer, msgs, logger)
	return h
}

func (h *harness) expectAnnouncement(t *testing.T, username string) {
	t.Helper()
	select {
	case got := <-h.announcer.names:
		if got != username {
			t.Errorf("announced %q, want %q", got, username)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no link announcement")
	}
}

func TestCheck_UnlinkedGetsCode(t *testing.T) {
	h := newHarness(t)
	d := h.ctrl.Check(context.Background(), "Steve", uuid.New())

	if d.Allowed {
		t.Fatal("unlinked account admitted")
	}
	if d.Reason != ReasonNeedsLink {
		t.Errorf("reason = %q", d.Reason)
	}
	if !linking.ValidCode(d.Code) {
		t.Fatalf("code = %q", d.Code)
	}
	if !strings.Contains(d.Message, d.Code) {
		t.Errorf("message %q does not carry the code", d.Message)
	}
	if h.members.calls != 0 {
		t.Error("membership checked for an unlinked account")
	}
	h.expectAnnouncement(t, "Steve")
}

func TestCheck_PendingKeepsCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := uuid.New()

	first := h.ctrl.Check(ctx, "Steve", id)
	second := h.ctrl.Check(ctx, "Steve", id)
	if second.Allowed || second.Code != first.Code {
		t.Errorf("second attempt = %+v, want denial with code %s", second, first.Code)
	}
	h.expectAnnouncement(t, "Steve")
	h.expectAnnouncement(t, "Steve")
}

func TestCheck_LinkedMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := uuid.New()

	d := h.ctrl.Check(ctx, "Steve", id)
	if res := h.linker.Submit(ctx, "1111", d.Code); res.Outcome != linking.Linked {
		t.Fatalf("link outcome = %v", res.Outcome)
	}

	d = h.ctrl.Check(ctx, "Steve", id)
	if !d.Allowed {
		t.Fatalf("linked member denied: %+v", d)
	}
	if d.Account == nil || d.Account.DiscordID() != "1111" {
		t.Errorf("account = %+v", d.Account)
	}
}

func TestCheck_LeftDiscord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := uuid.New()

	d := h.ctrl.Check(ctx, "Steve", id)
	h.linker.Submit(ctx, "1111", d.Code)
	h.members.member = false

	d = h.ctrl.Check(ctx, "Steve", id)
	if d.Allowed || d.Reason != ReasonLeftDiscord {
		t.Fatalf("decision = %+v", d)
	}
	if d.Message != config.DefaultMessages().LeftDiscord {
		t.Errorf("message = %q", d.Message)
	}

	// The link itself is kept
	acct, err := h.store.AccountByID(ctx, id)
	if err != nil || acct.DiscordID() != "1111" {
		t.Errorf("account after denial = %+v, %v", acct, err)
	}
}

func TestCheck_FailsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := uuid.New()

	d := h.ctrl.Check(ctx, "Steve", id)
	h.linker.Submit(ctx, "1111", d.Code)
	h.members.err = errors.New("discord is down")

	d = h.ctrl.Check(ctx, "Steve", id)
	if d.Allowed || d.Reason != ReasonError {
		t.Fatalf("decision = %+v", d)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broken := NewController(failingAccounts{}, h.linker, h.members, nil, config.DefaultMessages(), logger)
	d = broken.Check(ctx, "Alex", uuid.New())
	if d.Allowed || d.Reason != ReasonError || d.Message == "" {
		t.Fatalf("store failure decision = %+v", d)
	}
}
