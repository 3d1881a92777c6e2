package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustLogin(t *testing.T, s *Store, username string, id uuid.UUID) *domain.Account {
	t.Helper()
	acct, err := s.FindOrCreateByLogin(context.Background(), username, id)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return acct
}

func TestFindOrCreateByLogin_Idempotent(t *testing.T) {
	s := openTestStore(t)
	id := uuid.New()

	first := mustLogin(t, s, "Steve", id)
	second := mustLogin(t, s, "Steve", id)

	if first.ID != second.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if second.Nickname != "Steve" {
		t.Errorf("nickname = %q, want Steve", second.Nickname)
	}
	if second.Link.Status != domain.LinkUnlinked {
		t.Errorf("link status = %q, want unlinked", second.Link.Status)
	}

	counts, err := s.CountAccounts(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Total != 1 {
		t.Errorf("total accounts = %d, want 1", counts.Total)
	}
}

func TestFindOrCreateByLogin_UsernameChange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	mustLogin(t, s, "Steve", id)
	acct := mustLogin(t, s, "Steve2", id)
	if acct.Username != "Steve2" {
		t.Fatalf("username = %q, want Steve2", acct.Username)
	}
	if acct.Nickname != "Steve" {
		t.Errorf("nickname changed to %q", acct.Nickname)
	}

	old, err := s.AccountByUsername(ctx, "Steve")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if old != nil {
		t.Errorf("old username still resolves to %s", old.ID)
	}
}

func TestFindOrCreateByLogin_NameTransfer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	oldOwner, newOwner := uuid.New(), uuid.New()

	mustLogin(t, s, "Alex", oldOwner)
	acct := mustLogin(t, s, "Alex", newOwner)
	if acct.ID != newOwner {
		t.Fatalf("got account %s, want %s", acct.ID, newOwner)
	}

	got, err := s.AccountByUsername(ctx, "Alex")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.ID != newOwner {
		t.Fatalf("username resolves to %v, want %s", got, newOwner)
	}
	// The new owner's nickname cannot be Alex because the old owner still has it
	if acct.Nickname == "Alex" {
		t.Errorf("nickname collided with previous owner")
	}
}

func TestLinkFlow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()
	mustLogin(t, s, "Steve", id)

	if err := s.SetPendingLink(ctx, id, "ABC123"); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	pending, err := s.AccountByPendingCode(ctx, "ABC123")
	if err != nil || pending == nil {
		t.Fatalf("pending lookup: %v, %v", pending, err)
	}
	if pending.Link.Code != "ABC123" || pending.Link.IssuedAt.IsZero() {
		t.Errorf("unexpected pending state %+v", pending.Link)
	}

	ok, err := s.CompleteLink(ctx, "ABC123", "1111")
	if err != nil || !ok {
		t.Fatalf("complete link: ok=%v err=%v", ok, err)
	}

	// A code can only be redeemed once
	ok, err = s.CompleteLink(ctx, "ABC123", "2222")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if ok {
		t.Fatal("code redeemed twice")
	}

	linked, err := s.AccountByDiscordID(ctx, "1111")
	if err != nil || linked == nil {
		t.Fatalf("discord lookup: %v, %v", linked, err)
	}
	if linked.ID != id || linked.DiscordID() != "1111" {
		t.Errorf("linked account = %+v", linked)
	}
}

func TestSupersededCodeFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()
	mustLogin(t, s, "Steve", id)

	if err := s.SetPendingLink(ctx, id, "AAAAAA"); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	if err := s.SetPendingLink(ctx, id, "BBBBBB"); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	ok, err := s.CompleteLink(ctx, "AAAAAA", "1111")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ok {
		t.Fatal("superseded code linked the account")
	}
}

func TestPendingCodeCollision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	mustLogin(t, s, "Steve", a)
	mustLogin(t, s, "Alex", b)

	if err := s.SetPendingLink(ctx, a, "SAME00"); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	if err := s.SetPendingLink(ctx, b, "SAME00"); !errors.Is(err, ErrCodeCollision) {
		t.Fatalf("err = %v, want ErrCodeCollision", err)
	}
}

func TestDiscordIDLinkedOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	mustLogin(t, s, "Steve", a)
	mustLogin(t, s, "Alex", b)

	if err := s.SetPendingLink(ctx, a, "CODEAA"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPendingLink(ctx, b, "CODEBB"); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.CompleteLink(ctx, "CODEAA", "1111"); err != nil || !ok {
		t.Fatalf("first link: ok=%v err=%v", ok, err)
	}

	ok, err := s.CompleteLink(ctx, "CODEBB", "1111")
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("err = %v, want ErrAlreadyLinked", err)
	}
	if ok {
		t.Fatal("second account linked to the same discord id")
	}

	acct, err := s.AccountByID(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Link.IsPending() || acct.Link.Code != "CODEBB" {
		t.Errorf("second account state = %+v, want still pending", acct.Link)
	}
}

func TestPreferences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()
	mustLogin(t, s, "Steve", id)

	if err := s.SetNotifyWhileOnline(ctx, id, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetNotifyWhileOffline(ctx, id, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDeathAlertDelay(ctx, id, 90*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastReplyTarget(ctx, id, "Alex"); err != nil {
		t.Fatal(err)
	}

	acct, err := s.AccountByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.NotifyWhileOnline || !acct.NotifyWhileOffline {
		t.Errorf("notify flags = %v/%v", acct.NotifyWhileOnline, acct.NotifyWhileOffline)
	}
	if acct.DeathAlertDelay != 90*time.Second {
		t.Errorf("death alert delay = %v", acct.DeathAlertDelay)
	}
	if acct.LastReplyTarget == nil || *acct.LastReplyTarget != "Alex" {
		t.Errorf("last reply target = %v", acct.LastReplyTarget)
	}
}

func TestUsernamesWithOfflineDMs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustLogin(t, s, "zed", a)
	mustLogin(t, s, "Amy", b)
	mustLogin(t, s, "Bob", c)

	for i, id := range []uuid.UUID{a, b} {
		code := []string{"CODE01", "CODE02"}[i]
		if err := s.SetPendingLink(ctx, id, code); err != nil {
			t.Fatal(err)
		}
		if _, err := s.CompleteLink(ctx, code, code+"-discord"); err != nil {
			t.Fatal(err)
		}
		if err := s.SetNotifyWhileOffline(ctx, id, true); err != nil {
			t.Fatal(err)
		}
	}
	// Unlinked accounts are never offered even with the flag set
	if err := s.SetNotifyWhileOffline(ctx, c, true); err != nil {
		t.Fatal(err)
	}

	names, err := s.UsernamesWithOfflineDMs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "Amy" || names[1] != "zed" {
		t.Errorf("names = %v, want [Amy zed]", names)
	}
}

func TestUpdateNickname(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	mustLogin(t, s, "Steve", a)
	mustLogin(t, s, "Alex", b)

	ok, err := s.UpdateNickname(ctx, a, "alex")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("nickname matching another username was accepted")
	}

	ok, err = s.UpdateNickname(ctx, a, "Stevie")
	if err != nil || !ok {
		t.Fatalf("rename: ok=%v err=%v", ok, err)
	}
	acct, err := s.AccountByName(ctx, "stevie")
	if err != nil || acct == nil || acct.ID != a {
		t.Fatalf("AccountByName(stevie) = %v, %v", acct, err)
	}
	acct, err = s.AccountByName(ctx, "Steve")
	if err != nil || acct == nil || acct.ID != a {
		t.Fatalf("AccountByName falls back to username: %v, %v", acct, err)
	}
}

func TestDirectMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	missing, err := s.DirectMessageByID(ctx, "404")
	if err != nil || missing != nil {
		t.Fatalf("missing record = %v, %v", missing, err)
	}

	rec := domain.DirectMessage{MessageID: "900", SenderID: "1111", RecipientID: "2222"}
	if err := s.AddDirectMessage(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.AddDirectMessage(ctx, rec); err == nil {
		t.Error("duplicate message id accepted")
	}

	got, err := s.DirectMessageByID(ctx, "900")
	if err != nil || got == nil {
		t.Fatalf("lookup = %v, %v", got, err)
	}
	if got.SenderID != "1111" || got.RecipientID != "2222" || got.CreatedAt.IsZero() {
		t.Errorf("record = %+v", got)
	}
}

func TestFindOrCreateByLogin_Concurrent(t *testing.T) {
	s := openTestStore(t)
	id := uuid.New()

	const n = 16
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acct, err := s.FindOrCreateByLogin(context.Background(), "Steve", id)
			errs[i] = err
			if acct != nil {
				ids[i] = acct.ID
			}
		}()
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("login %d: %v", i, errs[i])
		}
		if ids[i] != id {
			t.Errorf("login %d returned id %s, want %s", i, ids[i], id)
		}
	}
	counts, err := s.CountAccounts(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Total != 1 {
		t.Errorf("total accounts = %d, want 1", counts.Total)
	}
}

func TestFindOrCreateByLogin_NicknameTakenIgnoresCase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := uuid.New()
	mustLogin(t, s, "Steve", a)
	if ok, err := s.UpdateNickname(ctx, a, "Hero"); err != nil || !ok {
		t.Fatalf("rename: ok=%v err=%v", ok, err)
	}

	b := uuid.New()
	acct := mustLogin(t, s, "hero", b)
	if acct.Nickname != b.String() {
		t.Errorf("nickname = %q, want fallback %q", acct.Nickname, b.String())
	}
}

func TestUpdatesWrapErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()
	mustLogin(t, s, "Steve", id)
	s.Close()

	checks := []struct {
		op   string
		err  error
		want string
	}{
		{"UpdateUsername", s.UpdateUsername(ctx, id, "Alex"), "updating username"},
		{"SetNotifyWhileOnline", s.SetNotifyWhileOnline(ctx, id, true), "updating notify while online"},
		{"SetNotifyWhileOffline", s.SetNotifyWhileOffline(ctx, id, true), "updating notify while offline"},
		{"SetDeathAlertDelay", s.SetDeathAlertDelay(ctx, id, time.Minute), "updating death alert delay"},
		{"SetLastReplyTarget", s.SetLastReplyTarget(ctx, id, "Alex"), "updating reply target"},
	}
	_, nickErr := s.UpdateNickname(ctx, id, "Stevie")
	checks = append(checks, struct {
		op   string
		err  error
		want string
	}{"UpdateNickname", nickErr, "checking nickname"})

	for _, c := range checks {
		if c.err == nil {
			t.Errorf("%s on closed store succeeded", c.op)
			continue
		}
		if !strings.HasPrefix(c.err.Error(), c.want+": ") {
			t.Errorf("%s error = %q, want %q prefix", c.op, c.err, c.want)
		}
		if errors.Unwrap(c.err) == nil {
			t.Errorf("%s error is not wrapped", c.op)
		}
	}
}
