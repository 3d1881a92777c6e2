// Package linking issues link codes to Minecraft accounts and redeems them for Discord users
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/format"
	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/blockrelay/blockrelay/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const issueAttempts = 5

// Store is the subset of the account store the linker needs
type Store interface {
	SetPendingLink(ctx context.Context, id uuid.UUID, code string) error
	CompleteLink(ctx context.Context, code, discordID string) (bool, error)
	AccountByDiscordID(ctx context.Context, discordID string) (*domain.Account, error)
	AccountByPendingCode(ctx context.Context, code string) (*domain.Account, error)
}

// Outcome classifies a code submission
type Outcome int

const (
	Linked Outcome = iota
	AlreadyLinked
	InvalidCode
	RateLimited
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Linked:
		return "linked"
	case AlreadyLinked:
		return "already_linked"
	case InvalidCode:
		return "invalid_code"
	case RateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Result is the answer shown to the Discord user who submitted a code.
// Account is set for Linked and AlreadyLinked.
type Result struct {
	Outcome Outcome
	Message string
	Account *domain.Account
}

// Linker drives accounts from pending to linked
type Linker struct {
	store    Store
	messages config.Messages
	limiter  *limiterStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewLinker creates a linker. Each Discord user may submit five codes at once
// and one more every ten seconds after that.
func NewLinker(store Store, messages config.Messages, logger *slog.Logger) *Linker {
	return &Linker{
		store:    store,
		messages: messages,
		limiter:  newLimiterStore(rate.Every(10*time.Second), 5, 10*time.Minute),
		logger:   logger,
		now:      time.Now,
	}
}

// Issue gives an account a fresh pending code, replacing any earlier one
func (l *Linker) Issue(ctx context.Context, id uuid.UUID) (string, error) {
	// Ensure uniqueness by retrying on conflict
	for attempts := 0; attempts < issueAttempts; attempts++ {
		code, err := GenerateCode()
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		err = l.store.SetPendingLink(ctx, id, code)
		if errors.Is(err, storage.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", issueAttempts)
}

// Submit redeems a code typed by a Discord user
func (l *Linker) Submit(ctx context.Context, discordID, input string) Result {
	res := l.submit(ctx, discordID, NormalizeCode(input))
	metrics.LinkSubmissions.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (l *Linker) submit(ctx context.Context, discordID, code string) Result {
	if !l.limiter.allow(discordID, l.now()) {
		return Result{Outcome: RateLimited, Message: l.messages.LinkRateLimited}
	}

	existing, err := l.store.AccountByDiscordID(ctx, discordID)
	if err != nil {
		return l.failed("lookup_discord_account_failed", discordID, code, err)
	}
	if existing != nil {
		return Result{
			Outcome: AlreadyLinked,
			Message: format.Fill(l.messages.AlreadyLinked, "nickname", existing.Nickname, "username", existing.Username),
			Account: existing,
		}
	}

	invalid := Result{Outcome: InvalidCode, Message: format.Fill(l.messages.InvalidLinkCode, "code", code)}
	if !ValidCode(code) {
		return invalid
	}

	pending, err := l.store.AccountByPendingCode(ctx, code)
	if err != nil {
		return l.failed("lookup_pending_code_failed", discordID, code, err)
	}
	if pending == nil {
		return invalid
	}

	ok, err := l.store.CompleteLink(ctx, code, discordID)
	if errors.Is(err, storage.ErrAlreadyLinked) {
		// Another submission from this user linked a different account in between
		existing, lookupErr := l.store.AccountByDiscordID(ctx, discordID)
		if lookupErr == nil && existing != nil {
			return Result{
				Outcome: AlreadyLinked,
				Message: format.Fill(l.messages.AlreadyLinked, "nickname", existing.Nickname, "username", existing.Username),
				Account: existing,
			}
		}
	}
	if err != nil {
		return l.failed("complete_link_failed", discordID, code, err)
	}
	if !ok {
		// A concurrent submission of the same code won
		return invalid
	}

	pending.Link = domain.Linked(discordID)
	l.logger.Info("account_linked",
		"minecraft_id", pending.ID.String(),
		"nickname", pending.Nickname,
		"discord_id", discordID,
	)
	return Result{
		Outcome: Linked,
		Message: format.Fill(l.messages.LinkedSuccessfully, "nickname", pending.Nickname, "username", pending.Username),
		Account: pending,
	}
}

func (l *Linker) failed(event, discordID, code string, err error) Result {
	l.logger.Error(event, "discord_id", discordID, "code", code, "error", err)
	return Result{Outcome: Failed, Message: l.messages.LinkError}
}
