// Package admission decides whether a Minecraft login may enter the network
package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/blockrelay/blockrelay/internal/config"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/format"
	"github.com/blockrelay/blockrelay/internal/metrics"
	"github.com/google/uuid"
)

// Accounts creates accounts on first login
type Accounts interface {
	FindOrCreateByLogin(ctx context.Context, username string, id uuid.UUID) (*domain.Account, error)
}

// CodeIssuer hands out pending link codes
type CodeIssuer interface {
	Issue(ctx context.Context, id uuid.UUID) (string, error)
}

// MembershipChecker asks the chat platform whether a linked user may still play
type MembershipChecker interface {
	CheckMember(ctx context.Context, discordID string) (bool, error)
}

// LinkAnnouncer tells Discord that an unlinked player tried to join
type LinkAnnouncer interface {
	AnnounceLinkRequest(ctx context.Context, username string)
}

// Denial reasons, also used as metric labels
const (
	ReasonNeedsLink   = "needs_link"
	ReasonLeftDiscord = "left_discord"
	ReasonError       = "error"
)

// Decision is the result of one login attempt. Message is shown to a denied player
// and Code is set whenever the player still has to link.
type Decision struct {
	Allowed bool
	Reason  string
	Message string
	Code    string
	Account *domain.Account
}

// Controller applies the admission rules
type Controller struct {
	accounts  Accounts
	codes     CodeIssuer
	members   MembershipChecker
	announcer LinkAnnouncer
	messages  config.Messages
	logger    *slog.Logger
}

// NewController creates an admission controller
func NewController(accounts Accounts, codes CodeIssuer, members MembershipChecker, announcer LinkAnnouncer, messages config.Messages, logger *slog.Logger) *Controller {
	return &Controller{
		accounts:  accounts,
		codes:     codes,
		members:   members,
		announcer: announcer,
		messages:  messages,
		logger:    logger,
	}
}

// Check runs one login through admission. Any failure denies the login.
func (c *Controller) Check(ctx context.Context, username string, id uuid.UUID) Decision {
	d := c.check(ctx, username, id)
	if d.Allowed {
		metrics.LoginsTotal.WithLabelValues("allowed").Inc()
	} else {
		metrics.LoginsTotal.WithLabelValues(d.Reason).Inc()
	}
	return d
}

func (c *Controller) check(ctx context.Context, username string, id uuid.UUID) Decision {
	acct, err := c.accounts.FindOrCreateByLogin(ctx, username, id)
	if err != nil {
		c.logger.Error("admission_store_failed", "username", username, "minecraft_id", id.String(), "error", err)
		return c.errorDecision(nil)
	}

	switch acct.Link.Status {
	case domain.LinkLinked:
		member, err := c.members.CheckMember(ctx, acct.Link.DiscordID)
		if err != nil {
			c.logger.Warn("membership_check_failed",
				"username", username,
				"discord_id", acct.Link.DiscordID,
				"error", err,
			)
			return c.errorDecision(acct)
		}
		if !member {
			c.logger.Info("login_denied_not_member", "username", username, "discord_id", acct.Link.DiscordID)
			return Decision{Reason: ReasonLeftDiscord, Message: c.messages.LeftDiscord, Account: acct}
		}
		return Decision{Allowed: true, Account: acct}

	case domain.LinkPending:
		// Keep the code the player may already have written down
		code := acct.Link.Code
		c.announce(username)
		return c.needsLink(acct, code)

	default:
		code, err := c.codes.Issue(ctx, id)
		if err != nil {
			c.logger.Error("issue_link_code_failed", "username", username, "minecraft_id", id.String(), "error", err)
			return c.errorDecision(acct)
		}
		acct.Link = domain.Pending(code, time.Now())
		c.logger.Info("link_code_issued", "username", username, "minecraft_id", id.String())
		c.announce(username)
		return c.needsLink(acct, code)
	}
}

func (c *Controller) needsLink(acct *domain.Account, code string) Decision {
	return Decision{
		Reason:  ReasonNeedsLink,
		Message: format.Fill(c.messages.NeedsLink, "code", code, "username", acct.Username),
		Code:    code,
		Account: acct,
	}
}

func (c *Controller) errorDecision(acct *domain.Account) Decision {
	return Decision{Reason: ReasonError, Message: c.messages.AdmissionError, Account: acct}
}

// announce does not block the login reply
func (c *Controller) announce(username string) {
	if c.announcer == nil {
		return
	}
	go c.announcer.AnnounceLinkRequest(context.Background(), username)
}
