package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/google/uuid"
)

func scanNullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanAccount scans a row selected with accountColumns
func scanAccount(s scanner) (*domain.Account, error) {
	var acct domain.Account
	var id, state string
	var linkValue, replyTarget sql.NullString
	var issuedAt sql.NullTime
	var delaySeconds float64

	err := s.Scan(&id, &acct.Username, &acct.Nickname, &state, &linkValue, &issuedAt,
		&acct.NotifyWhileOnline, &acct.NotifyWhileOffline, &delaySeconds, &replyTarget, &acct.CreatedAt)
	if err != nil {
		return nil, err
	}

	acct.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("account id %q: %w", id, err)
	}

	switch domain.LinkStatus(state) {
	case domain.LinkPending:
		acct.Link = domain.Pending(linkValue.String, issuedAt.Time)
	case domain.LinkLinked:
		acct.Link = domain.Linked(linkValue.String)
	default:
		acct.Link = domain.Unlinked()
	}

	acct.DeathAlertDelay = time.Duration(delaySeconds * float64(time.Second))
	acct.LastReplyTarget = scanNullString(replyTarget)
	return &acct, nil
}
