package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrCodeCollision means another account already holds the pending code
	ErrCodeCollision = errors.New("link code already in use")
	// ErrAlreadyLinked means the Discord account is bound to a different Minecraft account
	ErrAlreadyLinked = errors.New("discord account already linked")
	// ErrLinkInconsistent means a link completed but the account could not be read back
	ErrLinkInconsistent = errors.New("linked account vanished after update")
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const accountColumns = `id, username, nickname, link_state, link_value, link_issued_at,
	notify_online, notify_offline, death_alert_delay, last_reply_target, created_at`

func (s *Store) queryAccount(ctx context.Context, q queryer, where string, args ...any) (*domain.Account, error) {
	row := q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE "+where, args...)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// --- Account methods ---

// FindOrCreateByLogin returns the account for a Minecraft id, creating it on first login.
// A changed username is written back, and a username still held by another id
// (the name was transferred) is released from that stale holder first.
func (s *Store) FindOrCreateByLogin(ctx context.Context, username string, id uuid.UUID) (*domain.Account, error) {
	for attempt := 0; attempt < 2; attempt++ {
		acct, err := s.findOrCreate(ctx, username, id)
		if isUniqueViolation(err) {
			// Lost a race with a concurrent insert for the same identity, read it back
			continue
		}
		if err != nil {
			return nil, err
		}
		return acct, nil
	}
	return nil, fmt.Errorf("creating account %s: conflicting concurrent logins", id)
}

func (s *Store) findOrCreate(ctx context.Context, username string, id uuid.UUID) (*domain.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.queryAccount(ctx, tx, "id = ?", id.String())
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if acct != nil && acct.Username == username {
		return acct, nil
	}

	// Release the name from whoever held it before; their next login restores it
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET username = id WHERE username = ? AND id != ?
	`, username, id.String()); err != nil {
		return nil, fmt.Errorf("releasing username: %w", err)
	}

	if acct != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET username = ? WHERE id = ?`, username, id.String()); err != nil {
			return nil, fmt.Errorf("updating username: %w", err)
		}
		acct.Username = username
	} else {
		now := s.now().UTC().Truncate(time.Second)
		nickname := username
		var taken int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE nickname = ? COLLATE NOCASE`, nickname).Scan(&taken); err != nil {
			return nil, fmt.Errorf("checking nickname: %w", err)
		}
		if taken > 0 {
			// Somebody chose this name as their nickname; fall back to the immutable id
			nickname = id.String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, username, nickname, link_state, created_at)
			VALUES (?, ?, ?, 'unlinked', ?)
		`, id.String(), username, nickname, formatTimestamp(now)); err != nil {
			return nil, fmt.Errorf("inserting account: %w", err)
		}
		acct = &domain.Account{
			ID:        id,
			Username:  username,
			Nickname:  nickname,
			Link:      domain.Unlinked(),
			CreatedAt: now,
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return acct, nil
}

// SetPendingLink moves an account to pending with the given code, replacing any earlier code
func (s *Store) SetPendingLink(ctx context.Context, id uuid.UUID, code string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET link_state = 'pending', link_value = ?, link_issued_at = ?
		WHERE id = ?
	`, code, formatTimestamp(s.now()), id.String())
	if isUniqueViolation(err) {
		return ErrCodeCollision
	}
	if err != nil {
		return fmt.Errorf("setting pending link: %w", err)
	}
	return nil
}

// CompleteLink binds discordID to the account holding the pending code.
// It returns false when no account is pending with that code.
func (s *Store) CompleteLink(ctx context.Context, code, discordID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET link_state = 'linked', link_value = ?, link_issued_at = NULL
		WHERE link_state = 'pending' AND link_value = ?
	`, discordID, code)
	if isUniqueViolation(err) {
		return false, ErrAlreadyLinked
	}
	if err != nil {
		return false, fmt.Errorf("completing link: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	acct, err := s.AccountByDiscordID(ctx, discordID)
	if err != nil {
		return false, err
	}
	if acct == nil {
		return false, ErrLinkInconsistent
	}
	return true, nil
}

// AccountByID returns an account by Minecraft id
func (s *Store) AccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.queryAccount(ctx, s.db, "id = ?", id.String())
}

// AccountByUsername returns an account by current login name, ignoring case
func (s *Store) AccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return s.queryAccount(ctx, s.db, "username = ? COLLATE NOCASE", username)
}

// AccountByNickname returns an account by nickname, ignoring case
func (s *Store) AccountByNickname(ctx context.Context, nickname string) (*domain.Account, error) {
	return s.queryAccount(ctx, s.db, "nickname = ? COLLATE NOCASE", nickname)
}

// AccountByName resolves a name typed by a player: nickname first, then username
func (s *Store) AccountByName(ctx context.Context, name string) (*domain.Account, error) {
	acct, err := s.AccountByNickname(ctx, name)
	if err != nil || acct != nil {
		return acct, err
	}
	return s.AccountByUsername(ctx, name)
}

// AccountByDiscordID returns the account linked to a Discord user
func (s *Store) AccountByDiscordID(ctx context.Context, discordID string) (*domain.Account, error) {
	return s.queryAccount(ctx, s.db, "link_state = 'linked' AND link_value = ?", discordID)
}

// AccountByPendingCode returns the account waiting on code
func (s *Store) AccountByPendingCode(ctx context.Context, code string) (*domain.Account, error) {
	return s.queryAccount(ctx, s.db, "link_state = 'pending' AND link_value = ?", code)
}

// UpdateUsername sets the login name of an account
func (s *Store) UpdateUsername(ctx context.Context, id uuid.UUID, username string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET username = ? WHERE id = ?`, username, id.String())
	if err != nil {
		return fmt.Errorf("updating username: %w", err)
	}
	return nil
}

// UpdateNickname sets the display name of an account.
// It returns false when another account already uses the name as a username or nickname.
func (s *Store) UpdateNickname(ctx context.Context, id uuid.UUID, nickname string) (bool, error) {
	var taken int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM accounts
		WHERE id != ? AND (nickname = ? COLLATE NOCASE OR username = ? COLLATE NOCASE)
	`, id.String(), nickname, nickname).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("checking nickname: %w", err)
	}
	if taken > 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `UPDATE accounts SET nickname = ? WHERE id = ?`, nickname, id.String())
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("updating nickname: %w", err)
	}
	return true, nil
}

// SetNotifyWhileOnline sets whether private messages reach Discord while the player is connected
func (s *Store) SetNotifyWhileOnline(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET notify_online = ? WHERE id = ?`, enabled, id.String())
	if err != nil {
		return fmt.Errorf("updating notify while online: %w", err)
	}
	return nil
}

// SetNotifyWhileOffline sets whether private messages reach Discord while the player is away
func (s *Store) SetNotifyWhileOffline(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET notify_offline = ? WHERE id = ?`, enabled, id.String())
	if err != nil {
		return fmt.Errorf("updating notify while offline: %w", err)
	}
	return nil
}

// SetDeathAlertDelay sets how long after an unanswered death the player is alerted; zero disables it
func (s *Store) SetDeathAlertDelay(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET death_alert_delay = ? WHERE id = ?`, delay.Seconds(), id.String())
	if err != nil {
		return fmt.Errorf("updating death alert delay: %w", err)
	}
	return nil
}

// SetLastReplyTarget records who /r answers to
func (s *Store) SetLastReplyTarget(ctx context.Context, id uuid.UUID, target string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_reply_target = ? WHERE id = ?`, target, id.String())
	if err != nil {
		return fmt.Errorf("updating reply target: %w", err)
	}
	return nil
}

// UsernamesWithOfflineDMs returns the usernames that can be messaged while offline
func (s *Store) UsernamesWithOfflineDMs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username FROM accounts
		WHERE notify_offline = 1 AND link_state = 'linked'
		ORDER BY username COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListAccounts returns every account ordered by username
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY username COLLATE NOCASE")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	return accounts, rows.Err()
}

// AccountCounts summarizes the accounts table for the status API
type AccountCounts struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Linked  int `json:"linked"`
}

// CountAccounts returns account totals by link state
func (s *Store) CountAccounts(ctx context.Context) (AccountCounts, error) {
	var c AccountCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(link_state = 'pending'), 0),
		       COALESCE(SUM(link_state = 'linked'), 0)
		FROM accounts
	`).Scan(&c.Total, &c.Pending, &c.Linked)
	return c, err
}

// --- Direct message methods ---

// AddDirectMessage records a relayed DM so a Discord reply can be routed back
func (s *Store) AddDirectMessage(ctx context.Context, dm domain.DirectMessage) error {
	createdAt := dm.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discord_dms (message_id, sender_id, recipient_id, created_at)
		VALUES (?, ?, ?, ?)
	`, dm.MessageID, dm.SenderID, dm.RecipientID, formatTimestamp(createdAt))
	if err != nil {
		return fmt.Errorf("recording direct message: %w", err)
	}
	return nil
}

// DirectMessageByID returns the record for a relayed DM
func (s *Store) DirectMessageByID(ctx context.Context, messageID string) (*domain.DirectMessage, error) {
	var dm domain.DirectMessage
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id, sender_id, recipient_id, created_at FROM discord_dms WHERE message_id = ?
	`, messageID).Scan(&dm.MessageID, &dm.SenderID, &dm.RecipientID, &dm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dm, nil
}
