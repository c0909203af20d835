package db

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/tradewatch/agent/internal/errors"
	"github.com/tradewatch/agent/internal/models"
)

// Store provides queue and settings operations over the agent database.
// All mutating operations run inside a transaction and are serialized by
// a mutex held for the duration of one logical operation.
type Store struct {
	db *DB
	mu sync.Mutex
}

// NewStore creates a Store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Append persists a new queue entry for the event with retry_count 0 and
// no next_retry_at. A failed append means the event is NOT queued; the
// caller must surface the error instead of dropping the event silently.
func (s *Store) Append(ev *models.TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode trade event", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR IGNORE INTO pending_trades (event_id, payload, enqueued_at) VALUES (?, ?, ?)`,
		ev.ID, string(payload), time.Now().Unix(),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to save pending trade", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit pending trade", err)
	}
	return nil
}

// DueEntries returns entries eligible for transmission at now, oldest
// first. Entries with a future next_retry_at are excluded.
func (s *Store) DueEntries(now time.Time) ([]*models.QueueEntry, error) {
	rows, err := s.db.Query(
		`SELECT event_id, payload, enqueued_at, retry_count, last_error, next_retry_at
		 FROM pending_trades
		 WHERE next_retry_at IS NULL OR next_retry_at <= ?
		 ORDER BY enqueued_at ASC, event_id ASC`,
		now.Unix(),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load pending trades", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan pending trade", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate pending trades", err)
	}
	return entries, nil
}

// AllEntries returns every pending entry, oldest first, including those
// backed off onto a future retry.
func (s *Store) AllEntries() ([]*models.QueueEntry, error) {
	rows, err := s.db.Query(
		`SELECT event_id, payload, enqueued_at, retry_count, last_error, next_retry_at
		 FROM pending_trades
		 ORDER BY enqueued_at ASC, event_id ASC`,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load pending trades", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan pending trade", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate pending trades", err)
	}
	return entries, nil
}

// GetEntry returns the entry for the given event id, or nil when absent.
func (s *Store) GetEntry(eventID string) (*models.QueueEntry, error) {
	row := s.db.QueryRow(
		`SELECT event_id, payload, enqueued_at, retry_count, last_error, next_retry_at
		 FROM pending_trades WHERE event_id = ?`,
		eventID,
	)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load pending trade", err)
	}
	return entry, nil
}

// MarkDelivered deletes the entry for the given event id. Deleting an
// id that is no longer present is not an error.
func (s *Store) MarkDelivered(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pending_trades WHERE event_id = ?`, eventID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to remove pending trade", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit delivery", err)
	}
	return nil
}

// MarkFailed updates retry metadata in place without touching the payload.
// A nil nextRetryAt clears the scheduled retry, making the entry due
// immediately. Updating a missing id is not an error.
func (s *Store) MarkFailed(eventID string, retryCount int, lastError string, nextRetryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nextRetry interface{}
	if nextRetryAt != nil {
		nextRetry = nextRetryAt.Unix()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE pending_trades SET retry_count = ?, last_error = ?, next_retry_at = ? WHERE event_id = ?`,
		retryCount, lastError, nextRetry, eventID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to update retry info", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit retry info", err)
	}
	return nil
}

// PurgeOlderThan deletes entries enqueued more than maxAge ago and
// returns how many were removed. Bounds growth from permanently
// rejected events.
func (s *Store) PurgeOlderThan(maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM pending_trades WHERE enqueued_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to purge old trades", err)
	}
	deleted, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to commit purge", err)
	}
	return deleted, nil
}

// Count returns the total number of pending entries.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_trades`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count pending trades", err)
	}
	return n, nil
}

// GetSetting returns the value for key, or "" when the key is absent.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to load setting", err)
	}
	return value, nil
}

// SetSetting upserts one key/value pair.
func (s *Store) SetSetting(key, value string) error {
	return s.SetSettings(map[string]string{key: value})
}

// SetSettings upserts all pairs inside a single transaction. Token pairs
// are written through here so an access token is never persisted without
// its refresh token.
func (s *Store) SetSettings(pairs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for key, value := range pairs {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
			key, value, now,
		)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to save setting", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit settings", err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*models.QueueEntry, error) {
	var (
		entry     models.QueueEntry
		payload   string
		lastError sql.NullString
		nextRetry sql.NullInt64
	)
	if err := row.Scan(&entry.EventID, &payload, &entry.EnqueuedAt,
		&entry.RetryCount, &lastError, &nextRetry); err != nil {
		return nil, err
	}
	entry.Payload = json.RawMessage(payload)
	if lastError.Valid {
		entry.LastError = lastError.String
	}
	if nextRetry.Valid {
		v := nextRetry.Int64
		entry.NextRetryAt = &v
	}
	return &entry, nil
}
