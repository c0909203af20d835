// Database schema migration management.
package db

import (
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/tradewatch/agent/internal/errors"
)

// migration is one versioned schema step. Statements run inside a single
// transaction together with the schema_version bump.
type migration struct {
	version     int
	description string
	statements  []string
}

// migrations are applied in order; never reorder or edit an applied entry,
// append a new version instead.
var migrations = []migration{
	{
		version:     1,
		description: "pending trades queue and settings",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS pending_trades (
				event_id TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				enqueued_at INTEGER NOT NULL,
				retry_count INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				next_retry_at INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pending_trades_due
				ON pending_trades (next_retry_at, enqueued_at)`,
			`CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
		},
	},
}

// migrate brings the schema up to the latest version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to create schema_version table", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("migration %d (%s) failed", m.version, m.description), err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().Unix(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
