package storage

import "database/sql"

// migrateV001 creates the sessions collection and the flat settings
// namespace. Every statement uses IF NOT EXISTS for idempotency.
//
// AUTOINCREMENT keeps SQLite from handing out the id of a deleted row again.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			task_name   TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0 CHECK (duration_ms >= 0),
			start_time  TEXT NOT NULL,
			end_time    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_category ON sessions(category)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
