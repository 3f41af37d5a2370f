package storage

import "database/sql"

// migrateV002 indexes start_time, the dedup key used by Import.
func migrateV002(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time)`)
	return err
}
