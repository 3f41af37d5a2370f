package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Open opens the SQLite database at path, creating its directory when
// needed, runs migrations, and returns a ready-to-use store together with
// the underlying *sql.DB. Any failure is reported as ErrStorageUnavailable.
func Open(path string, opts ...Option) (*SQLiteStore, *sql.DB, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("%w: create database directory: %w", ErrStorageUnavailable, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open database: %w", ErrStorageUnavailable, err)
	}
	// One connection: an in-memory database lives and dies with its
	// connection, and the application has a single writer anyway.
	db.SetMaxOpenConns(1)

	runner := NewMigrationRunner(db)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("%w: run migrations: %w", ErrStorageUnavailable, err)
	}

	store, err := NewSQLiteStore(db, opts...)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("%w: create store: %w", ErrStorageUnavailable, err)
	}

	return store, db, nil
}
