package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store defines the interface for session persistence.
type Store interface {
	Settings

	Create(ctx context.Context, session *Session) (int64, error)
	Get(ctx context.Context, id int64) (*Session, error)
	ListAll(ctx context.Context) ([]Session, error)
	Update(ctx context.Context, session Session) error
	Delete(ctx context.Context, id int64) error
	Import(ctx context.Context, sessions []Session) (ImportResult, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Settings is the flat key/value namespace stored next to the sessions.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// timeLayout is the canonical text form of every stored timestamp.
// Millisecond precision in UTC keeps start_time comparable as a string.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const sessionColumns = `id, task_name, category, duration_ms, start_time, end_time, created_at`

const insertSessionSQL = `
	INSERT INTO sessions (task_name, category, duration_ms, start_time, end_time, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	// Prepared statements
	insertSession *sql.Stmt
	getSession    *sql.Stmt
	upsertSession *sql.Stmt
	deleteSession *sql.Stmt
	getSetting    *sql.Stmt
	setSetting    *sql.Stmt
	deleteSetting *sql.Stmt
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the clock used to stamp createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertSession, err = s.db.Prepare(insertSessionSQL)
	if err != nil {
		return err
	}

	s.getSession, err = s.db.Prepare(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)
	if err != nil {
		return err
	}

	// createdAt is deliberately absent from the update list.
	s.upsertSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, task_name, category, duration_ms, start_time, end_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_name   = excluded.task_name,
			category    = excluded.category,
			duration_ms = excluded.duration_ms,
			start_time  = excluded.start_time,
			end_time    = excluded.end_time,
			updated_at  = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}

	s.deleteSession, err = s.db.Prepare(`DELETE FROM sessions WHERE id = ?`)
	if err != nil {
		return err
	}

	s.getSetting, err = s.db.Prepare(`SELECT value FROM settings WHERE key = ?`)
	if err != nil {
		return err
	}

	s.setSetting, err = s.db.Prepare(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}

	s.deleteSetting, err = s.db.Prepare(`DELETE FROM settings WHERE key = ?`)
	if err != nil {
		return err
	}

	return nil
}

// formatTimestamp renders t in the canonical stored form.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTimestamp tries several common timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// DedupKey returns the value Import compares to decide whether a record
// already exists: its start time at millisecond precision.
func DedupKey(startTime time.Time) string {
	return formatTimestamp(startTime)
}

// Create inserts a new session. The store assigns the ID and CreatedAt,
// populates both on the passed struct and returns the new ID.
func (s *SQLiteStore) Create(ctx context.Context, session *Session) (int64, error) {
	if err := Validate(*session); err != nil {
		return 0, err
	}
	if strings.TrimSpace(session.TaskName) == "" {
		session.TaskName = DefaultTaskName
	}

	createdAt := s.now().UTC().Truncate(time.Millisecond)
	res, err := s.insertSession.ExecContext(ctx,
		session.TaskName, session.Category, session.DurationMs,
		formatTimestamp(session.StartTime), formatTimestamp(session.EndTime),
		formatTimestamp(createdAt),
	)
	if err != nil {
		return 0, opFailed("insert session", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, opFailed("read session id", err)
	}

	session.ID = id
	session.CreatedAt = createdAt
	return id, nil
}

// Get retrieves a single session by ID.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Session, error) {
	session, err := scanSession(s.getSession.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
		}
		return nil, opFailed("get session", err)
	}
	return session, nil
}

// ListAll returns every stored session ordered by ID. Callers that want
// recency order sort the result themselves.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY id`)
	if err != nil {
		return nil, opFailed("query sessions", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, opFailed("scan session", err)
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, opFailed("query sessions", err)
	}
	return sessions, nil
}

// Update replaces every mutable field of the session with the given ID.
// CreatedAt of an existing row is never rewritten. An unknown ID is
// inserted with that ID.
func (s *SQLiteStore) Update(ctx context.Context, session Session) error {
	if session.ID <= 0 {
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidSession, session.ID)
	}
	if err := Validate(session); err != nil {
		return err
	}
	if strings.TrimSpace(session.TaskName) == "" {
		session.TaskName = DefaultTaskName
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.upsertSession.ExecContext(ctx,
		session.ID, session.TaskName, session.Category, session.DurationMs,
		formatTimestamp(session.StartTime), formatTimestamp(session.EndTime),
		formatTimestamp(createdAt),
	)
	if err != nil {
		return opFailed("update session", err)
	}
	return nil
}

// Delete removes a session by ID. Deleting a missing ID is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.deleteSession.ExecContext(ctx, id); err != nil {
		return opFailed("delete session", err)
	}
	return nil
}

// Import reconciles externally supplied sessions against the store.
// A record whose start time matches an existing session is skipped; every
// other record is inserted under a fresh ID. Dedup is computed against the
// data present before the import, so repeated start times inside the batch
// are all added. The batch commits atomically.
func (s *SQLiteStore) Import(ctx context.Context, sessions []Session) (ImportResult, error) {
	for i, in := range sessions {
		if err := Validate(in); err != nil {
			return ImportResult{}, fmt.Errorf("%w: record %d: %w", ErrMalformedImport, i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, opFailed("begin import", err)
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := existingStartTimes(ctx, tx)
	if err != nil {
		return ImportResult{}, opFailed("load existing start times", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return ImportResult{}, opFailed("prepare import", err)
	}
	defer stmt.Close()

	now := s.now()
	var result ImportResult
	for _, in := range sessions {
		if _, dup := existing[DedupKey(in.StartTime)]; dup {
			result.Skipped++
			continue
		}

		taskName := in.TaskName
		if strings.TrimSpace(taskName) == "" {
			taskName = DefaultTaskName
		}
		createdAt := in.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		if _, err := stmt.ExecContext(ctx,
			taskName, in.Category, in.DurationMs,
			formatTimestamp(in.StartTime), formatTimestamp(in.EndTime),
			formatTimestamp(createdAt),
		); err != nil {
			return ImportResult{}, opFailed("insert imported session", err)
		}
		result.Added++
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, opFailed("commit import", err)
	}
	return result, nil
}

// existingStartTimes builds the dedup set from the sessions already stored.
func existingStartTimes(ctx context.Context, tx *sql.Tx) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT start_time FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			set[raw] = struct{}{}
			continue
		}
		set[DedupKey(ts)] = struct{}{}
	}
	return set, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var startStr, endStr, createdStr string
	if err := row.Scan(
		&sess.ID, &sess.TaskName, &sess.Category, &sess.DurationMs,
		&startStr, &endStr, &createdStr,
	); err != nil {
		return nil, err
	}
	sess.StartTime, _ = parseTimestamp(startStr)
	sess.EndTime, _ = parseTimestamp(endStr)
	sess.CreatedAt, _ = parseTimestamp(createdStr)
	return &sess, nil
}

// Stats returns aggregate statistics about the stored sessions.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(duration_ms), 0) FROM sessions",
	).Scan(&stats.TotalSessions, &stats.TotalMs)
	if err != nil {
		return nil, opFailed("count sessions", err)
	}

	if stats.TotalSessions > 0 {
		var oldestStr, newestStr string
		err = s.db.QueryRowContext(ctx, "SELECT MIN(start_time), MAX(start_time) FROM sessions").Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, opFailed("session time range", err)
		}
		stats.OldestStart, _ = parseTimestamp(oldestStr)
		stats.NewestStart, _ = parseTimestamp(newestStr)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT category, COUNT(*), SUM(duration_ms) AS total FROM sessions GROUP BY category ORDER BY total DESC",
	)
	if err != nil {
		return nil, opFailed("category totals", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Count, &ct.TotalMs); err != nil {
			return nil, opFailed("scan category total", err)
		}
		stats.Categories = append(stats.Categories, ct)
	}

	return stats, rows.Err()
}

// GetSetting returns the value stored under key and whether it exists.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.getSetting.QueryRowContext(ctx, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, opFailed("get setting "+key, err)
	}
	return value, true, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	if _, err := s.setSetting.ExecContext(ctx, key, value); err != nil {
		return opFailed("set setting "+key, err)
	}
	return nil
}

// DeleteSetting removes key. Removing a missing key is not an error.
func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.deleteSetting.ExecContext(ctx, key); err != nil {
		return opFailed("delete setting "+key, err)
	}
	return nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.insertSession, s.getSession, s.upsertSession, s.deleteSession,
		s.getSetting, s.setSetting, s.deleteSetting,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
