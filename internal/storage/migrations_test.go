package storage

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationRunner_FreshDB(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	err := runner.Run()
	require.NoError(t, err)

	expectedTables := []string{
		"sessions",
		"settings",
		"schema_migrations",
	}
	for _, table := range expectedTables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrationRunner_IndexesCreated(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	for _, idx := range []string{"idx_sessions_category", "idx_sessions_start_time"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
		assert.Equal(t, idx, name)
	}
}

func TestMigrationRunner_Idempotent(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	require.NoError(t, runner.Run())
	require.NoError(t, runner.Run())

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "each migration should be recorded once after double-run")
}

func TestMigrationRunner_SchemaMigrationsTracking(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	var version int
	var name string
	err := db.QueryRow("SELECT version, name FROM schema_migrations WHERE version = 1").Scan(&version, &name)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, "initial_schema", name)

	got, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, runner.Latest(), got)
	assert.Equal(t, 2, got)
}

func TestMigrationRunner_VersionOnFreshDB(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at DATETIME)`)
	require.NoError(t, err)

	got, err := NewMigrationRunner(db).Version()
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestMigrationRunner_UpgradesFromV1(t *testing.T) {
	db := openTestDB(t)

	// Simulate a database written before the start_time index existed.
	v1 := &MigrationRunner{db: db, migrations: []migration{
		{Version: 1, Name: "initial_schema", Apply: migrateV001},
	}}
	require.NoError(t, v1.Run())

	_, err := db.Exec(`INSERT INTO sessions (task_name, category, duration_ms, start_time, end_time, created_at)
		VALUES ('Old', 'work', 1000, '2024-01-01T10:00:00.000Z', '2024-01-01T10:00:01.000Z', '2024-01-01T10:00:01.000Z')`)
	require.NoError(t, err)

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	version, err := runner.Version()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Equal(t, 1, count, "existing rows survive the upgrade")
}

func TestMigrationRunner_RefusesNewerSchema(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	_, err := db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", runner.Latest()+1, "from_the_future")
	require.NoError(t, err)

	err = NewMigrationRunner(db).Run()
	require.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestMigrationRunner_WALMode(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	var journalMode string
	err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	require.NoError(t, err)
	// In-memory databases report "memory"; WAL only takes effect on files.
	assert.Contains(t, []string{"wal", "memory"}, journalMode)
}

func TestMigrationRunner_RejectsNegativeDuration(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	_, err := db.Exec(`INSERT INTO sessions (task_name, category, duration_ms, start_time, end_time, created_at)
		VALUES ('Bad', 'work', -1, 'a', 'b', 'c')`)
	assert.Error(t, err, "CHECK constraint should reject negative durations")
}

func TestMigrationRunner_AutoincrementNeverReusesIDs(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	insert := `INSERT INTO sessions (task_name, category, duration_ms, start_time, end_time, created_at)
		VALUES ('t', 'work', 0, 's', 'e', 'c')`
	res, err := db.Exec(insert)
	require.NoError(t, err)
	first, _ := res.LastInsertId()

	_, err = db.Exec("DELETE FROM sessions WHERE id = ?", first)
	require.NoError(t, err)

	res, err = db.Exec(insert)
	require.NoError(t, err)
	second, _ := res.LastInsertId()
	assert.Greater(t, second, first)
}
