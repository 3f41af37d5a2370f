package cli

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tempo/internal/config"
	"github.com/runnerr0/tempo/internal/notify"
	"github.com/runnerr0/tempo/internal/storage"
	"github.com/runnerr0/tempo/internal/timer"
)

var testEpoch = time.Date(2024, time.April, 8, 9, 0, 0, 0, time.UTC)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// newTestEnv builds an env over an in-memory store and a manual clock.
// Answers are fed to confirmation prompts.
func newTestEnv(t *testing.T, answers string, opts ...envOption) (*env, *timer.ManualClock) {
	t.Helper()

	var settings envSettings
	for _, opt := range opts {
		opt(&settings)
	}

	store, db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Notifications.Desktop = false
	cfg.Backup.ExportDir = t.TempDir()

	clock := timer.NewManualClock(testEpoch)
	logger := log.New(io.Discard, "", 0)
	e := &env{
		cfg:     cfg,
		store:   store,
		db:      db,
		logger:  logger,
		in:      strings.NewReader(answers),
		now:     clock.Now,
		tracker: newTracker(cfg, store, notify.Nop{}, logger, clock, settings.observer),
	}
	t.Cleanup(e.Close)
	return e, clock
}

// writeTestConfig writes a config that keeps everything inside dir and
// never touches the desktop session bus.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := "storage:\n  path: " + dir + "\n" +
		"timer:\n  min_session_seconds: 0\n" +
		"backup:\n  export_dir: " + dir + "\n" +
		"notifications:\n  desktop: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// seedSessions stores sessions with the given names, one hour apart.
func seedSessions(t *testing.T, e *env, names ...string) []storage.Session {
	t.Helper()
	var out []storage.Session
	for i, name := range names {
		start := testEpoch.Add(time.Duration(i) * time.Hour)
		s := &storage.Session{
			TaskName:   name,
			Category:   "work",
			DurationMs: int64(i+1) * 60_000,
			StartTime:  start,
			EndTime:    start.Add(time.Duration(i+1) * time.Minute),
		}
		_, err := e.store.Create(context.Background(), s)
		require.NoError(t, err)
		out = append(out, *s)
	}
	return out
}
