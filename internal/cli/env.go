package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/runnerr0/tempo/internal/config"
	"github.com/runnerr0/tempo/internal/notify"
	"github.com/runnerr0/tempo/internal/storage"
	"github.com/runnerr0/tempo/internal/timer"
	"github.com/runnerr0/tempo/internal/tracker"
)

// env is everything a command needs once the config is loaded and the
// database is open.
type env struct {
	cfg     *config.Config
	store   *storage.SQLiteStore
	db      *sql.DB
	tracker *tracker.Tracker
	logger  *log.Logger
	in      io.Reader
	now     func() time.Time

	closers []io.Closer
}

// envOption adjusts how an env is built.
type envOption func(*envSettings)

type envSettings struct {
	observer func(tracker.Status)
}

func withObserver(fn func(tracker.Status)) envOption {
	return func(s *envSettings) { s.observer = fn }
}

// openEnv loads the config, opens the store and restores the tracker.
func openEnv(globals *GlobalFlags, opts ...envOption) (*env, error) {
	var settings envSettings
	for _, opt := range opts {
		opt(&settings)
	}

	cfgPath := config.DefaultConfigPath
	if globals != nil && globals.Config != "" {
		cfgPath = globals.Config
	}
	cfg, err := config.LoadOrCreateAt(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	if globals != nil && globals.DBPath != "" {
		dbPath = globals.DBPath
	}

	e := &env{cfg: cfg, in: os.Stdin, now: time.Now}

	verbose := globals != nil && globals.Verbose
	logger, logCloser, err := newLogger(cfg, verbose)
	if err != nil {
		return nil, err
	}
	e.logger = logger
	if logCloser != nil {
		e.closers = append(e.closers, logCloser)
	}

	store, db, err := storage.Open(dbPath)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store, e.db = store, db
	logger.Printf("Opened database %s", dbPath)

	notifier := e.buildNotifier()
	e.tracker = newTracker(cfg, store, notifier, logger, timer.SystemClock{}, settings.observer)
	if err := e.tracker.Restore(context.Background()); err != nil {
		e.Close()
		return nil, fmt.Errorf("restore timer: %w", err)
	}

	return e, nil
}

// newTracker builds a tracker from the config.
func newTracker(cfg *config.Config, store storage.Store, n notify.Notifier, logger *log.Logger, clock timer.Clock, observer func(tracker.Status)) *tracker.Tracker {
	return tracker.New(store,
		tracker.WithClock(clock),
		tracker.WithLogger(logger),
		tracker.WithNotifier(n),
		tracker.WithTickInterval(cfg.TickInterval()),
		tracker.WithMinSession(cfg.MinSession()),
		tracker.WithBackupStaleAfter(cfg.BackupStaleAfter()),
		tracker.WithDefaultLimits(timer.Limits(cfg.Limits)),
		tracker.WithDefaultCategory(cfg.Timer.DefaultCategory),
		tracker.WithObserver(observer),
	)
}

// buildNotifier always logs alerts, and adds desktop notifications when
// enabled and a session bus is reachable.
func (e *env) buildNotifier() notify.Notifier {
	alerts := log.New(os.Stderr, "", 0)
	notifiers := notify.Multi{notify.LogNotifier{Logger: alerts}}

	if !e.cfg.Notifications.Desktop {
		return notifiers
	}
	desktop, err := notify.NewDesktopNotifier(
		notify.WithIcon(e.cfg.Notifications.Icon),
		notify.WithExpiry(int32(e.cfg.Notifications.ExpireMs)),
	)
	if err != nil {
		e.logger.Printf("Desktop notifications unavailable: %v", err)
		return notifiers
	}
	e.closers = append(e.closers, desktop)
	return append(notifiers, desktop)
}

// newLogger returns the diagnostic logger. Diagnostics are silent unless
// --verbose or logging.level debug is set; a configured log file receives
// them regardless.
func newLogger(cfg *config.Config, verbose bool) (*log.Logger, io.Closer, error) {
	path, err := cfg.LogPath()
	if err != nil {
		return nil, nil, err
	}
	if path != "" && !strings.EqualFold(cfg.Logging.Level, "quiet") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return log.New(f, "tempo: ", log.LstdFlags), f, nil
	}
	if verbose || strings.EqualFold(cfg.Logging.Level, "debug") {
		return log.New(os.Stderr, "tempo: ", log.LstdFlags), nil, nil
	}
	return log.New(io.Discard, "", 0), nil, nil
}

// Close stops the tracker and releases the database.
func (e *env) Close() {
	if e.tracker != nil {
		e.tracker.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	for _, c := range e.closers {
		c.Close()
	}
}
