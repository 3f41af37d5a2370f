// Package tracker ties the timer, the session store and the limit alerts
// together into the start/pause/stop workflow.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/runnerr0/tempo/internal/notify"
	"github.com/runnerr0/tempo/internal/storage"
	"github.com/runnerr0/tempo/internal/timer"
)

const (
	// DefaultMinSession is the shortest session saved without asking.
	DefaultMinSession = 5 * time.Second
	// DefaultBackupStaleAfter is how old the last export may get before a
	// backup is due.
	DefaultBackupStaleAfter = 3 * 24 * time.Hour
	// DefaultCategory is used when a task is started without one.
	DefaultCategory = "work"
)

// Status describes the task in progress.
type Status struct {
	State        timer.State   `json:"-"`
	StateName    string        `json:"state"`
	TaskName     string        `json:"taskName"`
	Category     string        `json:"category"`
	Elapsed      time.Duration `json:"-"`
	ElapsedMs    int64         `json:"elapsedMs"`
	Limit        time.Duration `json:"-"`
	LimitMs      int64         `json:"limitMs"`
	LimitReached bool          `json:"limitReached"`
	StartedAt    time.Time     `json:"startedAt"`
}

// StopResult reports what Stop did with the finished task.
type StopResult struct {
	Saved     bool
	Discarded bool
	Session   *storage.Session
	Elapsed   time.Duration
}

// BackupStatus reports when history was last exported.
type BackupStatus struct {
	Last  time.Time `json:"last"`
	Never bool      `json:"never"`
	Stale bool      `json:"stale"`
}

// Tracker owns the timer for the task in progress and persists it through
// the store's settings so a later process can pick it up.
type Tracker struct {
	mu sync.Mutex

	store    storage.Store
	notifier notify.Notifier
	clock    timer.Clock
	logger   *log.Logger
	observer func(Status)

	minSession      time.Duration
	staleAfter      time.Duration
	interval        time.Duration
	defaultLimits   timer.Limits
	defaultCategory string

	timer         *timer.Timer
	watcher       *timer.LimitWatcher
	taskName      string
	category      string
	taskStartedAt int64

	// persisted is the state blob this tracker last read or wrote; a
	// different stored blob means another process changed the task.
	persisted string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNotifier sets the consumer of limit alerts.
func WithNotifier(n notify.Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithClock sets the clock shared by the tracker and its timer.
func WithClock(c timer.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithMinSession sets the threshold below which Stop asks before saving.
func WithMinSession(d time.Duration) Option {
	return func(t *Tracker) { t.minSession = d }
}

// WithBackupStaleAfter sets the backup staleness window.
func WithBackupStaleAfter(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.staleAfter = d
		}
	}
}

// WithTickInterval sets how often a running timer ticks.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithDefaultLimits sets the limits used until the user stores their own.
func WithDefaultLimits(l timer.Limits) Option {
	return func(t *Tracker) {
		if l != nil {
			t.defaultLimits = l
		}
	}
}

// WithDefaultCategory sets the category used when Start gets none.
func WithDefaultCategory(c string) Option {
	return func(t *Tracker) {
		if c != "" {
			t.defaultCategory = c
		}
	}
}

// WithObserver registers a callback that receives the status after every tick.
func WithObserver(fn func(Status)) Option {
	return func(t *Tracker) { t.observer = fn }
}

// New builds an idle Tracker. Call Restore to pick up a persisted task.
func New(store storage.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:           store,
		notifier:        notify.Nop{},
		clock:           timer.SystemClock{},
		logger:          log.New(io.Discard, "", 0),
		minSession:      DefaultMinSession,
		staleAfter:      DefaultBackupStaleAfter,
		interval:        timer.DefaultInterval,
		defaultLimits:   timer.DefaultLimits(),
		defaultCategory: DefaultCategory,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.watcher = timer.NewLimitWatcher(0)
	t.timer = timer.New(
		timer.WithClock(t.clock),
		timer.WithInterval(t.interval),
		timer.WithOnTick(t.onTick),
	)
	return t
}

// onTick runs on the timer goroutine. The final zero report from Stop
// arrives while a tracker method may hold the lock, so it is dropped here.
func (t *Tracker) onTick(time.Duration) {
	if !t.timer.IsRunning() {
		return
	}
	t.Tick(context.Background())
}

// Restore loads the persisted task, if any. A running task keeps counting
// the time since it was persisted. A state blob that cannot be decoded is
// dropped.
func (t *Tracker) Restore(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restoreLocked(ctx)
}

func (t *Tracker) restoreLocked(ctx context.Context) error {
	raw, ok, err := t.store.GetSetting(ctx, StateKey)
	if err != nil {
		return fmt.Errorf("load tracker state: %w", err)
	}
	if !ok {
		t.timer.Restore(timer.Snapshot{})
		t.resetLocked()
		t.persisted = ""
		return nil
	}

	st, err := decodeState(raw)
	if err != nil {
		if errors.Is(err, ErrUnsupportedState) {
			return err
		}
		t.logger.Printf("Discarding unreadable tracker state: %v", err)
		t.timer.Restore(timer.Snapshot{})
		t.resetLocked()
		return t.clearLocked(ctx)
	}

	category := st.Category
	if category == "" {
		category = t.defaultCategory
	}
	now := t.clock.Now()
	elapsed := st.Timer.Elapsed(now)
	t.taskName = st.TaskName
	t.category = category
	t.timer.Restore(st.Timer)
	t.taskStartedAt = 0
	if start := st.taskStart(); !start.IsZero() {
		t.taskStartedAt = start.UnixMilli()
	} else if st.Timer.State() != timer.Idle {
		t.taskStartedAt = now.Add(-elapsed).UnixMilli()
	}

	limits, err := t.limitsLocked(ctx)
	if err != nil {
		return err
	}
	t.watcher.Restore(limits.For(category), st.LimitNotified)
	t.persisted = raw

	t.logger.Printf("Restored %s task %q (%s elapsed)", t.stateLocked(), t.taskName, elapsed)
	return nil
}

// syncLocked reloads the task when another process changed or cleared the
// persisted state since this tracker last read or wrote it.
func (t *Tracker) syncLocked(ctx context.Context) error {
	raw, ok, err := t.store.GetSetting(ctx, StateKey)
	if err != nil {
		return fmt.Errorf("load tracker state: %w", err)
	}
	if ok && raw == t.persisted {
		return nil
	}
	t.logger.Printf("Tracker state changed by another process, reloading")
	return t.restoreLocked(ctx)
}

// Start begins a new task when idle, or resumes a paused one. Non-empty
// taskName and category replace the paused task's values.
func (t *Tracker) Start(ctx context.Context, taskName, category string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	taskName = strings.TrimSpace(taskName)
	category = strings.TrimSpace(category)

	switch t.stateLocked() {
	case timer.Running:
		return ErrAlreadyRunning

	case timer.Idle:
		if category == "" {
			category = t.defaultCategory
		}
		limits, err := t.limitsLocked(ctx)
		if err != nil {
			return err
		}
		t.taskName = taskName
		t.category = category
		t.taskStartedAt = t.clock.Now().UnixMilli()
		t.watcher.Reset(limits.For(category))

	case timer.Paused:
		if taskName != "" {
			t.taskName = taskName
		}
		if category != "" && category != t.category {
			limits, err := t.limitsLocked(ctx)
			if err != nil {
				return err
			}
			t.category = category
			t.watcher.Reset(limits.For(category))
		}
	}

	t.timer.Start()
	return t.saveLocked(ctx)
}

// Resume continues a paused task.
func (t *Tracker) Resume(ctx context.Context) error {
	t.mu.Lock()
	state := t.stateLocked()
	t.mu.Unlock()

	switch state {
	case timer.Idle:
		return ErrIdle
	case timer.Running:
		return ErrAlreadyRunning
	}
	return t.Start(ctx, "", "")
}

// Pause banks the running interval and persists the task.
func (t *Tracker) Pause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.stateLocked() {
	case timer.Idle:
		return ErrIdle
	case timer.Paused:
		return ErrNotRunning
	}
	t.timer.Pause()
	return t.saveLocked(ctx)
}

// Stop finishes the task. A task shorter than the minimum session length
// is passed to confirm; when confirm returns true it is discarded without
// touching the history, otherwise it is saved like any other. If saving
// fails the task is left in progress.
func (t *Tracker) Stop(ctx context.Context, confirm func(elapsed time.Duration) bool) (StopResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stateLocked() == timer.Idle {
		return StopResult{}, ErrIdle
	}

	elapsed := t.timer.Elapsed()
	if elapsed < t.minSession && confirm != nil && confirm(elapsed) {
		t.timer.Stop()
		t.resetLocked()
		return StopResult{Discarded: true, Elapsed: elapsed}, t.clearLocked(ctx)
	}

	// Re-read after confirm, which may have waited on the user.
	elapsed = t.timer.Elapsed()
	now := t.clock.Now()
	start := time.UnixMilli(t.taskStartedAt)
	if t.taskStartedAt == 0 {
		start = now.Add(-elapsed)
	}

	session := &storage.Session{
		TaskName:   t.taskName,
		Category:   t.category,
		DurationMs: elapsed.Milliseconds(),
		StartTime:  start,
		EndTime:    now,
	}
	if _, err := t.store.Create(ctx, session); err != nil {
		return StopResult{Elapsed: elapsed}, fmt.Errorf("save session: %w", err)
	}
	t.logger.Printf("Saved session %d %q (%s)", session.ID, session.TaskName, elapsed)

	t.timer.Stop()
	t.resetLocked()
	return StopResult{Saved: true, Session: session, Elapsed: elapsed}, t.clearLocked(ctx)
}

// Discard drops the task in progress without saving it.
func (t *Tracker) Discard(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stateLocked() == timer.Idle {
		return ErrIdle
	}
	t.timer.Stop()
	t.resetLocked()
	return t.clearLocked(ctx)
}

// Tick checks the limit and persists the running task. It is called by
// the timer loop; persistence failures are logged. A task that another
// process stopped, paused or changed is reloaded instead of overwritten.
func (t *Tracker) Tick(ctx context.Context) {
	t.mu.Lock()
	if t.stateLocked() == timer.Idle {
		t.mu.Unlock()
		return
	}

	if err := t.syncLocked(ctx); err != nil {
		t.logger.Printf("Failed to reload tracker state: %v", err)
		t.mu.Unlock()
		return
	}

	var fired bool
	var alert notify.Alert
	if t.timer.IsRunning() {
		elapsed := t.timer.Elapsed()
		fired = t.watcher.Observe(elapsed)
		alert = notify.Alert{
			TaskName: t.displayNameLocked(),
			Category: t.category,
			Elapsed:  elapsed,
			Limit:    t.watcher.Limit(),
		}
		if err := t.saveLocked(ctx); err != nil {
			t.logger.Printf("Failed to persist tracker state: %v", err)
		}
	}
	status := t.statusLocked()
	observer := t.observer
	t.mu.Unlock()

	if fired {
		t.logger.Printf("Limit reached for %q after %s", alert.TaskName, alert.Elapsed)
		if err := t.notifier.LimitReached(ctx, alert); err != nil {
			t.logger.Printf("Failed to deliver limit alert: %v", err)
		}
	}
	if observer != nil {
		observer(status)
	}
}

// Status reports the task in progress.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Tracker) statusLocked() Status {
	state := t.stateLocked()
	elapsed := t.timer.Elapsed()
	st := Status{
		State:     state,
		StateName: state.String(),
		Elapsed:   elapsed,
		ElapsedMs: elapsed.Milliseconds(),
	}
	if state == timer.Idle {
		return st
	}
	st.TaskName = t.displayNameLocked()
	st.Category = t.category
	st.Limit = t.watcher.Limit()
	st.LimitMs = st.Limit.Milliseconds()
	st.LimitReached = t.watcher.Fired()
	if t.taskStartedAt != 0 {
		st.StartedAt = time.UnixMilli(t.taskStartedAt)
	}
	return st
}

// stateLocked derives the task state. A task paused before any time was
// banked is still Paused, which the timer alone cannot tell from Idle.
func (t *Tracker) stateLocked() timer.State {
	switch {
	case t.timer.IsRunning():
		return timer.Running
	case t.taskStartedAt != 0:
		return timer.Paused
	default:
		return timer.Idle
	}
}

func (t *Tracker) displayNameLocked() string {
	if t.taskName == "" {
		return storage.DefaultTaskName
	}
	return t.taskName
}

// Limits returns the stored category limits, or the defaults.
func (t *Tracker) Limits(ctx context.Context) (timer.Limits, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limitsLocked(ctx)
}

func (t *Tracker) limitsLocked(ctx context.Context) (timer.Limits, error) {
	limits := make(timer.Limits, len(t.defaultLimits))
	for k, v := range t.defaultLimits {
		limits[k] = v
	}

	raw, ok, err := t.store.GetSetting(ctx, LimitsKey)
	if err != nil {
		return nil, fmt.Errorf("load limits: %w", err)
	}
	if !ok {
		return limits, nil
	}

	var stored timer.Limits
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.logger.Printf("Ignoring unreadable category limits: %v", err)
		return limits, nil
	}
	for k, v := range stored {
		limits[k] = v
	}
	return limits, nil
}

// SetLimit stores the limit for category in minutes; zero disables it.
// A task in progress in that category picks up the new limit.
func (t *Tracker) SetLimit(ctx context.Context, category string, minutes int) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidLimit)
	}
	if minutes < 0 {
		return fmt.Errorf("%w: %d minutes", ErrInvalidLimit, minutes)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	limits, err := t.limitsLocked(ctx)
	if err != nil {
		return err
	}
	limits[category] = minutes

	data, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("encode limits: %w", err)
	}
	if err := t.store.SetSetting(ctx, LimitsKey, string(data)); err != nil {
		return fmt.Errorf("save limits: %w", err)
	}

	if t.stateLocked() != timer.Idle && t.category == category {
		limit := limits.For(category)
		t.watcher.Restore(limit, t.watcher.Fired() && limit > 0 && t.timer.Elapsed() >= limit)
		return t.saveLocked(ctx)
	}
	return nil
}

// BackupStatus reports whether the last export is older than the
// staleness window at now. History that was never exported is stale.
func (t *Tracker) BackupStatus(ctx context.Context, now time.Time) (BackupStatus, error) {
	raw, ok, err := t.store.GetSetting(ctx, BackupKey)
	if err != nil {
		return BackupStatus{}, fmt.Errorf("load backup date: %w", err)
	}
	if !ok {
		return BackupStatus{Never: true, Stale: true}, nil
	}

	var ms int64
	if _, err := fmt.Sscan(raw, &ms); err != nil {
		t.logger.Printf("Ignoring unreadable backup date %q: %v", raw, err)
		return BackupStatus{Never: true, Stale: true}, nil
	}
	last := time.UnixMilli(ms)
	return BackupStatus{Last: last, Stale: now.Sub(last) > t.staleAfter}, nil
}

// MarkBackup records now as the time of the last export.
func (t *Tracker) MarkBackup(ctx context.Context, now time.Time) error {
	if err := t.store.SetSetting(ctx, BackupKey, fmt.Sprint(now.UnixMilli())); err != nil {
		return fmt.Errorf("save backup date: %w", err)
	}
	return nil
}

// Close stops the tick loop. The task in progress stays persisted.
func (t *Tracker) Close() {
	t.timer.Close()
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	raw, err := encodeState(State{
		Timer:         t.timer.Snapshot(),
		TaskName:      t.taskName,
		Category:      t.category,
		TaskStartedAt: t.taskStartedAt,
		LimitNotified: t.watcher.Fired(),
	})
	if err != nil {
		return err
	}
	if err := t.store.SetSetting(ctx, StateKey, raw); err != nil {
		return fmt.Errorf("save tracker state: %w", err)
	}
	t.persisted = raw
	return nil
}

func (t *Tracker) clearLocked(ctx context.Context) error {
	if err := t.store.DeleteSetting(ctx, StateKey); err != nil {
		return fmt.Errorf("clear tracker state: %w", err)
	}
	t.persisted = ""
	return nil
}

func (t *Tracker) resetLocked() {
	t.taskName = ""
	t.category = ""
	t.taskStartedAt = 0
	t.watcher.Reset(0)
}
