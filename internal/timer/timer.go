// Package timer tracks elapsed work time from wall-clock deltas.
//
// Elapsed time is never derived by counting ticks: each query computes
// banked time plus now minus the current interval's anchor, so time lost
// while the process was suspended or not running is still counted.
package timer

import (
	"sync"
	"time"
)

// DefaultInterval is how often a running timer reports its elapsed time.
const DefaultInterval = time.Second

// State is the lifecycle position of a Timer.
type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// Timer is a start/pause/stop stopwatch. The zero value is not usable;
// construct one with New.
type Timer struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	onTick   func(elapsed time.Duration)

	running bool
	anchor  int64 // epoch ms when the current running interval began
	banked  int64 // ms accumulated from finished intervals

	stopLoop chan struct{}
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock sets the clock the timer reads.
func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithOnTick sets the observer that receives the elapsed time on every
// tick and once with zero on Stop.
func WithOnTick(fn func(elapsed time.Duration)) Option {
	return func(t *Timer) { t.onTick = fn }
}

// New returns an idle Timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		clock:    SystemClock{},
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a running interval. It is a no-op if already running.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}
	t.running = true
	t.anchor = t.clock.Now().UnixMilli()
	t.startLoopLocked()
}

// Pause banks the current interval and stops ticking. It is a no-op if
// not running.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauseLocked()
}

func (t *Timer) pauseLocked() {
	if !t.running {
		return
	}
	t.stopLoopLocked()
	t.banked += t.clock.Now().UnixMilli() - t.anchor
	t.running = false
}

// Stop pauses, resets the timer to Idle and reports a final elapsed time
// of zero. It does not persist anything.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.pauseLocked()
	t.banked = 0
	t.anchor = 0
	onTick := t.onTick
	t.mu.Unlock()

	if onTick != nil {
		onTick(0)
	}
}

// Elapsed returns banked time, plus the current interval while running.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

func (t *Timer) elapsedLocked() time.Duration {
	ms := t.banked
	if t.running {
		ms += t.clock.Now().UnixMilli() - t.anchor
	}
	return time.Duration(ms) * time.Millisecond
}

// IsRunning reports whether an interval is in progress.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// State reports Idle, Running or Paused.
func (t *Timer) State() State {
	return t.Snapshot().State()
}

// Snapshot captures the timer for later Restore.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		IsRunning:       t.running,
		StartTime:       t.anchor,
		AccumulatedTime: t.banked,
		LastUpdated:     t.clock.Now().UnixMilli(),
	}
}

// Restore replaces the timer state with s verbatim. A running snapshot
// keeps its original anchor, so the time since it was taken is counted,
// and ticking resumes immediately.
func (t *Timer) Restore(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLoopLocked()
	t.running = s.IsRunning
	t.anchor = s.StartTime
	t.banked = s.AccumulatedTime
	if t.running {
		t.startLoopLocked()
	}
}

// Close stops the tick loop without changing the timer state.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLoopLocked()
}

func (t *Timer) startLoopLocked() {
	if t.onTick == nil || t.stopLoop != nil {
		return
	}
	stop := make(chan struct{})
	t.stopLoop = stop
	go t.loop(stop)
}

func (t *Timer) stopLoopLocked() {
	if t.stopLoop == nil {
		return
	}
	close(t.stopLoop)
	t.stopLoop = nil
}

func (t *Timer) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			select {
			case <-stop:
				t.mu.Unlock()
				return
			default:
			}
			elapsed := t.elapsedLocked()
			onTick := t.onTick
			t.mu.Unlock()

			// Called without the lock so the observer may use the timer.
			onTick(elapsed)
		}
	}
}
