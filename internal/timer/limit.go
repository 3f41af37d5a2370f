package timer

import (
	"fmt"
	"sort"
	"time"
)

// Limits maps a category to its alert threshold in minutes. A missing or
// zero entry means the category never alerts.
type Limits map[string]int

// DefaultLimits returns the stock thresholds.
func DefaultLimits() Limits {
	return Limits{
		"work":  50,
		"study": 25,
		"break": 5,
	}
}

// For returns the threshold for category as a duration, or 0.
func (l Limits) For(category string) time.Duration {
	minutes := l[category]
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

// Categories returns the configured category names in sorted order.
func (l Limits) Categories() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects negative thresholds.
func (l Limits) Validate() error {
	for name, minutes := range l {
		if minutes < 0 {
			return fmt.Errorf("limit for %q must not be negative, got %d", name, minutes)
		}
	}
	return nil
}

// LimitWatcher signals once per task when elapsed time reaches a limit.
type LimitWatcher struct {
	limit time.Duration
	fired bool
}

// NewLimitWatcher returns an armed watcher for limit. A zero limit never fires.
func NewLimitWatcher(limit time.Duration) *LimitWatcher {
	return &LimitWatcher{limit: limit}
}

// Reset re-arms the watcher for a new task.
func (w *LimitWatcher) Reset(limit time.Duration) {
	w.limit = limit
	w.fired = false
}

// Restore sets the watcher to a previously persisted position.
func (w *LimitWatcher) Restore(limit time.Duration, fired bool) {
	w.limit = limit
	w.fired = fired
}

// Observe reports true the first time elapsed reaches the limit and false
// on every later call until Reset.
func (w *LimitWatcher) Observe(elapsed time.Duration) bool {
	if w.limit <= 0 || w.fired || elapsed < w.limit {
		return false
	}
	w.fired = true
	return true
}

// Limit returns the armed threshold.
func (w *LimitWatcher) Limit() time.Duration { return w.limit }

// Fired reports whether the limit has been signalled for the current task.
func (w *LimitWatcher) Fired() bool { return w.fired }
