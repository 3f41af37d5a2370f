package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/runnerr0/tempo/internal/timer"
)

// Settings keys owned by the tracker.
const (
	StateKey  = "timeTrackerState"
	LimitsKey = "categoryLimits"
	BackupKey = "lastBackupDate"
)

// StateVersion is the current layout of the persisted tracker state.
const StateVersion = 1

var (
	// ErrIdle is returned when an operation needs a task in progress.
	ErrIdle = errors.New("no task in progress")
	// ErrNotRunning is returned when pausing a timer that is already paused.
	ErrNotRunning = errors.New("timer is not running")
	// ErrAlreadyRunning is returned when starting a timer that is running.
	ErrAlreadyRunning = errors.New("timer is already running")
	// ErrUnsupportedState is returned for a persisted state written by a newer version.
	ErrUnsupportedState = errors.New("unsupported tracker state")
	// ErrInvalidLimit is returned for a negative category limit.
	ErrInvalidLimit = errors.New("invalid limit")
)

// State is the in-progress task as persisted between runs.
type State struct {
	Version       int            `json:"version"`
	Timer         timer.Snapshot `json:"timer"`
	TaskName      string         `json:"taskName"`
	Category      string         `json:"category,omitempty"`
	TaskStartedAt int64          `json:"taskStartedAt,omitempty"` // epoch ms
	LimitNotified bool           `json:"limitNotified,omitempty"`
}

// decodeState parses a persisted state blob. Blobs without a version
// predate versioning and share the version 1 layout.
func decodeState(raw string) (State, error) {
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, fmt.Errorf("decode tracker state: %w", err)
	}
	if st.Version > StateVersion {
		return State{}, fmt.Errorf("%w: version %d", ErrUnsupportedState, st.Version)
	}
	st.Version = StateVersion
	return st, nil
}

func encodeState(st State) (string, error) {
	st.Version = StateVersion
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode tracker state: %w", err)
	}
	return string(data), nil
}

// taskStart returns when the task first started. Legacy blobs carry no
// taskStartedAt, so the current interval anchor stands in for it.
func (st State) taskStart() time.Time {
	ms := st.TaskStartedAt
	if ms == 0 {
		ms = st.Timer.StartTime
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
