package timer

import "time"

// Snapshot is the serializable form of an in-progress timer. Times are
// epoch milliseconds, durations are milliseconds.
type Snapshot struct {
	IsRunning       bool  `json:"isRunning"`
	StartTime       int64 `json:"startTime"`
	AccumulatedTime int64 `json:"accumulatedTime"`
	LastUpdated     int64 `json:"lastUpdated"`
}

// Elapsed is the total tracked time the snapshot represents at now.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	ms := s.AccumulatedTime
	if s.IsRunning {
		ms += now.UnixMilli() - s.StartTime
	}
	return time.Duration(ms) * time.Millisecond
}

// State derives the lifecycle state the snapshot was taken in.
func (s Snapshot) State() State {
	switch {
	case s.IsRunning:
		return Running
	case s.AccumulatedTime > 0:
		return Paused
	default:
		return Idle
	}
}
