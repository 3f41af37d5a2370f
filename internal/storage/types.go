package storage

import "time"

// DefaultTaskName is stored when a session is created without a task name.
const DefaultTaskName = "Untitled Task"

// Session is one completed, saved unit of tracked time.
type Session struct {
	ID         int64     `json:"id,omitempty"`
	TaskName   string    `json:"taskName"`
	Category   string    `json:"category"`
	DurationMs int64     `json:"duration"` // milliseconds
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Duration returns the session length as a time.Duration.
func (s Session) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// ImportResult reports how an import batch was reconciled.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Stats holds aggregate statistics about the session history.
type Stats struct {
	TotalSessions int64
	TotalMs       int64
	OldestStart   time.Time
	NewestStart   time.Time
	Categories    []CategoryTotal
}

// CategoryTotal pairs a category with its session count and tracked time.
type CategoryTotal struct {
	Category string
	Count    int64
	TotalMs  int64
}
