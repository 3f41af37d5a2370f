// Package notify delivers the "limit reached" event to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Alert describes a task whose elapsed time reached its category limit.
type Alert struct {
	TaskName string
	Category string
	Elapsed  time.Duration
	Limit    time.Duration
}

// Summary is the notification title.
func (a Alert) Summary() string { return "Time's Up!" }

// Body is the notification text.
func (a Alert) Body() string {
	if a.TaskName == "" {
		return "You reached your time limit."
	}
	return fmt.Sprintf("You reached your time limit for %q (%s, %s).", a.TaskName, a.Category, formatMinutes(a.Limit))
}

func formatMinutes(d time.Duration) string {
	m := int(d / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

// Notifier consumes limit events.
type Notifier interface {
	LimitReached(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) LimitReached(_ context.Context, alert Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("%s %s", alert.Summary(), alert.Body())
	return nil
}

// Multi delivers an alert to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) LimitReached(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.LimitReached(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards alerts.
type Nop struct{}

func (Nop) LimitReached(context.Context, Alert) error { return nil }
