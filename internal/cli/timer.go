package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runnerr0/tempo/internal/timer"
	"github.com/runnerr0/tempo/internal/tracker"
)

// Execute implements the go-flags Commander interface for StartCommand.
func (c *StartCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *StartCommand) executeWith(e *env) error {
	ctx := context.Background()
	action := "Started"
	if e.tracker.Status().State == timer.Paused {
		action = "Resumed"
	}

	if err := e.tracker.Start(ctx, c.Task, c.Category); err != nil {
		if errors.Is(err, tracker.ErrAlreadyRunning) {
			return fmt.Errorf("a task is already running; pause or stop it first")
		}
		return err
	}
	return printTimerStatus(c.globals, e.tracker.Status(), action)
}

// Execute implements the go-flags Commander interface for ResumeCommand.
func (c *ResumeCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *ResumeCommand) executeWith(e *env) error {
	if err := e.tracker.Resume(context.Background()); err != nil {
		switch {
		case errors.Is(err, tracker.ErrIdle):
			return fmt.Errorf("nothing to resume; use start")
		case errors.Is(err, tracker.ErrAlreadyRunning):
			return fmt.Errorf("the task is already running")
		}
		return err
	}
	return printTimerStatus(c.globals, e.tracker.Status(), "Resumed")
}

// Execute implements the go-flags Commander interface for PauseCommand.
func (c *PauseCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *PauseCommand) executeWith(e *env) error {
	if err := e.tracker.Pause(context.Background()); err != nil {
		switch {
		case errors.Is(err, tracker.ErrIdle):
			return fmt.Errorf("no task in progress")
		case errors.Is(err, tracker.ErrNotRunning):
			return fmt.Errorf("the task is already paused")
		}
		return err
	}
	return printTimerStatus(c.globals, e.tracker.Status(), "Paused")
}

// stopJSON is the JSON output structure for the stop and discard commands.
type stopJSON struct {
	Saved     bool   `json:"saved"`
	Discarded bool   `json:"discarded"`
	ID        int64  `json:"id,omitempty"`
	TaskName  string `json:"taskName,omitempty"`
	Category  string `json:"category,omitempty"`
	Duration  int64  `json:"duration"`
}

// Execute implements the go-flags Commander interface for StopCommand.
func (c *StopCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *StopCommand) executeWith(e *env) error {
	ask := func(elapsed time.Duration) bool {
		if c.Yes {
			return true
		}
		return confirm(e.in, fmt.Sprintf("Task was less than %s (%s). Discard it?", e.cfg.MinSession(), formatElapsed(elapsed)))
	}

	res, err := e.tracker.Stop(context.Background(), ask)
	if err != nil {
		if errors.Is(err, tracker.ErrIdle) {
			return fmt.Errorf("no task in progress")
		}
		if res.Saved {
			e.logger.Printf("Session saved but state cleanup failed: %v", err)
		} else {
			return fmt.Errorf("stop failed, the timer is still active: %w", err)
		}
	}

	if c.globals != nil && c.globals.JSON {
		out := stopJSON{Saved: res.Saved, Discarded: res.Discarded, Duration: res.Elapsed.Milliseconds()}
		if res.Session != nil {
			out.ID = res.Session.ID
			out.TaskName = res.Session.TaskName
			out.Category = res.Session.Category
		}
		return printJSON(out)
	}

	if res.Discarded {
		fmt.Printf("Discarded %s task.\n", formatElapsed(res.Elapsed))
		return nil
	}
	fmt.Printf("Saved session %d: %s [%s] %s\n",
		res.Session.ID, res.Session.TaskName, res.Session.Category, formatElapsed(res.Elapsed))
	return nil
}

// Execute implements the go-flags Commander interface for DiscardCommand.
func (c *DiscardCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *DiscardCommand) executeWith(e *env) error {
	elapsed := e.tracker.Status().Elapsed
	if err := e.tracker.Discard(context.Background()); err != nil {
		if errors.Is(err, tracker.ErrIdle) {
			return fmt.Errorf("no task in progress")
		}
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(stopJSON{Discarded: true, Duration: elapsed.Milliseconds()})
	}
	fmt.Printf("Discarded %s task.\n", formatElapsed(elapsed))
	return nil
}

// printTimerStatus prints the one-line summary shared by start, pause and resume.
func printTimerStatus(globals *GlobalFlags, st tracker.Status, action string) error {
	if globals != nil && globals.JSON {
		return printJSON(st)
	}
	fmt.Printf("%s %s [%s] %s\n", action, st.TaskName, st.Category, formatElapsed(st.Elapsed))
	return nil
}
