package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/runnerr0/tempo/internal/timer"
	"github.com/runnerr0/tempo/internal/tracker"
)

// Execute implements the go-flags Commander interface for WatchCommand.
func (c *WatchCommand) Execute(args []string) error {
	e, err := openEnv(c.globals, withObserver(c.observe))
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.executeWith(ctx, e)
}

// executeWith blocks until ctx is done or the task leaves the running
// state, for instance because another tempo process stopped or paused it.
// Ticks are printed by the tracker observer.
func (c *WatchCommand) executeWith(ctx context.Context, e *env) error {
	st := e.tracker.Status()
	if st.State == timer.Idle {
		return fmt.Errorf("no task in progress")
	}

	c.printTick(st)
	if c.Once || st.State != timer.Running {
		if !c.jsonOutput() {
			fmt.Println()
		}
		return nil
	}

	select {
	case <-c.endedCh():
		if !c.jsonOutput() {
			fmt.Println()
			fmt.Println("The task is no longer running.")
		}
	case <-ctx.Done():
		if !c.jsonOutput() {
			fmt.Println()
			fmt.Println("Detached; the timer keeps running.")
		}
	}
	return nil
}

// observe receives the status after every tick.
func (c *WatchCommand) observe(st tracker.Status) {
	if st.State != timer.Idle {
		c.printTick(st)
	}
	if st.State != timer.Running {
		c.endOnce.Do(func() { close(c.endedCh()) })
	}
}

func (c *WatchCommand) endedCh() chan struct{} {
	c.initOnce.Do(func() { c.ended = make(chan struct{}) })
	return c.ended
}

func (c *WatchCommand) printTick(st tracker.Status) {
	if c.jsonOutput() {
		_ = printJSON(st)
		return
	}
	marker := ""
	if st.LimitReached {
		marker = "  (limit reached)"
	}
	fmt.Printf("\r%s [%s] %s %s%s", st.TaskName, st.Category, st.State, formatElapsed(st.Elapsed), marker)
}

func (c *WatchCommand) jsonOutput() bool {
	return c.globals != nil && c.globals.JSON
}
