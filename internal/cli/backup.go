package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tempo/internal/tracker"
)

// Execute implements the go-flags Commander interface for BackupStatusCommand.
func (c *BackupStatusCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *BackupStatusCommand) executeWith(e *env) error {
	now := e.now()
	st, err := e.tracker.BackupStatus(context.Background(), now)
	if err != nil {
		return err
	}
	if c.globals != nil && c.globals.JSON {
		return printJSON(st)
	}
	printBackupLine(st, now)
	return nil
}

func printBackupLine(st tracker.BackupStatus, now time.Time) {
	switch {
	case st.Never:
		fmt.Println("Backup:        never exported (run: tempo export)")
	case st.Stale:
		fmt.Printf("Backup:        overdue, last export %s ago (run: tempo export)\n", formatDurationHuman(now.Sub(st.Last)))
	default:
		fmt.Printf("Backup:        ok, last export %s\n", st.Last.Local().Format("2006-01-02 15:04"))
	}
}
