package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/runnerr0/tempo/internal/storage"
	"github.com/runnerr0/tempo/internal/transfer"
)

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(args []string) error {
	if c.ID <= 0 {
		return fmt.Errorf("--id is required for delete command")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *DeleteCommand) executeWith(e *env) error {
	ctx := context.Background()

	session, err := e.store.Get(ctx, c.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("session %d not found", c.ID)
		}
		return err
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Printf("Session %d: %s [%s] %s\n", session.ID, session.TaskName, session.Category, transfer.FormatClock(session.DurationMs))
		if !confirm(e.in, "Delete this session? This cannot be undone.") {
			return fmt.Errorf("aborted")
		}
	}

	if err := e.store.Delete(ctx, c.ID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"deleted": true,
			"id":      c.ID,
		})
	}
	fmt.Printf("Deleted session %d.\n", c.ID)
	return nil
}
