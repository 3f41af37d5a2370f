package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/runnerr0/tempo/internal/storage"
)

// Execute implements the go-flags Commander interface for EditCommand.
func (c *EditCommand) Execute(args []string) error {
	if c.ID <= 0 {
		return fmt.Errorf("--id is required for edit command")
	}
	if c.Task == "" && c.Category == "" {
		return fmt.Errorf("nothing to change: pass --task and/or --category")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *EditCommand) executeWith(e *env) error {
	ctx := context.Background()

	session, err := e.store.Get(ctx, c.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("session %d not found", c.ID)
		}
		return err
	}

	if name := strings.TrimSpace(c.Task); name != "" {
		session.TaskName = name
	}
	if category := strings.TrimSpace(c.Category); category != "" {
		session.Category = category
	}

	if err := e.store.Update(ctx, *session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(session)
	}
	fmt.Printf("Updated session %d: %s [%s]\n", session.ID, session.TaskName, session.Category)
	return nil
}
