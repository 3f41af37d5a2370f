package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/runnerr0/tempo/internal/transfer"
)

// Execute implements the go-flags Commander interface for ImportCommand.
func (c *ImportCommand) Execute(args []string) error {
	if c.File == "" {
		return fmt.Errorf("--file is required for import command")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *ImportCommand) executeWith(e *env) error {
	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	sessions, err := transfer.ReadJSON(f)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if len(sessions) == 0 {
		return fmt.Errorf("import failed: %s contains no sessions", c.File)
	}

	if !c.Yes && !confirm(e.in, fmt.Sprintf("Found %d sessions. Import?", len(sessions))) {
		return fmt.Errorf("aborted")
	}

	result, err := e.store.Import(context.Background(), sessions)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	e.logger.Printf("Imported %s: %d added, %d skipped", c.File, result.Added, result.Skipped)

	if c.globals != nil && c.globals.JSON {
		return printJSON(result)
	}
	fmt.Println("Import complete!")
	fmt.Printf("  Added:   %d\n", result.Added)
	fmt.Printf("  Skipped: %d\n", result.Skipped)
	return nil
}
