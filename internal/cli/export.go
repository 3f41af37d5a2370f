package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/runnerr0/tempo/internal/transfer"
)

// exportJSON is the JSON output structure for the export command.
type exportJSON struct {
	Format   string `json:"format"`
	Path     string `json:"path"`
	Sessions int    `json:"sessions"`
}

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *ExportCommand) executeWith(e *env) error {
	ctx := context.Background()

	format, err := transfer.ParseFormat(c.Format)
	if err != nil {
		return err
	}

	sessions, err := e.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return transfer.ErrNothingToExport
	}

	now := e.now()
	path := c.Output
	if path == "-" {
		if err := transfer.Write(os.Stdout, format, sessions, time.Local); err != nil {
			return err
		}
	} else {
		if path == "" {
			dir, err := e.cfg.ExportDir()
			if err != nil {
				return err
			}
			path = filepath.Join(dir, transfer.FileName(format, now))
		}
		if err := writeFile(path, func(w io.Writer) error {
			return transfer.Write(w, format, sessions, time.Local)
		}); err != nil {
			return err
		}
	}

	if err := e.tracker.MarkBackup(ctx, now); err != nil {
		return err
	}
	e.logger.Printf("Exported %d sessions as %s", len(sessions), format)

	if path == "-" {
		return nil
	}
	if c.globals != nil && c.globals.JSON {
		return printJSON(exportJSON{Format: string(format), Path: path, Sessions: len(sessions)})
	}
	fmt.Printf("Exported %d sessions to %s\n", len(sessions), path)
	return nil
}

// writeFile creates path and fills it with write. A failed write removes
// the partial file.
func writeFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close export file: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	if err := write(f); err != nil {
		return err
	}
	return nil
}
