package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/runnerr0/tempo/internal/storage"
	"github.com/runnerr0/tempo/internal/transfer"
)

// Execute implements the go-flags Commander interface for ListCommand.
func (c *ListCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

func (c *ListCommand) executeWith(e *env) error {
	if c.Limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	sessions, err := e.store.ListAll(context.Background())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	filtered, err := c.filter(sessions, e)
	if err != nil {
		return err
	}

	// Most recent first.
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID > filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if !c.All && c.Limit > 0 && len(filtered) > c.Limit {
		filtered = filtered[:c.Limit]
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(filtered)
	}

	if len(filtered) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}

	fmt.Printf("%-6s %-10s %-30s %-10s %s\n", "ID", "DATE", "TASK", "CATEGORY", "DURATION")
	for _, s := range filtered {
		fmt.Printf("%-6d %-10s %-30s %-10s %s\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02"), truncate(s.TaskName, 30), s.Category, transfer.FormatClock(s.DurationMs))
	}
	if len(filtered) < total {
		fmt.Printf("\nShowing %d of %d sessions (use --all to see everything).\n", len(filtered), total)
	}
	return nil
}

func (c *ListCommand) filter(sessions []storage.Session, e *env) ([]storage.Session, error) {
	if c.Since == "" && c.Category == "" {
		return sessions, nil
	}

	var cutoffSet bool
	cutoff := e.now()
	if c.Since != "" {
		d, err := parseDuration(c.Since)
		if err != nil {
			return nil, fmt.Errorf("--since: %w", err)
		}
		cutoff = cutoff.Add(-d)
		cutoffSet = true
	}

	out := make([]storage.Session, 0, len(sessions))
	for _, s := range sessions {
		if cutoffSet && s.StartTime.Before(cutoff) {
			continue
		}
		if c.Category != "" && s.Category != c.Category {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
