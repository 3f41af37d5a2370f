package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/tempo/internal/storage"
	"github.com/runnerr0/tempo/internal/timer"
	"github.com/runnerr0/tempo/internal/tracker"
	"github.com/runnerr0/tempo/internal/transfer"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string               `json:"version"`
	DatabasePath      string               `json:"database_path"`
	DatabaseSizeBytes int64                `json:"database_size_bytes"`
	Timer             tracker.Status       `json:"timer"`
	TotalSessions     int64                `json:"total_sessions"`
	TotalMs           int64                `json:"total_ms"`
	OldestSession     string               `json:"oldest_session,omitempty"`
	NewestSession     string               `json:"newest_session,omitempty"`
	Categories        []categoryTotalJSON  `json:"categories"`
	Backup            tracker.BackupStatus `json:"backup"`
}

type categoryTotalJSON struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
	TotalMs  int64  `json:"total_ms"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()
	return c.executeWith(e)
}

// executeWith runs status against a prepared environment (for testing).
func (c *StatusCommand) executeWith(e *env) error {
	ctx := context.Background()

	stats, err := e.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	backup, err := e.tracker.BackupStatus(ctx, e.now())
	if err != nil {
		return err
	}

	dbPath := c.dbPath(e)
	dbSize := getDatabaseSize(e.db, dbPath)
	st := e.tracker.Status()

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(st, stats, backup, dbPath, dbSize)
	}
	return c.printStatusHuman(st, stats, backup, dbPath, dbSize, e.now())
}

func (c *StatusCommand) dbPath(e *env) string {
	if c.globals != nil && c.globals.DBPath != "" {
		return c.globals.DBPath
	}
	path, err := e.cfg.DBPath()
	if err != nil {
		return ""
	}
	return path
}

func (c *StatusCommand) printStatusHuman(st tracker.Status, stats *storage.Stats, backup tracker.BackupStatus, dbPath string, dbSize int64, now time.Time) error {
	fmt.Println("Tempo Status")
	fmt.Println("============")

	switch st.State {
	case timer.Idle:
		fmt.Println("Timer:         idle")
	default:
		fmt.Printf("Timer:         %s\n", st.State)
		fmt.Printf("Task:          %s [%s]\n", st.TaskName, st.Category)
		fmt.Printf("Elapsed:       %s\n", formatElapsed(st.Elapsed))
		if st.Limit > 0 {
			reached := ""
			if st.LimitReached {
				reached = " (reached)"
			}
			fmt.Printf("Limit:         %s%s\n", formatDurationHuman(st.Limit), reached)
		}
	}

	fmt.Println()
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s (%s)\n", dbPath, formatBytes(dbSize))
	fmt.Printf("Sessions:      %s\n", formatNumber(stats.TotalSessions))
	fmt.Printf("Tracked:       %s\n", formatElapsed(time.Duration(stats.TotalMs)*time.Millisecond))

	if stats.TotalSessions > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestStart.Local().Format("2006-01-02"))
		fmt.Printf("Newest:        %s\n", stats.NewestStart.Local().Format("2006-01-02"))
	}

	if len(stats.Categories) > 0 {
		fmt.Println()
		fmt.Println("Categories:")
		for _, ct := range stats.Categories {
			fmt.Printf("  %-20s %6s  %s\n", ct.Category, formatNumber(ct.Count), transfer.FormatClock(ct.TotalMs))
		}
	}

	fmt.Println()
	printBackupLine(backup, now)
	return nil
}

func (c *StatusCommand) printStatusJSON(st tracker.Status, stats *storage.Stats, backup tracker.BackupStatus, dbPath string, dbSize int64) error {
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: dbSize,
		Timer:             st,
		TotalSessions:     stats.TotalSessions,
		TotalMs:           stats.TotalMs,
		Categories:        make([]categoryTotalJSON, len(stats.Categories)),
		Backup:            backup,
	}

	if stats.TotalSessions > 0 {
		out.OldestSession = stats.OldestStart.UTC().Format(time.RFC3339)
		out.NewestSession = stats.NewestStart.UTC().Format(time.RFC3339)
	}

	for i, ct := range stats.Categories {
		out.Categories[i] = categoryTotalJSON{Category: ct.Category, Count: ct.Count, TotalMs: ct.TotalMs}
	}

	return printJSON(out)
}

// getDatabaseSize returns the database file size in bytes.
// For on-disk databases, it uses os.Stat. For in-memory databases,
// it queries page_count * page_size.
func getDatabaseSize(db *sql.DB, dbPath string) int64 {
	// Try file stat first
	if info, err := os.Stat(dbPath); err == nil {
		return info.Size()
	}

	// Fallback: query SQLite for in-memory or unavailable file
	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
