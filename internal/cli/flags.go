package cli

import "sync"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DBPath  string `long:"db-path" description:"Override the database file path"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StartCommand starts a new task, or resumes a paused one.
type StartCommand struct {
	Task     string `long:"task" short:"t" description:"Task name"`
	Category string `long:"category" short:"c" description:"Category (work, study, break, ...)"`

	globals *GlobalFlags
	version string
}

// PauseCommand pauses the running task.
type PauseCommand struct {
	globals *GlobalFlags
	version string
}

// ResumeCommand resumes the paused task.
type ResumeCommand struct {
	globals *GlobalFlags
	version string
}

// StopCommand stops the task and saves it as a session.
type StopCommand struct {
	Yes bool `long:"yes" short:"y" description:"Discard a too-short task without asking"`

	globals *GlobalFlags
	version string
}

// DiscardCommand drops the task without saving.
type DiscardCommand struct {
	globals *GlobalFlags
	version string
}

// StatusCommand shows the task in progress and history statistics.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// WatchCommand keeps the process in the foreground, printing the timer
// and delivering limit alerts.
type WatchCommand struct {
	Once bool `long:"once" description:"Print a single status line and exit"`

	globals *GlobalFlags
	version string

	initOnce sync.Once
	endOnce  sync.Once
	ended    chan struct{}
}

// ListCommand lists saved sessions, most recent first.
type ListCommand struct {
	Limit    int    `long:"limit" short:"n" description:"Maximum results" default:"10"`
	All      bool   `long:"all" description:"List every session"`
	Since    string `long:"since" description:"Only sessions newer than duration (e.g., 7d, 24h, 2w)"`
	Category string `long:"category" short:"c" description:"Only sessions in this category"`

	globals *GlobalFlags
	version string
}

// EditCommand renames or recategorizes a saved session.
type EditCommand struct {
	ID       int64  `long:"id" description:"Session ID (required)"`
	Task     string `long:"task" short:"t" description:"New task name"`
	Category string `long:"category" short:"c" description:"New category"`

	globals *GlobalFlags
	version string
}

// DeleteCommand deletes a saved session.
type DeleteCommand struct {
	ID    int64 `long:"id" description:"Session ID (required)"`
	Force bool  `long:"force" description:"Skip confirmation prompt"`

	globals *GlobalFlags
	version string
}

// ExportCommand writes the history to a CSV or JSON file.
type ExportCommand struct {
	Format string `long:"format" short:"f" description:"Output format: csv | json" default:"json"`
	Output string `long:"output" short:"o" description:"Output file (- for stdout; default: dated file in the export directory)"`

	globals *GlobalFlags
	version string
}

// ImportCommand merges sessions from a JSON export.
type ImportCommand struct {
	File string `long:"file" description:"JSON file to import (required)"`
	Yes  bool   `long:"yes" short:"y" description:"Skip confirmation prompt"`

	globals *GlobalFlags
	version string
}

// LimitsCommand shows or sets category time limits.
type LimitsCommand struct {
	Category string `long:"category" short:"c" description:"Category to set"`
	Minutes  *int   `long:"minutes" short:"m" description:"Limit in minutes (0 disables)"`

	globals *GlobalFlags
	version string
}

// BackupStatusCommand reports whether an export is due.
type BackupStatusCommand struct {
	globals *GlobalFlags
	version string
}
