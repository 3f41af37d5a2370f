package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Start        *StartCommand
	Pause        *PauseCommand
	Resume       *ResumeCommand
	Stop         *StopCommand
	Discard      *DiscardCommand
	Status       *StatusCommand
	Watch        *WatchCommand
	List         *ListCommand
	Edit         *EditCommand
	Delete       *DeleteCommand
	Export       *ExportCommand
	Import       *ImportCommand
	Limits       *LimitsCommand
	BackupStatus *BackupStatusCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tempo"
	parser.LongDescription = "Local time tracker: time tasks, keep a session history, export and re-import it."

	cmds := &commands{
		Start:        &StartCommand{globals: &globals, version: version},
		Pause:        &PauseCommand{globals: &globals, version: version},
		Resume:       &ResumeCommand{globals: &globals, version: version},
		Stop:         &StopCommand{globals: &globals, version: version},
		Discard:      &DiscardCommand{globals: &globals, version: version},
		Status:       &StatusCommand{globals: &globals, version: version},
		Watch:        &WatchCommand{globals: &globals, version: version},
		List:         &ListCommand{globals: &globals, version: version},
		Edit:         &EditCommand{globals: &globals, version: version},
		Delete:       &DeleteCommand{globals: &globals, version: version},
		Export:       &ExportCommand{globals: &globals, version: version},
		Import:       &ImportCommand{globals: &globals, version: version},
		Limits:       &LimitsCommand{globals: &globals, version: version},
		BackupStatus: &BackupStatusCommand{globals: &globals, version: version},
	}

	parser.AddCommand("start", "Start or resume a task", "Start timing a new task, or resume the paused one.", cmds.Start)
	parser.AddCommand("pause", "Pause the running task", "Pause the running task. Paused time is not counted.", cmds.Pause)
	parser.AddCommand("resume", "Resume the paused task", "Resume the paused task.", cmds.Resume)
	parser.AddCommand("stop", "Stop the task and save it", "Stop the task and save it as a session. Very short tasks can be discarded.", cmds.Stop)
	parser.AddCommand("discard", "Drop the task without saving", "Stop the task in progress without saving it.", cmds.Discard)
	parser.AddCommand("status", "Show the timer and history summary", "Show the task in progress, history statistics and backup status.", cmds.Status)
	parser.AddCommand("watch", "Follow the running timer", "Print the running timer every tick and deliver limit alerts until interrupted.", cmds.Watch)
	parser.AddCommand("list", "List saved sessions", "List saved sessions, most recent first.", cmds.List)
	parser.AddCommand("edit", "Rename or recategorize a session", "Change the task name or category of a saved session.", cmds.Edit)
	parser.AddCommand("delete", "Delete a session", "Delete a saved session. Prompts for confirmation unless --force.", cmds.Delete)
	parser.AddCommand("export", "Export history to CSV or JSON", "Write the session history to a CSV or JSON file and record the backup time.", cmds.Export)
	parser.AddCommand("import", "Import sessions from a JSON export", "Merge sessions from a JSON export. Sessions already present are skipped.", cmds.Import)
	parser.AddCommand("limits", "Show or set category limits", "Show category time limits, or set one with --category and --minutes.", cmds.Limits)
	parser.AddCommand("backup-status", "Report whether a backup is due", "Report when history was last exported and whether a backup is overdue.", cmds.BackupStatus)

	return parser, &globals, cmds
}

// Run is the main entry point for the tempo CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tempo %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
