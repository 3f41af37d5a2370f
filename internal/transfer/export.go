// Package transfer moves session history in and out of the store as CSV
// and JSON files.
package transfer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/runnerr0/tempo/internal/storage"
)

// ErrNothingToExport is returned when there are no sessions to write.
var ErrNothingToExport = errors.New("no data to export")

// Format names an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv or json)", s)
	}
}

// FileName returns the default backup file name for an export taken at now.
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("timetracker_backup_%s.%s", now.UTC().Format("2006-01-02"), f)
}

var csvHeader = []string{"Date", "Task Name", "Category", "Duration (Formatted)", "Duration (Seconds)"}

// FormatClock renders milliseconds as MM:SS. Minutes are not wrapped into
// hours, so 90 minutes renders as 90:00.
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Write writes sessions in the given format.
func Write(w io.Writer, f Format, sessions []storage.Session, loc *time.Location) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, sessions, loc)
	case FormatJSON:
		return WriteJSON(w, sessions)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// WriteCSV writes one row per session. The date column is the day the
// session was saved, in loc.
func WriteCSV(w io.Writer, sessions []storage.Session, loc *time.Location) error {
	if len(sessions) == 0 {
		return ErrNothingToExport
	}
	if loc == nil {
		loc = time.Local
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range sessions {
		row := []string{
			s.CreatedAt.In(loc).Format("2006-01-02"),
			strings.ReplaceAll(s.TaskName, ",", " "),
			s.Category,
			FormatClock(s.DurationMs),
			strconv.FormatInt(int64(math.Round(float64(s.DurationMs)/1000)), 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", s.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes sessions as an indented JSON array.
func WriteJSON(w io.Writer, sessions []storage.Session) error {
	if len(sessions) == 0 {
		return ErrNothingToExport
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sessions); err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	return nil
}
