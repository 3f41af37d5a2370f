package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/runnerr0/tempo/internal/storage"
)

// ReadJSON parses an import file. The payload must be a JSON array of
// session objects; a single malformed record rejects the whole file.
func ReadJSON(r io.Reader) ([]storage.Session, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of sessions: %w", storage.ErrMalformedImport, err)
	}

	sessions := make([]storage.Session, 0, len(records))
	for i, raw := range records {
		s, err := parseRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", storage.ErrMalformedImport, i, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func parseRecord(raw json.RawMessage) (storage.Session, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return storage.Session{}, errors.New("not an object")
	}

	var s storage.Session
	var err error

	if s.TaskName, err = stringField(fields, "taskName"); err != nil {
		return s, err
	}
	if s.Category, err = stringField(fields, "category"); err != nil {
		return s, err
	}
	if s.DurationMs, err = intField(fields, "duration", true); err != nil {
		return s, err
	}
	if s.DurationMs < 0 {
		return s, fmt.Errorf("duration must not be negative, got %d", s.DurationMs)
	}
	if s.StartTime, err = timeField(fields, "startTime", true); err != nil {
		return s, err
	}
	if s.EndTime, err = timeField(fields, "endTime", true); err != nil {
		return s, err
	}
	if s.ID, err = intField(fields, "id", false); err != nil {
		return s, err
	}
	if s.CreatedAt, err = timeField(fields, "createdAt", false); err != nil {
		return s, err
	}
	return s, nil
}

func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := present(fields, name)
	if !ok {
		return "", fmt.Errorf("missing %s", name)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return v, nil
}

func intField(fields map[string]json.RawMessage, name string, required bool) (int64, error) {
	raw, ok := present(fields, name)
	if !ok {
		if required {
			return 0, fmt.Errorf("missing %s", name)
		}
		return 0, nil
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %s", name, n)
	}
	return v, nil
}

func timeField(fields map[string]json.RawMessage, name string, required bool) (time.Time, error) {
	raw, ok := present(fields, name)
	if !ok {
		if required {
			return time.Time{}, fmt.Errorf("missing %s", name)
		}
		return time.Time{}, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, fmt.Errorf("%s must be a string", name)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s is not an RFC 3339 timestamp: %q", name, v)
	}
	return t, nil
}
