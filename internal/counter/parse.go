package counter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformed is wrapped by Parse when a required field is missing or
// unparseable. The caller should log it (with the raw fields attached,
// see MalformedError.Fields) and drop the entry.
var ErrMalformed = errors.New("malformed counter event")

// MalformedError carries the raw fields of a dropped entry for
// diagnostic logging.
type MalformedError struct {
	Reason string
	Fields []Field
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: %s (fields=%v)", ErrMalformed, e.Reason, e.Fields)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Result is the outcome of parsing one log entry. Warning is non-empty
// when a non-fatal problem occurred (currently: an unparseable metadata
// blob) — the event is still valid and should be used as-is.
type Result struct {
	Event   Event
	Warning string
}

// Parse validates a flat field list into a CounterEvent.
//
// Required: scope (non-empty), delta (parseable signed integer).
// Optional: timestamp (parseable integer, defaults to now), metadata (an
// encoded key/value blob; a decode failure is non-fatal — the event is
// returned without metadata and Result.Warning is set).
func Parse(entry LogEntry, now func() time.Time) (Result, error) {
	scope, ok := entry.lookup("scope")
	if !ok || scope == "" {
		return Result{}, &MalformedError{Reason: "missing or empty scope", Fields: entry.Fields}
	}

	deltaRaw, ok := entry.lookup("delta")
	if !ok {
		return Result{}, &MalformedError{Reason: "missing delta", Fields: entry.Fields}
	}
	delta, err := strconv.ParseInt(deltaRaw, 10, 64)
	if err != nil {
		return Result{}, &MalformedError{Reason: "delta is not a finite signed integer", Fields: entry.Fields}
	}

	ts := now().UnixMilli()
	if rawTS, ok := entry.lookup("timestamp"); ok {
		if parsed, err := strconv.ParseInt(rawTS, 10, 64); err == nil {
			ts = parsed
		}
		// Unparseable timestamp falls back to wall clock; it is
		// informational only (spec.md §3), not worth dropping the event.
	}

	evt := Event{Scope: scope, Delta: delta, Timestamp: ts}

	var warning string
	if rawMeta, ok := entry.lookup("metadata"); ok && rawMeta != "" {
		meta, decErr := decodeMetadata(rawMeta)
		if decErr != nil {
			warning = fmt.Sprintf("metadata decode failed for scope %q: %v", scope, decErr)
		} else {
			evt.Metadata = meta
		}
	}

	return Result{Event: evt, Warning: warning}, nil
}

// decodeMetadata parses the metadata blob. Producers encode it as a flat
// JSON object of string values; this is the "JSON-like text form agreed
// with producers" referenced in spec.md §6.
func decodeMetadata(raw string) (map[string]string, error) {
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
