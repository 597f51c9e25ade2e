// Package eventlog defines the consumer-group log abstraction the
// stream reader drives: group creation, two read cursors (pending and
// new), and acknowledgement. internal/eventlog/kafka is the concrete
// binding onto Kafka consumer groups.
package eventlog

import (
	"context"
	"time"

	"github.com/injest-ai/countero/internal/counter"
)

// ErrGroupExists names the "consumer group already exists" condition.
// Log implementations swallow it inside EnsureGroup and return nil
// (see Log.EnsureGroup); the bridge treats any error EnsureGroup does
// return as fatal at startup.
var ErrGroupExists = errGroupExists{}

type errGroupExists struct{}

func (errGroupExists) Error() string { return "eventlog: consumer group already exists" }

// Log is the append-only, consumer-group-backed store the stream
// reader consumes from.
type Log interface {
	// EnsureGroup creates the consumer group (and, if needed, the
	// underlying log) starting at the log origin. It must swallow
	// ErrGroupExists-equivalent conditions internally and return nil
	// for them; any other error is fatal.
	EnsureGroup(ctx context.Context) error

	// ReadPending returns entries previously delivered to this
	// consumer but not yet acknowledged (the in-flight set), bounded
	// by count. An empty, nil-error result means the in-flight set is
	// exhausted.
	ReadPending(ctx context.Context, count int) ([]counter.LogEntry, error)

	// ReadNew blocks for up to timeout waiting for new entries,
	// returning at most count of them. A timeout with nothing
	// available returns an empty slice and a nil error, not a
	// deadline-exceeded error.
	ReadNew(ctx context.Context, count int, timeout time.Duration) ([]counter.LogEntry, error)

	// Acknowledge marks the given entry ids as durably processed.
	Acknowledge(ctx context.Context, ids []string) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
