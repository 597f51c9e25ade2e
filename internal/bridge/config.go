package bridge

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/injest-ai/countero/internal/counter"
	"github.com/injest-ai/countero/internal/eventlog"
	"github.com/injest-ai/countero/internal/provider"
)

// Config configures a new Engine.
type Config struct {
	Log      eventlog.Log
	Provider provider.Provider

	// Filter is an optional admission predicate evaluated over every
	// parsed event before it reaches the aggregator. Rejected events
	// are acknowledged immediately (they were read successfully and
	// deliberately dropped by operator policy) rather than retried.
	Filter *counter.EventFilter

	// Tracer, if non-nil, wraps log reads and flushes in OpenTelemetry
	// spans. A nil Tracer is a valid no-op (see tracing.StartSpan).
	Tracer trace.Tracer

	Logger *slog.Logger

	// MaxWait is the flush window: both the live-read blocking
	// timeout and the recurring flush timer period.
	MaxWait time.Duration
	// MaxMessages is the flush size threshold.
	MaxMessages int
	// BatchSize bounds how many entries a single read call returns.
	BatchSize int

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Millisecond
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = c.MaxMessages
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
