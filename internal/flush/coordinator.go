package flush

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/injest-ai/countero/internal/aggregator"
	"github.com/injest-ai/countero/internal/counter"
	"github.com/injest-ai/countero/internal/events"
	"github.com/injest-ai/countero/internal/provider"
	"github.com/injest-ai/countero/internal/tracing"
)

// Coordinator triggers aggregator drains and serializes them against
// a provider. At most one Flush executes at a time; a Flush call that
// arrives while another is in flight blocks on the mutex and, once
// admitted, observes whatever the Aggregator looks like at that
// point — if nothing new accumulated it is a no-op, which is the
// coalescing behavior the spec calls for without any separate queue.
type Coordinator struct {
	mu sync.Mutex

	agg     *aggregator.Aggregator
	pending *aggregator.PendingIDs
	caps    *provider.Capabilities
	ack     Acknowledger
	emitter *events.Emitter
	logger  *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer

	maxMessages int

	flushCount   int
	lastFlushAt  time.Time
	avgBatchSize int
	errorCount   int
}

// New returns a Coordinator ready to fold events and run flushes.
// tracer may be nil, in which case flushes are not traced.
func New(caps *provider.Capabilities, ack Acknowledger, emitter *events.Emitter, logger *slog.Logger, maxMessages int, now func() time.Time, tracer trace.Tracer) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		agg:         aggregator.New(),
		pending:     aggregator.NewPendingIDs(),
		caps:        caps,
		ack:         ack,
		emitter:     emitter,
		logger:      logger,
		now:         now,
		tracer:      tracer,
		maxMessages: maxMessages,
	}
}

// Fold folds one parsed event and records its originating log id as
// pending. It reports whether the size trigger has now been met, in
// which case the caller should invoke Flush before issuing its next
// read.
func (c *Coordinator) Fold(evt counter.Event, id string) (sizeTriggered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agg.Add(evt)
	if id != "" {
		c.pending.Append(id)
	}
	return c.agg.Size() >= c.maxMessages
}

// PendingSize returns the Aggregator's current event count.
func (c *Coordinator) PendingSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.Size()
}

// Flush runs one flush cycle if the Aggregator is non-empty, applying
// whichever of the three outcomes the provider reports. It does not
// return provider errors: a total failure is handled internally
// (re-add, leave ids pending, emit an error event) because, per the
// error-handling design, runtime errors never propagate out of the
// flush path and terminate the consumer. The returned error is
// reserved for context cancellation.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.agg.Size() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	eventCount := c.agg.Size()
	batch := c.agg.Drain()
	idsToAck := c.pending.Snapshot()

	spanCtx, span := tracing.StartSpan(ctx, c.tracer, tracing.SpanFlushRun,
		trace.WithAttributes(tracing.BatchSizeAttr(eventCount), tracing.ScopeCountAttr(len(batch))))
	defer span.End()

	result, err := c.caps.Flush(spanCtx, provider.Batch(batch))
	if err != nil {
		tracing.SetSpanError(span, err)
		c.totalFailure(batch, idsToAck, err)
		return nil
	}

	switch {
	case len(result.Failed) == 0:
		tracing.SetSpanOK(span)
		c.success(ctx, batch, idsToAck)
	case len(result.Failed) < len(batch):
		span.SetAttributes(tracing.FailedCountAttr(len(result.Failed)))
		tracing.SetSpanOK(span)
		c.partialFailure(ctx, batch, idsToAck, result.Failed)
	default:
		// All scopes reported failed via FlushResult is
		// indistinguishable from total failure for retry purposes.
		c.totalFailure(batch, idsToAck, nil)
	}
	return nil
}

func (c *Coordinator) success(ctx context.Context, batch aggregator.Batch, idsToAck []string) {
	c.acknowledge(ctx, idsToAck)
	c.recordCompletedFlush(len(batch))
	c.emitter.Emit(events.Flush, map[string]any{
		"scopeCount":  len(batch),
		"flushNumber": c.flushCount,
	})
}

func (c *Coordinator) partialFailure(ctx context.Context, batch aggregator.Batch, idsToAck []string, failed provider.Batch) {
	for scope, delta := range failed {
		c.agg.Readd(scope, delta)
	}
	c.acknowledge(ctx, idsToAck)
	c.recordCompletedFlush(len(batch))
	c.emitter.Emit(events.Warn, map[string]any{
		"message":      "Partial flush failure",
		"failedScopes": len(failed),
		"totalScopes":  len(batch),
	})
}

func (c *Coordinator) totalFailure(batch aggregator.Batch, idsToAck []string, err error) {
	c.errorCount++
	for scope, delta := range batch {
		c.agg.Readd(scope, delta)
	}
	c.pending.PrependBack(idsToAck)

	payload := map[string]any{"message": "flush failed"}
	if err != nil {
		payload["error"] = err.Error()
	} else {
		payload["reason"] = "all scopes failed"
	}
	c.emitter.Emit(events.Error, payload)
}

func (c *Coordinator) acknowledge(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := c.ack.Acknowledge(ctx, ids); err != nil {
		c.logger.Error("acknowledge failed after durable flush", "error", err, "count", len(ids))
	}
}

// recordCompletedFlush updates flushCount, lastFlushAt and the
// running avgBatchSize mean. batchSize comes from flushes that
// succeeded in full or in part; a total failure never calls this.
func (c *Coordinator) recordCompletedFlush(batchSize int) {
	c.flushCount++
	c.avgBatchSize = int(math.Round(
		(float64(c.avgBatchSize)*float64(c.flushCount-1) + float64(batchSize)) / float64(c.flushCount),
	))
	c.lastFlushAt = c.now()
}

// RecordReadError increments the shared error counter for a log read
// failure. Unlike a flush total failure it does not touch the
// Aggregator: in-flight aggregation is preserved across read errors.
func (c *Coordinator) RecordReadError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}

// Stats returns a snapshot of flush-related statistics.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		FlushCount:      c.flushCount,
		LastFlushAt:     c.lastFlushAt,
		PendingMessages: c.agg.Size(),
		AvgBatchSize:    c.avgBatchSize,
		ErrorCount:      c.errorCount,
	}
}

// RunTimer arms a recurring flush trigger with the given period. It
// blocks until ctx is canceled; callers run it in its own goroutine.
// The timer reschedules itself only after each flush completes (or
// immediately if there was nothing to flush), and never fires again
// once ctx is done.
func (c *Coordinator) RunTimer(ctx context.Context, window time.Duration) {
	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			_ = c.Flush(ctx)
			timer.Reset(window)
		}
	}
}
