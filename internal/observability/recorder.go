package observability

import (
	"context"
	"time"

	"github.com/injest-ai/countero/internal/events"
)

// subscriber is the slice of bridge.Engine used by Record. Defined
// locally to avoid an import cycle with the bridge package.
type subscriber interface {
	Subscribe(kind events.Kind) <-chan events.Event
}

// Snapshot carries the gauge-like fields Record polls periodically.
// bridge.Stats has fields of the same names, but is a different type:
// callers pass a poll closure that copies them out of e.GetStats (see
// cmd/counter-bridge).
type Snapshot struct {
	EventsProcessed int64
	PendingMessages int
}

// Record drains the engine's event channels and updates m until ctx is
// canceled. poll is called on a fixed tick to refresh gauge-like
// fields that events alone don't carry (pending size can go up or
// down outside of a flush). Run it in its own goroutine alongside the
// engine.
func Record(ctx context.Context, e subscriber, poll func() Snapshot, m *Metrics) {
	flushCh := e.Subscribe(events.Flush)
	warnCh := e.Subscribe(events.Warn)
	errCh := e.Subscribe(events.Error)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastProcessed int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := poll()
			if delta := snap.EventsProcessed - lastProcessed; delta > 0 {
				m.EventsProcessedTotal.Add(float64(delta))
			}
			lastProcessed = snap.EventsProcessed
			m.PendingMessages.Set(float64(snap.PendingMessages))
		case evt := <-flushCh:
			m.FlushTotal.WithLabelValues("success").Inc()
			if n, ok := evt.Payload["scopeCount"].(int); ok {
				m.FlushBatchSize.Observe(float64(n))
			}
		case evt := <-warnCh:
			if evt.Payload["message"] == "Partial flush failure" {
				m.FlushTotal.WithLabelValues("partial").Inc()
			} else if evt.Payload["message"] == "Dropped malformed event" {
				m.EventsDroppedTotal.WithLabelValues("malformed").Inc()
			}
		case evt := <-errCh:
			if evt.Payload["message"] == "log read failed" {
				m.ReadErrorsTotal.Inc()
			} else {
				m.FlushTotal.WithLabelValues("total_failure").Inc()
			}
		}
	}
}
