package flush

import "time"

// Stats is the flush-related subset of the bridge's observability
// snapshot. The bridge composes this with eventsProcessed (which it
// tracks itself) to produce the full consumer-facing Stats.
type Stats struct {
	FlushCount      int
	LastFlushAt     time.Time
	PendingMessages int
	AvgBatchSize    int
	ErrorCount      int
}
