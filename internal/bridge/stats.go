package bridge

import (
	"time"

	"github.com/injest-ai/countero/internal/flush"
)

// Stats is the consumer-facing read-only observability snapshot.
type Stats struct {
	EventsProcessed int64
	FlushCount      int
	LastFlushAt     time.Time
	PendingMessages int
	AvgBatchSize    int
	ErrorCount      int
}

func composeStats(eventsProcessed int64, fs flush.Stats) Stats {
	return Stats{
		EventsProcessed: eventsProcessed,
		FlushCount:      fs.FlushCount,
		LastFlushAt:     fs.LastFlushAt,
		PendingMessages: fs.PendingMessages,
		AvgBatchSize:    fs.AvgBatchSize,
		ErrorCount:      fs.ErrorCount,
	}
}
