package flush

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/injest-ai/countero/internal/counter"
	"github.com/injest-ai/countero/internal/events"
	"github.com/injest-ai/countero/internal/provider"
	"github.com/injest-ai/countero/internal/provider/memstore"
)

type fakeAck struct {
	mu  sync.Mutex
	got [][]string
	err error
}

func (f *fakeAck) Acknowledge(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]string{}, ids...)
	f.got = append(f.got, cp)
	return f.err
}

func (f *fakeAck) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.got {
		out = append(out, batch...)
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCoordinator_SuccessAcksAndUpdatesStats(t *testing.T) {
	store := memstore.New()
	caps := provider.Detect(store)
	ack := &fakeAck{}
	em := events.NewEmitter()
	flushCh := em.Subscribe(events.Flush)

	c := New(caps, ack, em, testLogger(), 1000, fixedClock(time.UnixMilli(1000)), nil)
	c.Fold(counter.Event{Scope: "x", Delta: 3}, "1-0")

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got, _ := store.Get(context.Background(), "x")
	if got != 3 {
		t.Errorf("store[x] = %d, want 3", got)
	}
	if !contains(ack.all(), "1-0") {
		t.Errorf("expected id 1-0 acknowledged, got %v", ack.all())
	}

	stats := c.Stats()
	if stats.FlushCount != 1 || stats.AvgBatchSize != 1 || stats.PendingMessages != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	select {
	case evt := <-flushCh:
		if evt.Payload["scopeCount"] != 1 {
			t.Errorf("flush event scopeCount = %v", evt.Payload["scopeCount"])
		}
	default:
		t.Fatal("expected a flush event")
	}
}

func TestCoordinator_TotalFailure(t *testing.T) {
	store := memstore.New()
	store.FailNext = errors.New("provider down")
	caps := provider.Detect(store)
	ack := &fakeAck{}
	em := events.NewEmitter()
	errCh := em.Subscribe(events.Error)

	c := New(caps, ack, em, testLogger(), 1000, fixedClock(time.UnixMilli(1000)), nil)
	c.Fold(counter.Event{Scope: "y", Delta: 1}, "3-0")

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(ack.all()) != 0 {
		t.Errorf("expected no ids acknowledged on total failure, got %v", ack.all())
	}
	if c.PendingSize() != 1 {
		t.Errorf("expected batch re-added to aggregator, PendingSize() = %d", c.PendingSize())
	}

	select {
	case <-errCh:
	default:
		t.Fatal("expected an error event")
	}

	stats := c.Stats()
	if stats.ErrorCount != 1 || stats.FlushCount != 0 {
		t.Errorf("unexpected stats after total failure: %+v", stats)
	}

	// id must remain in the pending list for the next flush attempt.
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if !contains(ack.all(), "3-0") {
		t.Errorf("expected id 3-0 to be acknowledged once provider recovers, got %v", ack.all())
	}
}

func TestCoordinator_PartialFailureReAddsAndAcks(t *testing.T) {
	store := memstore.New()
	store.FailScopes = map[string]bool{"b": true}
	caps := provider.Detect(store)
	ack := &fakeAck{}
	em := events.NewEmitter()
	warnCh := em.Subscribe(events.Warn)

	c := New(caps, ack, em, testLogger(), 1000, fixedClock(time.UnixMilli(1000)), nil)
	c.Fold(counter.Event{Scope: "a", Delta: 1}, "10-0")
	c.Fold(counter.Event{Scope: "b", Delta: 2}, "11-0")

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	all := ack.all()
	if !contains(all, "10-0") || !contains(all, "11-0") {
		t.Errorf("expected both ids acknowledged on partial failure, got %v", all)
	}
	if c.PendingSize() != 1 {
		t.Errorf("expected failed scope re-added, PendingSize() = %d", c.PendingSize())
	}

	select {
	case evt := <-warnCh:
		if evt.Payload["message"] != "Partial flush failure" {
			t.Errorf("unexpected warn payload: %+v", evt.Payload)
		}
	default:
		t.Fatal("expected a warn event")
	}

	stats := c.Stats()
	if stats.FlushCount != 1 {
		t.Errorf("expected flushCount incremented on partial success, got %d", stats.FlushCount)
	}
}

func TestCoordinator_AllScopesFailedIsTotalFailure(t *testing.T) {
	store := memstore.New()
	store.FailScopes = map[string]bool{"a": true, "b": true}
	caps := provider.Detect(store)
	ack := &fakeAck{}
	em := events.NewEmitter()
	warnCh := em.Subscribe(events.Warn)
	errCh := em.Subscribe(events.Error)

	c := New(caps, ack, em, testLogger(), 1000, fixedClock(time.UnixMilli(1000)), nil)
	c.Fold(counter.Event{Scope: "a", Delta: 1}, "20-0")
	c.Fold(counter.Event{Scope: "b", Delta: 2}, "21-0")

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(ack.all()) != 0 {
		t.Errorf("all-failed flush must not acknowledge, got %v", ack.all())
	}
	if c.PendingSize() != 2 {
		t.Errorf("expected both scopes re-added, PendingSize() = %d", c.PendingSize())
	}

	select {
	case <-warnCh:
		t.Fatal("all-scopes-failed must not emit a partial-failure warning")
	default:
	}
	select {
	case <-errCh:
	default:
		t.Fatal("expected an error event for all-scopes-failed")
	}
}

func TestCoordinator_EmptyAggregatorFlushIsNoop(t *testing.T) {
	store := memstore.New()
	caps := provider.Detect(store)
	ack := &fakeAck{}
	em := events.NewEmitter()

	c := New(caps, ack, em, testLogger(), 1000, fixedClock(time.UnixMilli(1000)), nil)

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if c.Stats().FlushCount != 0 {
		t.Errorf("expected no-op flush to leave flushCount at 0")
	}
}

func TestCoordinator_SizeTriggerReported(t *testing.T) {
	caps := provider.Detect(memstore.New())
	c := New(caps, &fakeAck{}, events.NewEmitter(), testLogger(), 2, fixedClock(time.UnixMilli(1000)), nil)

	if triggered := c.Fold(counter.Event{Scope: "x", Delta: 1}, "1-0"); triggered {
		t.Error("should not trigger before reaching maxMessages")
	}
	if triggered := c.Fold(counter.Event{Scope: "x", Delta: 1}, "2-0"); !triggered {
		t.Error("expected size trigger once maxMessages reached")
	}
}

func TestCoordinator_AvgBatchSizeRunningMean(t *testing.T) {
	caps := provider.Detect(memstore.New())
	c := New(caps, &fakeAck{}, events.NewEmitter(), testLogger(), 1000, fixedClock(time.UnixMilli(1000)), nil)

	c.Fold(counter.Event{Scope: "a", Delta: 1}, "1-0")
	c.Flush(context.Background())
	if got := c.Stats().AvgBatchSize; got != 1 {
		t.Fatalf("avgBatchSize after first flush = %d, want 1", got)
	}

	c.Fold(counter.Event{Scope: "a", Delta: 1}, "2-0")
	c.Fold(counter.Event{Scope: "b", Delta: 1}, "3-0")
	c.Fold(counter.Event{Scope: "c", Delta: 1}, "4-0")
	c.Flush(context.Background())
	if got := c.Stats().AvgBatchSize; got != 2 {
		t.Fatalf("avgBatchSize after second flush = %d, want 2", got)
	}
}

func TestCoordinator_RecordReadErrorPreservesAggregator(t *testing.T) {
	caps := provider.Detect(memstore.New())
	c := New(caps, &fakeAck{}, events.NewEmitter(), testLogger(), 1000, fixedClock(time.UnixMilli(1000)), nil)

	c.Fold(counter.Event{Scope: "x", Delta: 1}, "1-0")
	c.RecordReadError()

	if c.PendingSize() != 1 {
		t.Errorf("expected aggregator untouched by read error, PendingSize() = %d", c.PendingSize())
	}
	if c.Stats().ErrorCount != 1 {
		t.Errorf("expected errorCount incremented, got %d", c.Stats().ErrorCount)
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
