package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/injest-ai/countero/internal/counter"
	"github.com/injest-ai/countero/internal/events"
	"github.com/injest-ai/countero/internal/provider/memstore"
)

// fakeLog is a hand-rolled eventlog.Log for tests: pending is served
// once, then ReadNew serves queued batches (or blocks until ctx is
// done if the queue is empty).
type fakeLog struct {
	mu             sync.Mutex
	pending        []counter.LogEntry
	newBatches     [][]counter.LogEntry
	acked          []string
	ackErr         error
	readNewErr     error
	readNewErrOnce bool
	closed         bool
}

func (f *fakeLog) EnsureGroup(ctx context.Context) error { return nil }

func (f *fakeLog) ReadPending(ctx context.Context, count int) ([]counter.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.pending
	f.pending = nil
	return entries, nil
}

func (f *fakeLog) ReadNew(ctx context.Context, count int, timeout time.Duration) ([]counter.LogEntry, error) {
	f.mu.Lock()
	if f.readNewErr != nil {
		err := f.readNewErr
		if f.readNewErrOnce {
			f.readNewErr = nil
		}
		f.mu.Unlock()
		return nil, err
	}
	if len(f.newBatches) > 0 {
		next := f.newBatches[0]
		f.newBatches = f.newBatches[1:]
		f.mu.Unlock()
		return next, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (f *fakeLog) Acknowledge(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return f.ackErr
}

func (f *fakeLog) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLog) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.acked...)
}

func entry(id, scope, delta string) counter.LogEntry {
	return counter.LogEntry{ID: id, Fields: []counter.Field{
		{Key: "scope", Value: scope},
		{Key: "delta", Value: delta},
	}}
}

func TestEngine_RecoveryFlushesBeforeLiveRead(t *testing.T) {
	log := &fakeLog{pending: []counter.LogEntry{entry("1-0", "x", "3")}}
	store := memstore.New()

	e := New(Config{Log: log, Provider: store, MaxWait: 20 * time.Millisecond, MaxMessages: 1000})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop(context.Background())

	got, _ := store.Get(context.Background(), "x")
	if got != 3 {
		t.Errorf("store[x] = %d, want 3", got)
	}
	if !contains(log.ackedIDs(), "1-0") {
		t.Errorf("expected id 1-0 acknowledged after recovery, got %v", log.ackedIDs())
	}
}

func TestEngine_StartIsIdempotent(t *testing.T) {
	log := &fakeLog{}
	store := memstore.New()
	e := New(Config{Log: log, Provider: store, MaxWait: 20 * time.Millisecond})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	defer e.Stop(context.Background())

	if !store.Initialized() {
		t.Error("expected provider initialized")
	}
}

func TestEngine_MalformedEventDroppedNotAcked(t *testing.T) {
	log := &fakeLog{pending: []counter.LogEntry{
		{ID: "bad-1", Fields: []counter.Field{{Key: "bad", Value: "data"}}},
	}}
	store := memstore.New()
	e := New(Config{Log: log, Provider: store, MaxWait: 20 * time.Millisecond})

	warnCh := e.Subscribe(events.Warn)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop(context.Background())

	if contains(log.ackedIDs(), "bad-1") {
		t.Error("malformed entry must not be acknowledged")
	}

	found := false
	for i := 0; i < 2; i++ {
		select {
		case evt := <-warnCh:
			if evt.Payload["message"] == "Dropped malformed event" {
				found = true
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !found {
		t.Error("expected a 'Dropped malformed event' warning")
	}
}

func TestEngine_TotalFailureReAddsAndDoesNotAck(t *testing.T) {
	log := &fakeLog{pending: []counter.LogEntry{entry("3-0", "y", "1")}}
	store := memstore.New()
	store.FailNext = errors.New("boom")

	e := New(Config{Log: log, Provider: store, MaxWait: 20 * time.Millisecond})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop(context.Background())

	if contains(log.ackedIDs(), "3-0") {
		t.Error("id must not be acknowledged after total failure")
	}
	stats := e.GetStats()
	if stats.PendingMessages != 1 {
		t.Errorf("expected batch re-added to aggregator, PendingMessages = %d", stats.PendingMessages)
	}
}

func TestEngine_StopIsIdempotentAndClosesLog(t *testing.T) {
	log := &fakeLog{}
	e := New(Config{Log: log, Provider: memstore.New(), MaxWait: 20 * time.Millisecond})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if !log.closed {
		t.Error("expected log closed after Stop")
	}
}

func TestEngine_StopBeforeStartIsSafe(t *testing.T) {
	e := New(Config{Log: &fakeLog{}, Provider: memstore.New()})
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() before Start() error = %v", err)
	}
}

func TestEngine_LiveReadFoldsAndSizeTriggerFlushes(t *testing.T) {
	log := &fakeLog{newBatches: [][]counter.LogEntry{
		{entry("5-0", "z", "2"), entry("5-1", "z", "3")},
	}}
	store := memstore.New()
	e := New(Config{Log: log, Provider: store, MaxWait: 20 * time.Millisecond, MaxMessages: 2})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop(context.Background())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got, _ := store.Get(context.Background(), "z"); got == 5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected size-triggered flush to persist z=5 within timeout")
}

func TestEngine_ReadErrorBacksOffAndRecovers(t *testing.T) {
	log := &fakeLog{
		readNewErr:     errors.New("broker unavailable"),
		readNewErrOnce: true,
		newBatches:     [][]counter.LogEntry{{entry("9-0", "w", "4")}},
	}
	store := memstore.New()
	e := New(Config{Log: log, Provider: store, MaxWait: 20 * time.Millisecond})

	errCh := e.Subscribe(events.Error)

	start := time.Now()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop(context.Background())

	select {
	case evt := <-errCh:
		if evt.Payload["message"] != "log read failed" {
			t.Errorf("unexpected error event payload: %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a 'log read failed' error event")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := store.Get(context.Background(), "w"); got == 4 {
			if elapsed := time.Since(start); elapsed < readErrorBackoff {
				t.Errorf("read after error recovered in %v, want at least the %v backoff", elapsed, readErrorBackoff)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the read loop to recover after the backoff and fold the next batch")
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
