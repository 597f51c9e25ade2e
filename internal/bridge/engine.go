package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/injest-ai/countero/internal/counter"
	"github.com/injest-ai/countero/internal/eventlog"
	"github.com/injest-ai/countero/internal/events"
	"github.com/injest-ai/countero/internal/flush"
	"github.com/injest-ai/countero/internal/provider"
	"github.com/injest-ai/countero/internal/tracing"
)

// readErrorBackoff is the fixed interval the read loop waits after a
// log read failure before retrying (spec design target: ~1 second).
const readErrorBackoff = time.Second

// Engine is the long-running counter bridge process: it owns the log
// connection, the flush coordinator, and the observability emitter.
type Engine struct {
	cfg         Config
	log         eventlog.Log
	caps        *provider.Capabilities
	coordinator *flush.Coordinator
	emitter     *events.Emitter
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	eventsProcessed atomic.Int64
	readBackoff     *readBackoff
}

// New builds an Engine. It does not touch the log or provider; call
// Start to do that.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	caps := provider.Detect(cfg.Provider)
	emitter := events.NewEmitter()

	e := &Engine{
		cfg:         cfg,
		log:         cfg.Log,
		caps:        caps,
		emitter:     emitter,
		logger:      cfg.Logger,
		readBackoff: newReadBackoff(readErrorBackoff),
	}
	e.coordinator = flush.New(caps, e, emitter, cfg.Logger, cfg.MaxMessages, cfg.Now, cfg.Tracer)
	return e
}

// Acknowledge implements flush.Acknowledger by delegating to the log.
func (e *Engine) Acknowledge(ctx context.Context, ids []string) error {
	return e.log.Acknowledge(ctx, ids)
}

// Start is idempotent: calling it twice is a no-op after the first.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.caps.Initialize(ctx); err != nil {
		return fmt.Errorf("provider initialize: %w", err)
	}

	if err := e.log.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("recovery: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	e.emitter.Emit(events.Started, nil)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.readLoop(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.coordinator.RunTimer(runCtx, e.cfg.MaxWait)
	}()

	return nil
}

// recover drains the pending (in-flight) set and flushes it
// synchronously before live consumption begins.
func (e *Engine) recover(ctx context.Context) error {
	spanCtx, span := tracing.StartSpan(ctx, e.cfg.Tracer, tracing.SpanEventLogRecover)
	defer span.End()

	for {
		entries, err := e.log.ReadPending(spanCtx, e.cfg.BatchSize)
		if err != nil {
			tracing.SetSpanError(span, err)
			return err
		}
		if len(entries) == 0 {
			break
		}
		for _, entry := range entries {
			e.foldEntry(spanCtx, entry)
		}
	}
	tracing.SetSpanOK(span)

	if err := e.coordinator.Flush(ctx); err != nil {
		return err
	}
	e.emitter.Emit(events.Recovery, map[string]any{"pendingMessages": e.coordinator.PendingSize()})
	return nil
}

// readLoop is the live-mode consumption loop. It runs until ctx is
// canceled by Stop.
func (e *Engine) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		spanCtx, span := tracing.StartSpan(ctx, e.cfg.Tracer, tracing.SpanEventLogRead)
		entries, err := e.log.ReadNew(spanCtx, e.cfg.BatchSize, e.cfg.MaxWait)
		if err != nil {
			tracing.SetSpanError(span, err)
			span.End()
			if ctx.Err() != nil {
				return
			}
			e.coordinator.RecordReadError()
			e.emitter.Emit(events.Error, map[string]any{"message": "log read failed", "error": err.Error()})
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.readBackoff.next()):
			}
			continue
		}
		tracing.SetSpanOK(span)
		span.End()
		e.readBackoff.recordSuccess()

		sizeTriggered := false
		for _, entry := range entries {
			if e.foldEntry(ctx, entry) {
				sizeTriggered = true
			}
		}
		if sizeTriggered {
			_ = e.coordinator.Flush(ctx)
		}
	}
}

// foldEntry parses one log entry and, if it passes validation and the
// optional admission filter, folds it into the aggregator. It reports
// whether the size trigger has now been met.
func (e *Engine) foldEntry(ctx context.Context, entry counter.LogEntry) bool {
	result, err := counter.Parse(entry, e.cfg.Now)
	if err != nil {
		e.logger.Warn("dropped malformed event", "id", entry.ID, "error", err)
		e.emitter.Emit(events.Warn, map[string]any{
			"message": "Dropped malformed event",
			"id":      entry.ID,
		})
		return false
	}
	if result.Warning != "" {
		e.emitter.Emit(events.Warn, map[string]any{"message": result.Warning})
	}

	if e.cfg.Filter != nil {
		allow, ferr := e.cfg.Filter.Allow(ctx, result.Event)
		if ferr != nil {
			e.logger.Warn("filter evaluation failed, admitting event", "id", entry.ID, "error", ferr)
		} else if !allow {
			if err := e.log.Acknowledge(ctx, []string{entry.ID}); err != nil {
				e.logger.Error("acknowledge of filtered event failed", "id", entry.ID, "error", err)
			}
			return false
		}
	}

	e.eventsProcessed.Add(1)
	return e.coordinator.Fold(result.Event, entry.ID)
}

// Stop is idempotent and safe even if Start failed partway: it cancels
// the read loop and flush timer, waits for both to exit, performs one
// final flush, closes the provider and the log connection, and emits
// a stopped event.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	var errs []error
	if err := e.coordinator.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}
	if err := e.caps.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("provider close: %w", err))
	}
	if err := e.log.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("log close: %w", err))
	}

	e.emitter.Emit(events.Stopped, nil)
	return errors.Join(errs...)
}

// Subscribe returns a channel receiving every future event of the
// given kind.
func (e *Engine) Subscribe(kind events.Kind) <-chan events.Event {
	return e.emitter.Subscribe(kind)
}

// GetStats returns a snapshot of the bridge's observability counters.
func (e *Engine) GetStats() Stats {
	return composeStats(e.eventsProcessed.Load(), e.coordinator.Stats())
}

// Get delegates to the provider.
func (e *Engine) Get(ctx context.Context, scope string) (int64, error) {
	spanCtx, span := tracing.StartSpan(ctx, e.cfg.Tracer, tracing.SpanProviderGet, trace.WithAttributes(tracing.ScopeAttr(scope)))
	defer span.End()

	val, err := e.caps.Get(spanCtx, scope)
	if err != nil {
		tracing.SetSpanError(span, err)
		return 0, err
	}
	tracing.SetSpanOK(span)
	return val, nil
}

// GetBatch delegates to the provider, falling back to parallel Get
// calls when the provider lacks native batch support.
func (e *Engine) GetBatch(ctx context.Context, scopes []string) (map[string]int64, error) {
	spanCtx, span := tracing.StartSpan(ctx, e.cfg.Tracer, tracing.SpanProviderGet, trace.WithAttributes(tracing.ScopeCountAttr(len(scopes))))
	defer span.End()

	vals, err := e.caps.GetBatch(spanCtx, scopes)
	if err != nil {
		tracing.SetSpanError(span, err)
		return nil, err
	}
	tracing.SetSpanOK(span)
	return vals, nil
}
