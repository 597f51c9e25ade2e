// Package provider defines the pluggable persistence contract the
// flush coordinator drives, and the capability surface optional
// providers may implement.
//
// Capability support is a configuration-time property, not something
// probed via runtime type assertions scattered through the flush
// path: a Provider is wrapped once, at startup, into a Capabilities
// struct that records which optional methods are present. This keeps
// the hot flush path free of type switches.
//
// Duplicate delivery is not deduplicated here or anywhere in this
// module: Flush is additive (upsert), and at-least-once redelivery
// across a crash means the same net-delta batch can be applied more
// than once. A provider wanting exactly-once effective writes must
// layer an idempotency key of its own; see DESIGN.md.
package provider

import "context"

// Batch is a scope to net-delta mapping to persist.
type Batch map[string]int64

// Result is the outcome of a Flush call that did not raise an error.
// A nil or empty Failed map means every scope in the batch was
// persisted.
type Result struct {
	// Failed carries the subset of the batch that could not be
	// persisted, with delta values preserved verbatim from the
	// original batch — they are the source of truth for retry.
	Failed Batch
}

// Provider is the persistence backend the flush coordinator invokes.
// Implementations must not block indefinitely; the core imposes no
// timeout on Flush or Get, so a provider is responsible for its own.
type Provider interface {
	// Flush persists net deltas by adding them to any existing stored
	// value. A returned error means total failure: no part of the
	// batch may be assumed durable.
	Flush(ctx context.Context, batch Batch) (Result, error)

	// Get returns the current persisted value for a scope, or zero if
	// the scope has never been written.
	Get(ctx context.Context, scope string) (int64, error)
}

// Initializer is an optional capability: called once before any read
// or flush.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Closer is an optional capability: called once during shutdown.
type Closer interface {
	Close(ctx context.Context) error
}

// BatchGetter is an optional capability: a batched read. Absence
// means the caller falls back to parallel single Get calls.
type BatchGetter interface {
	GetBatch(ctx context.Context, scopes []string) (map[string]int64, error)
}

// Deleter is an optional capability: removes a scope entirely.
type Deleter interface {
	Delete(ctx context.Context, scope string) error
}

// Capabilities wraps a Provider with its optional-method support
// resolved once, at configuration time.
type Capabilities struct {
	Provider

	initializer Initializer
	closer      Closer
	batchGetter BatchGetter
	deleter     Deleter
}

// Detect inspects p for the optional capability interfaces and
// returns a Capabilities wrapper. Call this once, when the provider
// is configured, not on every flush.
func Detect(p Provider) *Capabilities {
	c := &Capabilities{Provider: p}
	c.initializer, _ = p.(Initializer)
	c.closer, _ = p.(Closer)
	c.batchGetter, _ = p.(BatchGetter)
	c.deleter, _ = p.(Deleter)
	return c
}

// SupportsInitialize reports whether the wrapped provider has an
// Initialize method.
func (c *Capabilities) SupportsInitialize() bool { return c.initializer != nil }

// SupportsClose reports whether the wrapped provider has a Close
// method.
func (c *Capabilities) SupportsClose() bool { return c.closer != nil }

// SupportsGetBatch reports whether the wrapped provider has a
// GetBatch method.
func (c *Capabilities) SupportsGetBatch() bool { return c.batchGetter != nil }

// SupportsDelete reports whether the wrapped provider has a Delete
// method.
func (c *Capabilities) SupportsDelete() bool { return c.deleter != nil }

// Initialize calls the wrapped provider's Initialize if present,
// otherwise it is a no-op.
func (c *Capabilities) Initialize(ctx context.Context) error {
	if c.initializer == nil {
		return nil
	}
	return c.initializer.Initialize(ctx)
}

// Close calls the wrapped provider's Close if present, otherwise it
// is a no-op.
func (c *Capabilities) Close(ctx context.Context) error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close(ctx)
}

// Delete calls the wrapped provider's Delete if present, otherwise it
// returns ErrUnsupported.
func (c *Capabilities) Delete(ctx context.Context, scope string) error {
	if c.deleter == nil {
		return ErrUnsupported
	}
	return c.deleter.Delete(ctx, scope)
}

// GetBatch calls the wrapped provider's GetBatch if present;
// otherwise it falls back to parallel single Get calls.
func (c *Capabilities) GetBatch(ctx context.Context, scopes []string) (map[string]int64, error) {
	if c.batchGetter != nil {
		return c.batchGetter.GetBatch(ctx, scopes)
	}
	return parallelGet(ctx, c.Provider, scopes)
}

func parallelGet(ctx context.Context, p Provider, scopes []string) (map[string]int64, error) {
	type result struct {
		scope string
		val   int64
		err   error
	}

	results := make(chan result, len(scopes))
	for _, scope := range scopes {
		scope := scope
		go func() {
			val, err := p.Get(ctx, scope)
			results <- result{scope: scope, val: val, err: err}
		}()
	}

	out := make(map[string]int64, len(scopes))
	var firstErr error
	for range scopes {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out[r.scope] = r.val
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
