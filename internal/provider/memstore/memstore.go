// Package memstore is a reference in-memory provider.Provider. It
// exists for tests and local development; it has no durability and
// is not meant for production use.
package memstore

import (
	"context"
	"sync"

	"github.com/injest-ai/countero/internal/provider"
)

// Store is an in-memory provider.Provider. Zero value is usable.
type Store struct {
	mu     sync.Mutex
	values map[string]int64

	// FailNext, when non-nil, is returned (and cleared) on the next
	// Flush call instead of applying the batch. Tests use this to
	// simulate total failure.
	FailNext error

	// FailScopes, when non-empty, causes the next Flush to report
	// those scopes as failed via Result.Failed instead of persisting
	// them, and is cleared after use.
	FailScopes map[string]bool

	initialized bool
	closed      bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string]int64)}
}

// Initialize marks the store ready. Present so Store exercises the
// provider.Initializer capability in tests.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// Close marks the store shut down. Present so Store exercises the
// provider.Closer capability in tests.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Flush applies batch to the stored values with upsert (additive)
// semantics.
func (s *Store) Flush(ctx context.Context, batch provider.Batch) (provider.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		s.values = make(map[string]int64)
	}

	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return provider.Result{}, err
	}

	if len(s.FailScopes) > 0 {
		failed := make(provider.Batch)
		for scope, delta := range batch {
			if s.FailScopes[scope] {
				failed[scope] = delta
				continue
			}
			s.values[scope] += delta
		}
		s.FailScopes = nil
		return provider.Result{Failed: failed}, nil
	}

	for scope, delta := range batch {
		s.values[scope] += delta
	}
	return provider.Result{}, nil
}

// Get returns the current value for scope, or zero if unwritten.
func (s *Store) Get(ctx context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[scope], nil
}

// GetBatch returns the current values for scopes in one call.
// Present so Store exercises the provider.BatchGetter capability.
func (s *Store) GetBatch(ctx context.Context, scopes []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(scopes))
	for _, scope := range scopes {
		out[scope] = s.values[scope]
	}
	return out, nil
}

// Delete removes a scope entirely. Present so Store exercises the
// provider.Deleter capability.
func (s *Store) Delete(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, scope)
	return nil
}

// Initialized reports whether Initialize has been called. Test-only
// introspection hook.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Closed reports whether Close has been called. Test-only
// introspection hook.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
