package aggregator

import "github.com/injest-ai/countero/internal/counter"

// Batch is a drained snapshot: scope to net delta. It carries no event
// ids; the caller is responsible for correlating it with whatever
// PendingIDs snapshot was taken at the same instant.
type Batch map[string]int64

// Aggregator folds counter events into net deltas per scope.
//
// Add is monotonically non-decreasing in Size between calls to Drain;
// Drain resets both Size and ScopeCount to zero and returns a Batch
// disjoint from all future state.
type Aggregator struct {
	deltas Batch
	size   int
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{deltas: make(Batch)}
}

// Add folds one event into the running net delta for its scope.
func (a *Aggregator) Add(evt counter.Event) {
	a.deltas[evt.Scope] += evt.Delta
	a.size++
}

// Readd folds a scope/delta pair back in directly, bypassing
// counter.Event construction. Used by the flush coordinator to
// re-enqueue failed or total-failure batches.
func (a *Aggregator) Readd(scope string, delta int64) {
	a.deltas[scope] += delta
	a.size++
}

// Size is the number of events folded since the last drain.
func (a *Aggregator) Size() int { return a.size }

// ScopeCount is the number of distinct scopes currently held.
func (a *Aggregator) ScopeCount() int { return len(a.deltas) }

// Drain atomically returns the current scope->delta mapping and resets
// the Aggregator to empty.
func (a *Aggregator) Drain() Batch {
	batch := a.deltas
	a.deltas = make(Batch)
	a.size = 0
	return batch
}
