// Package flush triggers aggregator drains on time or size bounds,
// serializes them against a provider, and applies the three possible
// outcomes (success, partial failure, total failure) back onto the
// aggregator and the pending id list.
//
// The Coordinator owns its Aggregator and PendingIDs rather than
// borrowing references to caller-owned ones, and funnels all access to
// the aggregation state through its single mutex: the bridge calls it
// from the read loop and from the flush timer, which run in separate
// goroutines, and GetStats is part of the bridge's consumer-facing
// contract and may be called from yet another goroutine (an HTTP stats
// handler, for instance). This is a deliberate widening of the spec's
// "single control flow, no locking" framing.
package flush
