// Package counter defines the wire-level event shape consumed by the
// counter bridge and the pure function that validates raw log fields
// into a CounterEvent.
//
// Malformed entries (missing scope or delta) are dropped, not returned
// as a recoverable error to retry in place — the caller is expected to
// log a warning and move on, per the counter-bridge's at-least-once
// contract. A dropped entry's log id is never acknowledged, so it is
// redelivered (and re-dropped) on every recovery pass until the log's
// own trimming policy removes it. This is a deliberate, documented
// choice — see DESIGN.md — not an oversight.
package counter
