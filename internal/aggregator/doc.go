// Package aggregator folds counter events into net per-scope deltas and
// tracks the log ids whose contribution is resident in memory but not
// yet acknowledged.
//
// Neither type locks internally. In the bridge both are owned by a
// flush.Coordinator, which serializes every access (from the read
// loop, the flush timer and stats queries) under its own mutex; using
// them from several goroutines without such an outer lock is not
// supported.
package aggregator
