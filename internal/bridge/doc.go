// Package bridge composes the stream reader, event parser, aggregator
// and flush coordinator into the long-running counter bridge process:
// idempotent start/stop, startup recovery before live consumption,
// observability event emission, and a read-only stats snapshot.
package bridge
