// Package kafka binds the eventlog.Log contract onto a Kafka consumer
// group via franz-go. The log's flat key/value entry fields map onto
// a record's headers (the closest Kafka primitive to the wire
// contract's field list); the record value is left to producers and
// is not interpreted by this package.
//
// The pending/new-cursor split in the spec has no literal Kafka
// counterpart (Kafka has one cursor per partition, not a separate
// "delivered but unacked" cursor), so it is approximated: with
// auto-commit disabled, any record a broker hands this consumer
// remains "pending" — from Kafka's point of view, redeliverable —
// until MarkCommitRecords/CommitMarkedOffsets runs for it. ReadPending
// drains whatever the client already has buffered or can fetch
// without blocking, which after a restart is exactly the entries this
// consumer (or a predecessor in its group) received but never
// committed. ReadNew is an ordinary blocking poll bounded by the
// window timeout. Both funnel through the same PollFetches call;
// which one that is becomes "pending" vs "new" is purely a matter of
// when the caller invokes it (immediately at startup vs. in the live
// loop) and how long it's willing to block.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/injest-ai/countero/internal/counter"
	"github.com/injest-ai/countero/internal/eventlog"
	clusterkafka "github.com/injest-ai/countero/internal/kafka"
)

// client abstracts the kgo methods this package uses, so tests can
// substitute a fake without standing up a broker.
type client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	Close()
}

// Config configures the Kafka-backed Log.
type Config struct {
	Cluster       *clusterkafka.ClusterConfig
	Topic         string
	ConsumerGroup string
}

// Log is the Kafka-backed eventlog.Log.
type Log struct {
	client client
	admin  *kadm.Client
	topic  string
	group  string

	mu       sync.Mutex
	inFlight map[string]*kgo.Record
}

var _ eventlog.Log = (*Log)(nil)

// New dials a Kafka client and wraps it as an eventlog.Log.
func New(cfg Config) (*Log, error) {
	if cfg.Cluster == nil {
		return nil, fmt.Errorf("cluster config is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer group is required")
	}

	opts, err := clusterkafka.ClientOptions(cfg.Cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster options: %w", err)
	}
	opts = append(opts,
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)

	kc, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	return &Log{
		client:   kc,
		admin:    kadm.NewClient(kc),
		topic:    cfg.Topic,
		group:    cfg.ConsumerGroup,
		inFlight: make(map[string]*kgo.Record),
	}, nil
}

// EnsureGroup idempotently creates the topic backing the log.
// Consumer group membership itself is established lazily by the
// client on first PollFetches; Kafka has no separate "create group"
// call, so the observable "already exists" condition this maps onto
// is TopicAlreadyExists on CreateTopics.
func (l *Log) EnsureGroup(ctx context.Context) error {
	resp, err := l.admin.CreateTopics(ctx, -1, -1, nil, l.topic)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// ReadPending drains whatever is immediately available without
// blocking, bounded by count. See the package doc for how this
// approximates a dedicated pending cursor.
func (l *Log) ReadPending(ctx context.Context, count int) ([]counter.LogEntry, error) {
	pollCtx, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	return l.poll(pollCtx, count)
}

// ReadNew blocks up to timeout for new entries.
func (l *Log) ReadNew(ctx context.Context, count int, timeout time.Duration) ([]counter.LogEntry, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	entries, err := l.poll(pollCtx, count)
	if errors.Is(err, context.DeadlineExceeded) {
		return entries, nil
	}
	return entries, err
}

func (l *Log) poll(ctx context.Context, count int) ([]counter.LogEntry, error) {
	fetches := l.client.PollFetches(ctx)

	var fetchErr error
	fetches.EachError(func(_ string, _ int32, err error) {
		if fetchErr == nil {
			fetchErr = err
		}
	})
	if fetchErr != nil && !errors.Is(fetchErr, context.DeadlineExceeded) {
		return nil, fetchErr
	}

	entries := make([]counter.LogEntry, 0, count)
	l.mu.Lock()
	fetches.EachRecord(func(rec *kgo.Record) {
		if len(entries) >= count {
			return
		}
		id := recordID(rec)
		l.inFlight[id] = rec
		entries = append(entries, counter.LogEntry{ID: id, Fields: headerFields(rec)})
	})
	l.mu.Unlock()

	return entries, nil
}

// Acknowledge commits the offsets for the given entry ids in one
// call.
func (l *Log) Acknowledge(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	l.mu.Lock()
	recs := make([]*kgo.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := l.inFlight[id]; ok {
			recs = append(recs, rec)
			delete(l.inFlight, id)
		}
	}
	l.mu.Unlock()

	if len(recs) == 0 {
		return nil
	}
	l.client.MarkCommitRecords(recs...)
	return l.client.CommitMarkedOffsets(ctx)
}

// Close closes the underlying Kafka client.
func (l *Log) Close(ctx context.Context) error {
	l.client.Close()
	return nil
}

func recordID(rec *kgo.Record) string {
	return fmt.Sprintf("%s/%d/%d", rec.Topic, rec.Partition, rec.Offset)
}

func headerFields(rec *kgo.Record) []counter.Field {
	fields := make([]counter.Field, 0, len(rec.Headers))
	for _, h := range rec.Headers {
		fields = append(fields, counter.Field{Key: h.Key, Value: string(h.Value)})
	}
	return fields
}
