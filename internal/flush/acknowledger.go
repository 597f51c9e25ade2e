package flush

import "context"

// Acknowledger is the stream reader's half of the contract: the
// coordinator calls it once a flush's ids are safe to discharge
// (either the data is durable, or it has been safely re-enqueued in
// memory for partial failure).
type Acknowledger interface {
	Acknowledge(ctx context.Context, ids []string) error
}
