package events

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Forwarder wraps Events in CloudEvents envelopes and posts them to a
// configured HTTP endpoint. It is an adapter an embedding service
// wires onto an Emitter subscription when it wants observability
// events to leave the process rather than stay in-memory.
type Forwarder struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

// NewForwarder returns a Forwarder posting CloudEvents JSON to url.
func NewForwarder(url string, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    url,
		logger: logger,
	}
}

// Run drains ch, forwarding every Event until ch is closed or ctx is
// done. A delivery failure is logged and the next event is still
// attempted: forwarding is best-effort and never blocks the emitter.
func (f *Forwarder) Run(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := f.forward(ctx, evt); err != nil {
				f.logger.Warn("cloudevents forward failed", "kind", evt.Kind, "error", err)
			}
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, evt Event) error {
	body, err := MarshalCloudEvent(evt, uuid.New().String())
	if err != nil {
		return fmt.Errorf("marshal cloudevent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cloudevents+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
