package events

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
)

// CloudEventSource is the CloudEvents "source" attribute stamped on
// every envelope this package produces.
const CloudEventSource = "urn:counter-bridge"

// ToCloudEvent wraps an Event in a CloudEvents envelope for forwarding
// to an external event bus. The core never does this itself — it is
// an adapter an embedding service can wire onto an Emitter
// subscription when it wants observability events to leave the
// process as CloudEvents rather than stay in-process.
func ToCloudEvent(evt Event, id string) (event.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(id)
	ce.SetSource(CloudEventSource)
	ce.SetType(fmt.Sprintf("io.counterbridge.%s", evt.Kind))
	ce.SetTime(time.Now().UTC())

	if err := ce.SetData(cloudevents.ApplicationJSON, evt.Payload); err != nil {
		return event.Event{}, fmt.Errorf("set cloudevent data: %w", err)
	}
	return ce, nil
}

// MarshalCloudEvent is a convenience wrapping ToCloudEvent and
// returning the envelope's JSON encoding, for sinks that want raw
// bytes rather than an event.Event.
func MarshalCloudEvent(evt Event, id string) ([]byte, error) {
	ce, err := ToCloudEvent(evt, id)
	if err != nil {
		return nil, err
	}
	return ce.MarshalJSON()
}
