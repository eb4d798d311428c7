package events

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/mwantia/filecheck/pkg/failure"
)

// Encode renders env as a structured-mode CloudEvent. Source names the
// producing component, e.g. "filecheck/ingest".
func Encode(source string, env Envelope) ([]byte, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(source)
	event.SetType(env.EventType())
	event.SetSubject(env.Key())
	event.SetTime(time.Now().UTC())

	if err := event.SetData(cloudevents.ApplicationJSON, env); err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", env.EventType(), err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", env.EventType(), err)
	}

	return event.MarshalJSON()
}

// Decode parses payload into env. Malformed payloads, a type other than the
// one env expects, and envelopes without a file identifier are all
// InvalidInput.
func Decode(payload []byte, env Envelope) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	if err := event.UnmarshalJSON(payload); err != nil {
		return event, failure.InvalidInput.New("malformed cloudevent: %v", err)
	}
	if err := event.Validate(); err != nil {
		return event, failure.InvalidInput.New("invalid cloudevent %s: %v", event.ID(), err)
	}
	if event.Type() != env.EventType() {
		return event, failure.InvalidInput.New("event %s has type %s, expected %s", event.ID(), event.Type(), env.EventType())
	}
	if err := event.DataAs(env); err != nil {
		return event, failure.InvalidInput.New("undecodable %s data in %s: %v", event.Type(), event.ID(), err)
	}
	if env.Key() == "" {
		return event, failure.InvalidInput.New("event %s carries no file identifier", event.ID())
	}

	return event, nil
}
