package events

import (
	"context"
	"fmt"

	"github.com/mwantia/filecheck/pkg/bus"
	"github.com/mwantia/filecheck/pkg/failure"
)

// Topics names the topic each envelope type is published to.
type Topics struct {
	Uploaded   string
	Stats      string
	Duplicates string
}

func DefaultTopics() Topics {
	return Topics{
		Uploaded:   TopicUploaded,
		Stats:      TopicStats,
		Duplicates: TopicDuplicates,
	}
}

func (t Topics) topic(eventType string) (string, error) {
	switch eventType {
	case TypeFileUploaded:
		return t.Uploaded, nil
	case TypeStatsCalculated:
		return t.Stats, nil
	case TypeDuplicateCheck:
		return t.Duplicates, nil
	}
	return "", fmt.Errorf("no topic for event type %s", eventType)
}

// Publisher encodes envelopes and publishes them keyed by file identifier.
type Publisher struct {
	bus    bus.Publisher
	source string
	topics Topics
}

func NewPublisher(b bus.Publisher, source string, topics Topics) *Publisher {
	return &Publisher{
		bus:    b,
		source: source,
		topics: topics,
	}
}

// Publish fails with ExternalService when the bus rejects the message.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	topic, err := p.topics.topic(env.EventType())
	if err != nil {
		return failure.Configuration.Wrap(err)
	}

	payload, err := Encode(p.source, env)
	if err != nil {
		return failure.Processing.Wrap(err)
	}

	if err := p.bus.Publish(ctx, topic, env.Key(), payload); err != nil {
		return failure.ExternalService.New("failed to publish %s for %s: %w", env.EventType(), env.Key(), err)
	}
	return nil
}
