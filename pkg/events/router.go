package events

import (
	"context"
	"sort"

	"github.com/mwantia/filecheck/pkg/bus"
	"github.com/mwantia/filecheck/pkg/failure"
	"github.com/mwantia/filecheck/pkg/log"
)

// Router maps topics to typed handlers and turns raw bus messages into
// decoded envelopes.
type Router struct {
	logger log.LoggerService
	routes map[string]bus.Handler
}

func NewRouter(logger log.LoggerService) *Router {
	return &Router{
		logger: logger,
		routes: make(map[string]bus.Handler),
	}
}

// Handle registers fn for topic. Messages on topic are decoded into T before
// fn is called; a later registration for the same topic replaces the earlier.
func Handle[T any, PT interface {
	*T
	Envelope
}](r *Router, topic string, fn func(ctx context.Context, event T) error) {
	r.routes[topic] = func(ctx context.Context, msg bus.Message) error {
		var env T
		event, err := Decode(msg.Payload, PT(&env))
		if err != nil {
			return err
		}

		r.logger.Debug("Dispatching %s %s (attempt %d) for %s", event.Type(), event.ID(), msg.Attempt, msg.Key)
		return fn(ctx, env)
	}
}

// Dispatch is a bus.Handler for every registered topic.
func (r *Router) Dispatch(ctx context.Context, msg bus.Message) error {
	handler, ok := r.routes[msg.Topic]
	if !ok {
		return failure.InvalidInput.New("no handler registered for topic '%s'", msg.Topic)
	}
	return handler(ctx, msg)
}

// Topics returns the registered topics in lexical order.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Subscribe subscribes Dispatch to every registered topic under group.
func (r *Router) Subscribe(b bus.Bus, group string) error {
	for _, topic := range r.Topics() {
		if err := b.Subscribe(topic, group, r.Dispatch); err != nil {
			return err
		}
	}
	return nil
}
