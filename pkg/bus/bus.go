// Package bus provides partitioned at-least-once publish/subscribe transports.
//
// Messages are routed to a partition by their key, and every (topic, group,
// partition) triple is consumed by exactly one goroutine, so messages sharing
// a key are handled one at a time in publish order.
package bus

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/mwantia/filecheck/pkg/log"
)

// Header names set on dead-lettered messages.
const (
	HeaderOriginTopic = "origin-topic"
	HeaderAttempts    = "attempts"
	HeaderError       = "error"
)

// Message is a single delivery.
type Message struct {
	ID        string
	Topic     string
	Key       string
	Partition int
	Payload   []byte
	Headers   map[string]string

	// Attempt is 1 on first delivery and increases with every retry.
	Attempt int
}

// Handler processes a message. Returning nil acknowledges it. A retryable
// error (see failure.Retryable) redelivers the same message, any other error
// is logged and acknowledged.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

type Bus interface {
	Publisher

	// Subscribe registers h for topic under the consumer group. All
	// subscriptions must be made before Run.
	Subscribe(topic, group string, h Handler) error

	// Run consumes all subscriptions until ctx is done.
	Run(ctx context.Context) error

	Close() error
}

// Options are shared by all bus implementations.
type Options struct {
	Partitions int
	// MaxAttempts moves a message to DeadLetterTopic after that many failed
	// deliveries. Zero retries forever.
	MaxAttempts     int
	RetryBackoff    time.Duration
	Timeout         time.Duration
	DeadLetterTopic string

	Logger log.LoggerService
}

func (o Options) validate() error {
	if o.Partitions < 1 {
		return fmt.Errorf("partitions must be at least 1")
	}
	if o.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative")
	}
	if o.MaxAttempts > 0 && o.DeadLetterTopic == "" {
		return fmt.Errorf("a dead letter topic is required when max attempts is set")
	}
	if o.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Partition maps key onto one of n partitions using FNV-1a.
func Partition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

type subscription struct {
	topic   string
	group   string
	handler Handler
}

// Attempts parses the attempts header of a dead-lettered message.
func Attempts(msg Message) int {
	n, _ := strconv.Atoi(msg.Headers[HeaderAttempts])
	return n
}
