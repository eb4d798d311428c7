package bus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	fieldKey     = "key"
	fieldPayload = "payload"
	headerPrefix = "h:"
)

// RedisOptions configure the Redis Streams transport.
type RedisOptions struct {
	Options

	// Prefix is prepended to every stream name.
	Prefix string
	// Block bounds a single XREADGROUP wait and therefore how quickly Run
	// notices cancellation.
	Block time.Duration
	// Consumer names this process inside each group. Entries it read but did
	// not acknowledge are redelivered to the same name after a restart.
	Consumer string
}

// RedisBus stores each topic partition as its own stream
// "<prefix><topic>.<partition>" and consumes it with a consumer group.
type RedisBus struct {
	deliverer

	client   redis.UniversalClient
	prefix   string
	block    time.Duration
	consumer string

	mu      sync.Mutex
	subs    []subscription
	running bool
}

func NewRedisBus(client redis.UniversalClient, opts RedisOptions) (*RedisBus, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if opts.Consumer == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "filecheck"
		}
		opts.Consumer = host
	}

	b := &RedisBus{
		client:   client,
		prefix:   opts.Prefix,
		block:    opts.Block,
		consumer: opts.Consumer,
	}
	b.deliverer = deliverer{opts: opts.Options, republish: b.publish}
	return b, nil
}

func (b *RedisBus) stream(topic string, partition int) string {
	return fmt.Sprintf("%s%s.%d", b.prefix, topic, partition)
}

func (b *RedisBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return b.publish(ctx, topic, key, payload, nil)
}

func (b *RedisBus) publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	values := map[string]interface{}{
		fieldKey:     key,
		fieldPayload: payload,
	}
	for k, v := range headers {
		values[headerPrefix+k] = v
	}

	stream := b.stream(topic, Partition(key, b.opts.Partitions))
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to append to stream '%s': %w", stream, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(topic, group string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("cannot subscribe to '%s' while the bus is running", topic)
	}
	b.subs = append(b.subs, subscription{topic: topic, group: group, handler: h})
	return nil
}

func (b *RedisBus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bus is already running")
	}
	b.running = true
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	for _, sub := range subs {
		for p := 0; p < b.opts.Partitions; p++ {
			if err := b.ensureGroup(ctx, b.stream(sub.topic, p), sub.group); err != nil {
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		for p := 0; p < b.opts.Partitions; p++ {
			g.Go(func() error {
				return b.consume(gctx, sub, p)
			})
		}
	}

	b.opts.Logger.Debug("Consuming %d subscriptions over %d partitions as '%s'", len(subs), b.opts.Partitions, b.consumer)
	return g.Wait()
}

func (b *RedisBus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group '%s' on '%s': %w", group, stream, err)
	}
	return nil
}

func (b *RedisBus) consume(ctx context.Context, sub subscription, partition int) error {
	stream := b.stream(sub.topic, partition)
	// Entries this consumer read before a restart come first.
	pending := true

	for ctx.Err() == nil {
		args := &redis.XReadGroupArgs{
			Group:    sub.group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    b.block,
		}
		if pending {
			args.Streams[1] = "0"
			args.Block = -1
		}

		streams, err := b.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				pending = false
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			b.opts.Logger.Error("Failed to read from '%s': %v", stream, err)
			if err := sleep(ctx, b.opts.RetryBackoff); err != nil {
				return nil
			}
			continue
		}

		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			pending = false
			continue
		}

		for _, entry := range streams[0].Messages {
			msg := decodeEntry(sub.topic, partition, entry)
			if err := b.deliver(ctx, msg, sub.handler); err != nil {
				return nil
			}
			if err := b.client.XAck(ctx, stream, sub.group, entry.ID).Err(); err != nil {
				b.opts.Logger.Error("Failed to acknowledge %s on '%s': %v", entry.ID, stream, err)
			}
		}
	}

	return nil
}

func decodeEntry(topic string, partition int, entry redis.XMessage) Message {
	msg := Message{
		ID:        entry.ID,
		Topic:     topic,
		Partition: partition,
	}

	for k, v := range entry.Values {
		s := fmt.Sprint(v)
		switch {
		case k == fieldKey:
			msg.Key = s
		case k == fieldPayload:
			msg.Payload = []byte(s)
		case strings.HasPrefix(k, headerPrefix):
			if msg.Headers == nil {
				msg.Headers = make(map[string]string)
			}
			msg.Headers[strings.TrimPrefix(k, headerPrefix)] = s
		}
	}
	return msg
}

// Pending returns the number of entries on topic read by group but not yet
// acknowledged. Streams or groups that do not exist yet count as zero.
func (b *RedisBus) Pending(ctx context.Context, topic, group string) (int64, error) {
	var total int64
	for p := 0; p < b.opts.Partitions; p++ {
		res, err := b.client.XPending(ctx, b.stream(topic, p), group).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || strings.HasPrefix(err.Error(), "NOGROUP") {
				continue
			}
			return 0, err
		}
		total += res.Count
	}
	return total, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
