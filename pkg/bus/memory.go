package bus

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// MemoryBus keeps an append-only log per topic partition and a committed
// offset per consumer group. Nothing survives the process.
type MemoryBus struct {
	deliverer

	mu      sync.Mutex
	cond    *sync.Cond
	logs    map[string][][]Message
	offsets map[offsetKey]int
	subs    []subscription
	running bool
	closed  bool
}

type offsetKey struct {
	topic     string
	group     string
	partition int
}

func NewMemoryBus(opts Options) (*MemoryBus, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	b := &MemoryBus{
		logs:    make(map[string][][]Message),
		offsets: make(map[offsetKey]int),
	}
	b.cond = sync.NewCond(&b.mu)
	b.deliverer = deliverer{opts: opts, republish: b.publish}
	return b, nil
}

func (b *MemoryBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return b.publish(ctx, topic, key, payload, nil)
}

func (b *MemoryBus) publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	partitions := b.partitions(topic)
	p := Partition(key, len(partitions))
	msg := Message{
		ID:        fmt.Sprintf("%s/%d/%d", topic, p, len(partitions[p])),
		Topic:     topic,
		Key:       key,
		Partition: p,
		Payload:   append([]byte(nil), payload...),
		Headers:   headers,
	}
	partitions[p] = append(partitions[p], msg)
	b.cond.Broadcast()

	return nil
}

// partitions must be called with mu held.
func (b *MemoryBus) partitions(topic string) [][]Message {
	partitions, ok := b.logs[topic]
	if !ok {
		partitions = make([][]Message, b.opts.Partitions)
		b.logs[topic] = partitions
	}
	return partitions
}

func (b *MemoryBus) Subscribe(topic, group string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("cannot subscribe to '%s' while the bus is running", topic)
	}
	b.subs = append(b.subs, subscription{topic: topic, group: group, handler: h})
	return nil
}

func (b *MemoryBus) Run(ctx context.Context) error {
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

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		for p := 0; p < b.opts.Partitions; p++ {
			g.Go(func() error {
				return b.consume(gctx, sub, p)
			})
		}
	}

	b.opts.Logger.Debug("Consuming %d subscriptions over %d partitions", len(subs), b.opts.Partitions)
	return g.Wait()
}

func (b *MemoryBus) consume(ctx context.Context, sub subscription, partition int) error {
	key := offsetKey{topic: sub.topic, group: sub.group, partition: partition}

	for {
		msg, ok := b.next(ctx, key)
		if !ok {
			return nil
		}

		if err := b.deliver(ctx, msg, sub.handler); err != nil {
			return nil
		}

		b.mu.Lock()
		b.offsets[key]++
		b.mu.Unlock()
	}
}

// next blocks until the partition has a message past the group's offset.
func (b *MemoryBus) next(ctx context.Context, key offsetKey) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if ctx.Err() != nil || b.closed {
			return Message{}, false
		}

		partitions := b.partitions(key.topic)
		if offset := b.offsets[key]; offset < len(partitions[key.partition]) {
			return partitions[key.partition][offset], true
		}

		b.cond.Wait()
	}
}

// Messages returns every message ever published to topic, ordered by
// partition and offset.
func (b *MemoryBus) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var messages []Message
	for _, partition := range b.logs[topic] {
		messages = append(messages, partition...)
	}
	return messages
}

// Lag returns the number of messages on topic not yet acknowledged by group.
func (b *MemoryBus) Lag(topic, group string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	lag := 0
	for p, partition := range b.logs[topic] {
		lag += len(partition) - b.offsets[offsetKey{topic: topic, group: group, partition: p}]
	}
	return lag
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
	return nil
}
