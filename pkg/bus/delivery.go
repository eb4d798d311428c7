package bus

import (
	"context"
	"strconv"
	"time"

	"github.com/mwantia/filecheck/pkg/failure"
)

type publishFunc func(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error

// deliverer drives one message through its handler until it can be
// acknowledged. It returns a non-nil error only when ctx ends first, in which
// case the message must stay unacknowledged.
type deliverer struct {
	opts      Options
	republish publishFunc
}

func (d *deliverer) deliver(ctx context.Context, msg Message, h Handler) error {
	for attempt := 1; ; attempt++ {
		msg.Attempt = attempt

		err := d.invoke(ctx, msg, h)
		if err == nil {
			return nil
		}

		if !failure.Retryable(err) {
			d.opts.Logger.Error("Dropping message %s on '%s' partition %d (key %s): %s: %v",
				msg.ID, msg.Topic, msg.Partition, msg.Key, failure.Kind(err), err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d.opts.Logger.Error("Delivery of %s on '%s' partition %d (key %s) failed at attempt %d: %v",
			msg.ID, msg.Topic, msg.Partition, msg.Key, attempt, err)

		if d.opts.MaxAttempts > 0 && attempt >= d.opts.MaxAttempts {
			if err := d.deadLetter(ctx, msg, err); err != nil {
				d.opts.Logger.Error("Failed to dead-letter %s: %v", msg.ID, err)
			} else {
				return nil
			}
		}

		if err := sleep(ctx, d.opts.RetryBackoff); err != nil {
			return err
		}
	}
}

func (d *deliverer) invoke(ctx context.Context, msg Message, h Handler) error {
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	return h(ctx, msg)
}

func (d *deliverer) deadLetter(ctx context.Context, msg Message, cause error) error {
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginTopic] = msg.Topic
	headers[HeaderAttempts] = strconv.Itoa(msg.Attempt)
	headers[HeaderError] = cause.Error()

	if err := d.republish(ctx, d.opts.DeadLetterTopic, msg.Key, msg.Payload, headers); err != nil {
		return err
	}

	d.opts.Logger.Warn("Moved %s from '%s' to '%s' after %d attempts",
		msg.ID, msg.Topic, d.opts.DeadLetterTopic, msg.Attempt)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
