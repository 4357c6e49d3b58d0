package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher pushes envelopes onto a logical channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, eventType string, payload interface{}) error
}

// Subscriber delivers raw envelopes from a set of channels until the context
// is cancelled. Delivery is at-least-once and unordered relative to any
// synchronous call; there is no replay across a connectivity gap.
type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}

// RedisBus implements Publisher and Subscriber over Redis Pub/Sub.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, eventType string, payload interface{}) error {
	data, err := Wrap(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, channel, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	sub := b.client.Subscribe(ctx, channels...)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		handler(msg.Channel, []byte(msg.Payload))
	}
}
