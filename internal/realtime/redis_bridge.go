package realtime

import (
	"context"
	"errors"
	"fmt"

	"bazaarchat/internal/events"
	bazaar_errors "bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"

	"go.uber.org/zap"
)

// RedisBridge adapts the Redis pub/sub subscriber into per-conversation
// event delivery.
type RedisBridge struct {
	subscriber events.Subscriber
	log        *logger.Logger
}

func NewRedisBridge(subscriber events.Subscriber, log *logger.Logger) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, log: log}
}

func (b *RedisBridge) Subscribe(conversationID int64, h Handlers) (*Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	channel := events.ConversationChannel(conversationID)

	go func() {
		err := b.subscriber.Subscribe(ctx, []string{channel}, func(_ string, payload []byte) {
			dispatch(payload, h)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Logger.Warn("realtime subscription dropped",
				zap.Int64("conversation_id", conversationID), zap.Error(err))
			if h.OnDrop != nil {
				h.OnDrop(fmt.Errorf("%w: %v", bazaar_errors.ErrSubscriptionDropped, err))
			}
		}
	}()

	return NewSubscription(cancel), nil
}
