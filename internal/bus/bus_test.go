package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := New()

	var got []interface{}
	cancel := b.Subscribe(TopicUnreadTotal, func(_ string, payload interface{}) {
		got = append(got, payload)
	})

	b.Publish(TopicUnreadTotal, int64(3))
	b.Publish(TopicTimelineChanged, "ignored by this subscriber")
	assert.Equal(t, []interface{}{int64(3)}, got)

	cancel()
	b.Publish(TopicUnreadTotal, int64(4))
	assert.Len(t, got, 1, "cancelled subscriber receives nothing")
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()

	count := 0
	b.Subscribe(TopicTimelineChanged, func(string, interface{}) { count++ })
	b.Subscribe(TopicTimelineChanged, func(string, interface{}) { count++ })

	b.Publish(TopicTimelineChanged, nil)
	assert.Equal(t, 2, count)
}
