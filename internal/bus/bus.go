// Package bus is a small in-process publish/subscribe channel. It is always
// passed explicitly to the components that need it; nothing in the module
// holds a package-level instance.
package bus

import "sync"

// Well-known topics.
const (
	TopicTimelineChanged = "timeline.changed"
	TopicBuildTotal      = "build.total"
	TopicUnreadTotal     = "unread.total"
)

type Handler func(topic string, payload interface{})

type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
}

func New() *Bus {
	return &Bus{handlers: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler for a topic and returns its cancel func.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
		if len(b.handlers[topic]) == 0 {
			delete(b.handlers, topic)
		}
	}
}

// Publish delivers the payload to every handler of the topic, synchronously,
// on the caller's goroutine.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}
