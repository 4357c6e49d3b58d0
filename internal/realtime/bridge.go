package realtime

import (
	"encoding/json"
	"sync"

	"bazaarchat/internal/events"
)

// Handlers receive realtime events for one subscribed conversation.
// Delivery is at-least-once and unordered relative to synchronous store
// calls. OnDrop signals a connectivity gap: there is no replay, so the
// subscriber must pair resubscription with a fresh history fetch.
type Handlers struct {
	OnInsert       func(events.MessageInsertedEvent)
	OnMemberUpdate func(events.MemberUpdatedEvent)
	OnDrop         func(err error)
}

// Bridge subscribes to the realtime channel of a conversation.
type Bridge interface {
	Subscribe(conversationID int64, h Handlers) (*Subscription, error)
}

// Subscription is a handle releasing one channel subscription.
type Subscription struct {
	once    sync.Once
	release func()
}

func NewSubscription(release func()) *Subscription {
	return &Subscription{release: release}
}

func (s *Subscription) Close() {
	s.once.Do(s.release)
}

// dispatch decodes an envelope and routes it to the matching handler.
// Unknown event types are ignored so the wire format can grow.
func dispatch(payload []byte, h Handlers) {
	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}

	switch env.EventType {
	case events.EventMessageInserted:
		var e events.MessageInsertedEvent
		if err := json.Unmarshal(env.Payload, &e); err == nil && h.OnInsert != nil {
			h.OnInsert(e)
		}
	case events.EventMemberUpdated:
		var e events.MemberUpdatedEvent
		if err := json.Unmarshal(env.Payload, &e); err == nil && h.OnMemberUpdate != nil {
			h.OnMemberUpdate(e)
		}
	}
}
