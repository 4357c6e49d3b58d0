package events

import (
	"encoding/json"
	"time"
)

type Envelope struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap marshals a payload into an envelope ready for the wire.
func Wrap(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventType:  eventType,
		OccurredAt: time.Now(),
		Payload:    raw,
	})
}
