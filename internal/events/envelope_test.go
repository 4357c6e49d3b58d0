package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapRoundTrip(t *testing.T) {
	event := MessageInsertedEvent{
		MessageID:      42,
		ConversationID: 7,
		SenderID:       10,
		Body:           "hello",
		CreatedAt:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := Wrap(EventMessageInserted, event)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, EventMessageInserted, env.EventType)
	assert.False(t, env.OccurredAt.IsZero())

	var decoded MessageInsertedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, event, decoded)
}

func TestConversationChannel(t *testing.T) {
	assert.Equal(t, "channel:conversation:42", ConversationChannel(42))
}
