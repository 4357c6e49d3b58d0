package events

import (
	"fmt"
	"time"
)

// Event type constants, format: domain.action
const (
	EventMessageInserted = "message.inserted"
	EventMemberUpdated   = "member.updated"
)

// Redis channel prefixes
const (
	ChannelPrefixConversation = "channel:conversation:"
)

// ConversationChannel names the realtime channel for one conversation.
func ConversationChannel(conversationID int64) string {
	return fmt.Sprintf("%s%d", ChannelPrefixConversation, conversationID)
}

// MessageInsertedEvent is emitted when a message row is appended to a
// conversation.
type MessageInsertedEvent struct {
	MessageID       int64     `json:"message_id"`
	ConversationID  int64     `json:"conversation_id"`
	SenderID        int64     `json:"sender_id"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	Body            string    `json:"body"`
	AttachmentURL   string    `json:"attachment_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// MemberUpdatedEvent is emitted when a member's read watermark changes.
type MemberUpdatedEvent struct {
	ConversationID int64     `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	LastReadAt     time.Time `json:"last_read_at"`
}
