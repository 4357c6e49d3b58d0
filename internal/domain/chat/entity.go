package chat

import (
	"database/sql"
	"fmt"
	"time"
)

// Conversation types
const (
	TypeDirect = "DIRECT"
	TypeGroup  = "GROUP"
)

// Conversation represents the conversations table.
// A DIRECT conversation is deduplicated by DirectKey; a GROUP conversation
// is bound 1:1 to a community.
type Conversation struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	Type        string
	DirectKey   sql.NullString `gorm:"uniqueIndex"`
	CommunityID sql.NullInt64  `gorm:"uniqueIndex"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Relationships
	Members []Member
}

// Member represents the conversation_members table.
// LastReadAt is the member's read watermark; it only moves forward.
type Member struct {
	ConversationID int64 `gorm:"primaryKey"`
	UserID         int64 `gorm:"primaryKey"`
	JoinedAt       time.Time
	LastReadAt     sql.NullTime
}

// Message represents the messages table.
type Message struct {
	ID              int64 `gorm:"primaryKey;autoIncrement"`
	ConversationID  int64 `gorm:"index:idx_messages_conv_created"`
	SenderID        int64
	ClientMessageID sql.NullString `gorm:"uniqueIndex"`
	Body            string
	AttachmentURL   sql.NullString
	CreatedAt       time.Time `gorm:"index:idx_messages_conv_created"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Member) TableName() string {
	return "conversation_members"
}

func (Message) TableName() string {
	return "messages"
}

// DirectKey builds the canonical order-independent key for a two-party
// conversation: "min:max".
func DirectKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
