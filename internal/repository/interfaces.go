package repository

import (
	"context"
	"time"

	"bazaarchat/internal/domain/chat"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *chat.Conversation) error
	GetByID(ctx context.Context, id int64) (chat.Conversation, error)
	GetByDirectKey(ctx context.Context, key string) (chat.Conversation, error)
	GetByCommunityID(ctx context.Context, communityID int64) (chat.Conversation, error)

	AddMember(ctx context.Context, m *chat.Member) error
	ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error)
	GetMember(ctx context.Context, conversationID, userID int64) (chat.Member, error)

	// AdvanceLastRead moves a member's read watermark forward and reports
	// whether it moved. Calls with an older timestamp are no-ops; the
	// watermark never regresses.
	AdvanceLastRead(ctx context.Context, conversationID, userID int64, at time.Time) (bool, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *chat.Message) error
	GetByID(ctx context.Context, id int64) (chat.Message, error)
	GetByClientMessageID(ctx context.Context, clientMsgID string) (chat.Message, error)

	// ListBefore returns up to limit messages older than before (or the most
	// recent page when before is zero), in ascending created_at order.
	ListBefore(ctx context.Context, conversationID int64, before time.Time, limit int) ([]chat.Message, error)

	// CountSince counts messages newer than since not authored by userID.
	CountSince(ctx context.Context, conversationID, userID int64, since time.Time) (int64, error)
}
