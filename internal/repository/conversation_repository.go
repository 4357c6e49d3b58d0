package repository

import (
	"context"
	"errors"
	"time"

	"bazaarchat/internal/domain/chat"
	bazaar_errors "bazaarchat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *chat.Conversation) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return bazaar_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id int64) (chat.Conversation, error) {
	var c chat.Conversation
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Conversation{}, bazaar_errors.ErrNotFound
		}
		return chat.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetByDirectKey(ctx context.Context, key string) (chat.Conversation, error) {
	var c chat.Conversation
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("type = ? AND direct_key = ?", chat.TypeDirect, key).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Conversation{}, bazaar_errors.ErrNotFound
		}
		return chat.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetByCommunityID(ctx context.Context, communityID int64) (chat.Conversation, error) {
	var c chat.Conversation
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("type = ? AND community_id = ?", chat.TypeGroup, communityID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Conversation{}, bazaar_errors.ErrNotFound
		}
		return chat.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) AddMember(ctx context.Context, m *chat.Member) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return bazaar_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresConversationRepository) ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error) {
	var members []chat.Member
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *PostgresConversationRepository) GetMember(ctx context.Context, conversationID, userID int64) (chat.Member, error) {
	var m chat.Member
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Member{}, bazaar_errors.ErrNotFound
		}
		return chat.Member{}, err
	}
	return m, nil
}

func (r *PostgresConversationRepository) AdvanceLastRead(ctx context.Context, conversationID, userID int64, at time.Time) (bool, error) {
	// Guarded update: the watermark only moves forward, even if calls
	// arrive out of order.
	res := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("conversation_id = ? AND user_id = ? AND (last_read_at IS NULL OR last_read_at < ?)",
			conversationID, userID, at).
		Update("last_read_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	// Zero rows affected means the member does not exist or the stored
	// watermark is already newer; either way nothing changed.
	return res.RowsAffected > 0, nil
}
