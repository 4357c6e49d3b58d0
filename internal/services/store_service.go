package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bazaarchat/internal/domain/chat"
	"bazaarchat/internal/events"
	"bazaarchat/internal/redis"
	"bazaarchat/internal/repository"
	"bazaarchat/internal/storage"
	bazaar_errors "bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPageLimit = 50

// StoreService is the message store accessor: page-wise history, sends,
// read watermarks and unread counts, publishing a realtime event after
// every write.
type StoreService struct {
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
	publisher   events.Publisher
	blobs       storage.BlobStore
	unread      *redis.UnreadCache
	log         *logger.Logger
}

func NewStoreService(
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	publisher events.Publisher,
	blobs storage.BlobStore,
	unread *redis.UnreadCache,
	log *logger.Logger,
) *StoreService {
	return &StoreService{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		publisher:   publisher,
		blobs:       blobs,
		unread:      unread,
		log:         log,
	}
}

// ListMessages returns a page of history in ascending created_at order. The
// most recent page when before is zero.
func (s *StoreService) ListMessages(ctx context.Context, conversationID int64, limit int, before time.Time) ([]chat.Message, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	msgs, err := s.messageRepo.ListBefore(ctx, conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bazaar_errors.ErrFetchFailed, err)
	}
	return msgs, nil
}

// SendMessage persists a text message and publishes its insert event.
// clientID is the sender's temporary id; resending with the same clientID
// returns the already-stored row instead of duplicating it.
func (s *StoreService) SendMessage(ctx context.Context, conversationID, senderID int64, body, clientID string) (chat.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return chat.Message{}, bazaar_errors.ErrInvalidInput
	}
	return s.insert(ctx, chat.Message{
		ConversationID:  conversationID,
		SenderID:        senderID,
		ClientMessageID: nullString(clientID),
		Body:            body,
		CreatedAt:       time.Now(),
	})
}

// SendAttachment uploads the blob, then sends a message carrying its URL.
func (s *StoreService) SendAttachment(ctx context.Context, conversationID, senderID int64, caption, clientID, contentType string, data []byte) (chat.Message, error) {
	if s.blobs == nil {
		return chat.Message{}, bazaar_errors.ErrInvalidInput
	}
	key := fmt.Sprintf("attachments/%d/%s", conversationID, uuid.New().String())
	url, err := s.blobs.Put(ctx, key, contentType, data)
	if err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", bazaar_errors.ErrSendFailed, err)
	}
	return s.insert(ctx, chat.Message{
		ConversationID:  conversationID,
		SenderID:        senderID,
		ClientMessageID: nullString(clientID),
		Body:            strings.TrimSpace(caption),
		AttachmentURL:   nullString(url),
		CreatedAt:       time.Now(),
	})
}

func (s *StoreService) insert(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := s.messageRepo.Create(ctx, &msg); err != nil {
		if errors.Is(err, bazaar_errors.ErrAlreadyExists) && msg.ClientMessageID.Valid {
			// Duplicate client id: the earlier attempt won. Idempotent.
			return s.messageRepo.GetByClientMessageID(ctx, msg.ClientMessageID.String)
		}
		return chat.Message{}, fmt.Errorf("%w: %v", bazaar_errors.ErrSendFailed, err)
	}

	if s.unread != nil {
		if err := s.unread.InvalidateConversation(ctx, msg.ConversationID); err != nil {
			s.log.Logger.Warn("unread cache invalidation failed", zap.Error(err))
		}
	}

	event := events.MessageInsertedEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.ClientMessageID.Valid {
		event.ClientMessageID = msg.ClientMessageID.String
	}
	if msg.AttachmentURL.Valid {
		event.AttachmentURL = msg.AttachmentURL.String
	}
	channel := events.ConversationChannel(msg.ConversationID)
	if err := s.publisher.Publish(ctx, channel, events.EventMessageInserted, event); err != nil {
		// The row is durable; subscribers recover the gap on their next
		// resync. Not a send failure.
		s.log.Logger.Warn("insert event publish failed",
			zap.Int64("message_id", msg.ID), zap.Error(err))
	}
	return msg, nil
}

// MarkRead advances the caller's read watermark. Idempotent; the watermark
// never moves backward, and the member event is only published when it
// actually moved.
func (s *StoreService) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	moved, err := s.convRepo.AdvanceLastRead(ctx, conversationID, userID, at)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	if s.unread != nil {
		if err := s.unread.Invalidate(ctx, conversationID, userID); err != nil {
			s.log.Logger.Warn("unread cache invalidation failed", zap.Error(err))
		}
	}

	channel := events.ConversationChannel(conversationID)
	event := events.MemberUpdatedEvent{
		ConversationID: conversationID,
		UserID:         userID,
		LastReadAt:     at,
	}
	if err := s.publisher.Publish(ctx, channel, events.EventMemberUpdated, event); err != nil {
		s.log.Logger.Warn("member event publish failed",
			zap.Int64("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// CountUnread counts messages newer than since authored by someone other
// than userID, consulting the Redis counter cache first.
func (s *StoreService) CountUnread(ctx context.Context, conversationID, userID int64, since time.Time) (int64, error) {
	if s.unread != nil {
		if count, ok, err := s.unread.Get(ctx, conversationID, userID); err == nil && ok {
			return count, nil
		}
	}

	count, err := s.messageRepo.CountSince(ctx, conversationID, userID, since)
	if err != nil {
		return 0, err
	}

	if s.unread != nil {
		if err := s.unread.Set(ctx, conversationID, userID, count); err != nil {
			s.log.Logger.Warn("unread cache set failed", zap.Error(err))
		}
	}
	return count, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
