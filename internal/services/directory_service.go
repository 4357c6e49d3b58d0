package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bazaarchat/internal/domain/chat"
	"bazaarchat/internal/repository"
	bazaar_errors "bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"

	"go.uber.org/zap"
)

// DirectoryService resolves or creates the canonical conversation for a
// user pair or a community. At most one DIRECT conversation exists per
// unordered user pair; at most one GROUP conversation per community.
type DirectoryService struct {
	repo repository.ConversationRepository
	log  *logger.Logger
}

func NewDirectoryService(repo repository.ConversationRepository, log *logger.Logger) *DirectoryService {
	return &DirectoryService{repo: repo, log: log}
}

func (s *DirectoryService) GetOrCreateDirect(ctx context.Context, userA, userB int64) (chat.Conversation, error) {
	if userA == 0 || userB == 0 || userA == userB {
		return chat.Conversation{}, bazaar_errors.ErrInvalidInput
	}

	key := chat.DirectKey(userA, userB)
	conv, err := s.repo.GetByDirectKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, bazaar_errors.ErrNotFound) {
		return chat.Conversation{}, err
	}

	now := time.Now()
	conv = chat.Conversation{
		Type:      chat.TypeDirect,
		DirectKey: sql.NullString{String: key, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &conv); err != nil {
		if errors.Is(err, bazaar_errors.ErrAlreadyExists) {
			// Lost the create race; the winner's row is canonical.
			return s.repo.GetByDirectKey(ctx, key)
		}
		return chat.Conversation{}, err
	}

	for _, uid := range []int64{userA, userB} {
		member := chat.Member{ConversationID: conv.ID, UserID: uid, JoinedAt: now}
		if err := s.repo.AddMember(ctx, &member); err != nil && !errors.Is(err, bazaar_errors.ErrAlreadyExists) {
			return chat.Conversation{}, err
		}
		conv.Members = append(conv.Members, member)
	}

	s.log.Logger.Info("created direct conversation",
		zap.Int64("conversation_id", conv.ID),
		zap.String("direct_key", key))
	return conv, nil
}

func (s *DirectoryService) GetOrCreateGroup(ctx context.Context, communityID int64, memberIDs []int64) (chat.Conversation, error) {
	if communityID == 0 {
		return chat.Conversation{}, bazaar_errors.ErrInvalidInput
	}

	conv, err := s.repo.GetByCommunityID(ctx, communityID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, bazaar_errors.ErrNotFound) {
		return chat.Conversation{}, err
	}

	now := time.Now()
	conv = chat.Conversation{
		Type:        chat.TypeGroup,
		CommunityID: sql.NullInt64{Int64: communityID, Valid: true},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, &conv); err != nil {
		if errors.Is(err, bazaar_errors.ErrAlreadyExists) {
			return s.repo.GetByCommunityID(ctx, communityID)
		}
		return chat.Conversation{}, err
	}

	for _, uid := range memberIDs {
		member := chat.Member{ConversationID: conv.ID, UserID: uid, JoinedAt: now}
		if err := s.repo.AddMember(ctx, &member); err != nil && !errors.Is(err, bazaar_errors.ErrAlreadyExists) {
			return chat.Conversation{}, err
		}
		conv.Members = append(conv.Members, member)
	}

	s.log.Logger.Info("created group conversation",
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("community_id", communityID))
	return conv, nil
}

// JoinGroup adds a member to an existing group conversation.
func (s *DirectoryService) JoinGroup(ctx context.Context, conversationID, userID int64) error {
	member := chat.Member{ConversationID: conversationID, UserID: userID, JoinedAt: time.Now()}
	err := s.repo.AddMember(ctx, &member)
	if errors.Is(err, bazaar_errors.ErrAlreadyExists) {
		return nil
	}
	return err
}

func (s *DirectoryService) ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error) {
	return s.repo.ListMembers(ctx, conversationID)
}

// PeerReadAt returns the read watermark of the other member of a direct
// conversation. Zero time means the peer has never read.
func (s *DirectoryService) PeerReadAt(ctx context.Context, conversationID, selfID int64) (time.Time, error) {
	members, err := s.repo.ListMembers(ctx, conversationID)
	if err != nil {
		return time.Time{}, err
	}
	for _, m := range members {
		if m.UserID != selfID && m.LastReadAt.Valid {
			return m.LastReadAt.Time, nil
		}
	}
	return time.Time{}, nil
}
