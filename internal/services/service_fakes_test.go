package services

import (
	"context"
	"sync"
	"time"

	"bazaarchat/internal/domain/chat"
	bazaar_errors "bazaarchat/pkg/errors"
)

// memConversationRepo is an in-memory ConversationRepository enforcing the
// same uniqueness rules as the SQL schema.
type memConversationRepo struct {
	mu       sync.Mutex
	nextID   int64
	convs    map[int64]chat.Conversation
	members  map[int64][]chat.Member
	failNext error
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{
		convs:   make(map[int64]chat.Conversation),
		members: make(map[int64][]chat.Member),
	}
}

func (r *memConversationRepo) Create(ctx context.Context, c *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	for _, existing := range r.convs {
		if c.DirectKey.Valid && existing.DirectKey.Valid && existing.DirectKey.String == c.DirectKey.String {
			return bazaar_errors.ErrAlreadyExists
		}
		if c.CommunityID.Valid && existing.CommunityID.Valid && existing.CommunityID.Int64 == c.CommunityID.Int64 {
			return bazaar_errors.ErrAlreadyExists
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.convs[c.ID] = *c
	return nil
}

func (r *memConversationRepo) GetByID(ctx context.Context, id int64) (chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok {
		return c, nil
	}
	return chat.Conversation{}, bazaar_errors.ErrNotFound
}

func (r *memConversationRepo) GetByDirectKey(ctx context.Context, key string) (chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.DirectKey.Valid && c.DirectKey.String == key {
			return c, nil
		}
	}
	return chat.Conversation{}, bazaar_errors.ErrNotFound
}

func (r *memConversationRepo) GetByCommunityID(ctx context.Context, communityID int64) (chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.CommunityID.Valid && c.CommunityID.Int64 == communityID {
			return c, nil
		}
	}
	return chat.Conversation{}, bazaar_errors.ErrNotFound
}

func (r *memConversationRepo) AddMember(ctx context.Context, m *chat.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members[m.ConversationID] {
		if existing.UserID == m.UserID {
			return bazaar_errors.ErrAlreadyExists
		}
	}
	r.members[m.ConversationID] = append(r.members[m.ConversationID], *m)
	return nil
}

func (r *memConversationRepo) ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.Member, len(r.members[conversationID]))
	copy(out, r.members[conversationID])
	return out, nil
}

func (r *memConversationRepo) GetMember(ctx context.Context, conversationID, userID int64) (chat.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[conversationID] {
		if m.UserID == userID {
			return m, nil
		}
	}
	return chat.Member{}, bazaar_errors.ErrNotFound
}

func (r *memConversationRepo) AdvanceLastRead(ctx context.Context, conversationID, userID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members[conversationID] {
		if m.UserID != userID {
			continue
		}
		if m.LastReadAt.Valid && !at.After(m.LastReadAt.Time) {
			return false, nil
		}
		r.members[conversationID][i].LastReadAt.Time = at
		r.members[conversationID][i].LastReadAt.Valid = true
		return true, nil
	}
	return false, nil
}

// memMessageRepo is an in-memory MessageRepository with the client id
// uniqueness constraint.
type memMessageRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages []chat.Message
	failNext error
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{}
}

func (r *memMessageRepo) Create(ctx context.Context, m *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if m.ClientMessageID.Valid {
		for _, existing := range r.messages {
			if existing.ClientMessageID.Valid && existing.ClientMessageID.String == m.ClientMessageID.String {
				return bazaar_errors.ErrAlreadyExists
			}
		}
	}
	r.nextID++
	m.ID = r.nextID
	r.messages = append(r.messages, *m)
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id int64) (chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return chat.Message{}, bazaar_errors.ErrNotFound
}

func (r *memMessageRepo) GetByClientMessageID(ctx context.Context, clientMsgID string) (chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ClientMessageID.Valid && m.ClientMessageID.String == clientMsgID {
			return m, nil
		}
	}
	return chat.Message{}, bazaar_errors.ErrNotFound
}

func (r *memMessageRepo) ListBefore(ctx context.Context, conversationID int64, before time.Time, limit int) ([]chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, m)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memMessageRepo) CountSince(ctx context.Context, conversationID, userID int64, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.SenderID != userID && m.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu        sync.Mutex
	published []publishedEvent
	failNext  error
}

type publishedEvent struct {
	Channel   string
	EventType string
	Payload   interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return err
	}
	p.published = append(p.published, publishedEvent{Channel: channel, EventType: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.published))
	copy(out, p.published)
	return out
}

// fakeBlobStore returns a deterministic URL for every upload.
type fakeBlobStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeBlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.test/" + key, nil
}
