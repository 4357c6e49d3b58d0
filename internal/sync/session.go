package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"bazaarchat/internal/bus"
	"bazaarchat/internal/domain/chat"
	"bazaarchat/internal/events"
	"bazaarchat/internal/identity"
	"bazaarchat/internal/realtime"
	bazaar_errors "bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"

	"go.uber.org/zap"
)

// MessageStore is the slice of the store accessor the session needs.
type MessageStore interface {
	ListMessages(ctx context.Context, conversationID int64, limit int, before time.Time) ([]chat.Message, error)
	SendMessage(ctx context.Context, conversationID, senderID int64, body, clientID string) (chat.Message, error)
	MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error
	CountUnread(ctx context.Context, conversationID, userID int64, since time.Time) (int64, error)
}

// MemberDirectory exposes the membership of a conversation.
type MemberDirectory interface {
	ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error)
}

// SessionConfig carries the collaborators of a Session. Signals is the
// in-process bus the session publishes timeline changes on; it is always
// injected, never reached for globally.
type SessionConfig struct {
	Store     MessageStore
	Directory MemberDirectory
	Bridge    realtime.Bridge
	Identity  identity.Resolver
	Signals   *bus.Bus
	Log       *logger.Logger
	PageLimit int
}

// Session is one open conversation screen: it seeds the timeline from the
// store, keeps it converged with the realtime feed, and marks incoming
// messages read while the screen is up.
type Session struct {
	conversationID int64
	selfID         int64
	cfg            SessionConfig

	timeline *Timeline

	ctx    context.Context
	cancel context.CancelFunc

	mu       stdsync.Mutex
	sub      *realtime.Subscription
	selfRead time.Time
	dropped  error
	closed   bool
}

// Open resolves the caller's identity, loads the newest page of history,
// subscribes to the conversation's realtime channel and marks the
// conversation read.
func Open(ctx context.Context, conversationID int64, cfg SessionConfig) (*Session, error) {
	selfID, err := cfg.Identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conversationID: conversationID,
		selfID:         selfID,
		cfg:            cfg,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.timeline = NewTimeline(selfID, s.announce)

	if err := s.refresh(ctx); err != nil {
		s.cancel()
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		s.cancel()
		return nil, err
	}
	return s, nil
}

// Timeline returns the live message list model.
func (s *Session) Timeline() *Timeline {
	return s.timeline
}

// Send appends an optimistic entry and posts the message. On failure the
// entry stays visible, flagged for retry, and the error is returned.
func (s *Session) Send(ctx context.Context, body string) (Entry, error) {
	entry := s.timeline.BeginSend(body, "")
	msg, err := s.cfg.Store.SendMessage(ctx, s.conversationID, s.selfID, body, entry.ClientID)
	if err != nil {
		s.timeline.FailSend(entry.ClientID)
		return entry, fmt.Errorf("%w: %v", bazaar_errors.ErrSendFailed, err)
	}
	s.timeline.CompleteSend(entry.ClientID, msg)
	return entry, nil
}

// Retry reposts a failed send under its original client id, so a send
// that actually reached the backend the first time stays single.
func (s *Session) Retry(ctx context.Context, clientID string) error {
	if !s.timeline.Retry(clientID) {
		return bazaar_errors.ErrNotFound
	}

	var body string
	for _, e := range s.timeline.Messages() {
		if e.ClientID == clientID {
			body = e.Body
			break
		}
	}

	msg, err := s.cfg.Store.SendMessage(ctx, s.conversationID, s.selfID, body, clientID)
	if err != nil {
		s.timeline.FailSend(clientID)
		return fmt.Errorf("%w: %v", bazaar_errors.ErrSendFailed, err)
	}
	s.timeline.CompleteSend(clientID, msg)
	return nil
}

// MarkRead advances the caller's watermark to now.
func (s *Session) MarkRead(ctx context.Context) error {
	now := time.Now()
	if err := s.cfg.Store.MarkRead(ctx, s.conversationID, s.selfID, now); err != nil {
		return err
	}
	s.mu.Lock()
	if now.After(s.selfRead) {
		s.selfRead = now
	}
	s.mu.Unlock()
	return nil
}

// Unread counts messages from others newer than the caller's watermark.
func (s *Session) Unread(ctx context.Context) (int64, error) {
	s.mu.Lock()
	since := s.selfRead
	s.mu.Unlock()
	return s.cfg.Store.CountUnread(ctx, s.conversationID, s.selfID, since)
}

// Resync refetches membership and history and reseeds the timeline, then
// replaces the realtime subscription. The feed has no replay, so this is
// the only way to recover messages that arrived during a gap; unresolved
// outbound entries survive the reseed.
func (s *Session) Resync(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return bazaar_errors.ErrSessionClosed
	}
	old := s.sub
	s.sub = nil
	s.dropped = nil
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}
	return s.subscribe()
}

// Dropped returns the error that killed the realtime subscription, or nil
// while the feed is healthy. A non-nil value calls for a Resync.
func (s *Session) Dropped() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close releases the realtime subscription. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.cancel()
	if sub != nil {
		sub.Close()
	}
}

func (s *Session) refresh(ctx context.Context) error {
	members, err := s.cfg.Directory.ListMembers(ctx, s.conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", bazaar_errors.ErrFetchFailed, err)
	}

	memberReads := make(map[int64]time.Time, len(members))
	for _, m := range members {
		var at time.Time
		if m.LastReadAt.Valid {
			at = m.LastReadAt.Time
		}
		if m.UserID == s.selfID {
			s.mu.Lock()
			if at.After(s.selfRead) {
				s.selfRead = at
			}
			s.mu.Unlock()
			continue
		}
		memberReads[m.UserID] = at
	}

	msgs, err := s.cfg.Store.ListMessages(ctx, s.conversationID, s.cfg.PageLimit, time.Time{})
	if err != nil {
		return err
	}

	s.timeline.Seed(msgs, memberReads)

	if err := s.MarkRead(ctx); err != nil {
		s.cfg.Log.Logger.Warn("mark read on open failed",
			zap.Int64("conversation_id", s.conversationID), zap.Error(err))
	}
	return nil
}

func (s *Session) subscribe() error {
	sub, err := s.cfg.Bridge.Subscribe(s.conversationID, realtime.Handlers{
		OnInsert:       s.onInsert,
		OnMemberUpdate: s.onMemberUpdate,
		OnDrop:         s.onDrop,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return bazaar_errors.ErrSessionClosed
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *Session) onInsert(e events.MessageInsertedEvent) {
	if e.ConversationID != s.conversationID {
		return
	}
	s.timeline.ApplyInsert(e)
	// The screen is open, so anything from someone else is read on
	// arrival.
	if e.SenderID != s.selfID {
		if err := s.MarkRead(s.ctx); err != nil {
			s.cfg.Log.Logger.Warn("mark read on insert failed",
				zap.Int64("conversation_id", s.conversationID), zap.Error(err))
		}
	}
}

func (s *Session) onMemberUpdate(e events.MemberUpdatedEvent) {
	if e.ConversationID != s.conversationID {
		return
	}
	if e.UserID == s.selfID {
		s.mu.Lock()
		if e.LastReadAt.After(s.selfRead) {
			s.selfRead = e.LastReadAt
		}
		s.mu.Unlock()
		return
	}
	s.timeline.ApplyMemberUpdate(e)
}

func (s *Session) onDrop(err error) {
	s.mu.Lock()
	s.dropped = err
	s.mu.Unlock()
	s.cfg.Log.Logger.Warn("realtime feed lost, resync required",
		zap.Int64("conversation_id", s.conversationID), zap.Error(err))
}

func (s *Session) announce() {
	if s.cfg.Signals != nil {
		s.cfg.Signals.Publish(bus.TopicTimelineChanged, s.conversationID)
	}
}
