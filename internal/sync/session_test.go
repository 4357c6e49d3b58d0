package sync

import (
	"context"
	"database/sql"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"bazaarchat/internal/bus"
	"bazaarchat/internal/domain/chat"
	"bazaarchat/internal/events"
	"bazaarchat/internal/identity"
	"bazaarchat/internal/realtime"
	bazaar_errors "bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       stdsync.Mutex
	history  []chat.Message
	nextID   int64
	sendErr  error
	sentIDs  []string
	readAt   []time.Time
	unread   int64
	unreadAt []time.Time
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID int64, limit int, before time.Time) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Message, len(f.history))
	copy(out, f.history)
	return out, nil
}

func (f *fakeStore) SendMessage(ctx context.Context, conversationID, senderID int64, body, clientID string) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentIDs = append(f.sentIDs, clientID)
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	f.nextID++
	msg := chat.Message{
		ID:              f.nextID,
		ConversationID:  conversationID,
		SenderID:        senderID,
		ClientMessageID: sql.NullString{String: clientID, Valid: true},
		Body:            body,
		CreatedAt:       time.Now(),
	}
	f.history = append(f.history, msg)
	return msg, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readAt = append(f.readAt, at)
	return nil
}

func (f *fakeStore) CountUnread(ctx context.Context, conversationID, userID int64, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreadAt = append(f.unreadAt, since)
	return f.unread, nil
}

func (f *fakeStore) markReadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readAt)
}

func (f *fakeStore) sentClientIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sentIDs))
	copy(out, f.sentIDs)
	return out
}

type fakeDirectory struct {
	members []chat.Member
}

func (f *fakeDirectory) ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error) {
	return f.members, nil
}

type fakeBridge struct {
	mu       stdsync.Mutex
	handlers realtime.Handlers
	subs     int
}

func (f *fakeBridge) Subscribe(conversationID int64, h realtime.Handlers) (*realtime.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
	f.subs++
	return realtime.NewSubscription(func() {}), nil
}

func (f *fakeBridge) current() realtime.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}

func (f *fakeBridge) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

func newFixture(t *testing.T) (*Session, *fakeStore, *fakeBridge) {
	t.Helper()

	store := &fakeStore{nextID: 100}
	bridge := &fakeBridge{}
	dir := &fakeDirectory{members: []chat.Member{
		{ConversationID: 1, UserID: selfID},
		{ConversationID: 1, UserID: 99},
	}}

	s, err := Open(context.Background(), 1, SessionConfig{
		Store:     store,
		Directory: dir,
		Bridge:    bridge,
		Identity:  identity.StaticResolver{UserID: selfID},
		Signals:   bus.New(),
		Log:       logger.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, store, bridge
}

func TestOpenSeedsHistoryAndMarksRead(t *testing.T) {
	store := &fakeStore{history: []chat.Message{
		storedMessage(1, 99, "is it available?", base),
		storedMessage(2, selfID, "yes, still here", base.Add(time.Minute)),
	}}
	bridge := &fakeBridge{}
	dir := &fakeDirectory{members: []chat.Member{
		{ConversationID: 1, UserID: selfID},
		{ConversationID: 1, UserID: 99, LastReadAt: sql.NullTime{Time: base.Add(time.Hour), Valid: true}},
	}}

	s, err := Open(context.Background(), 1, SessionConfig{
		Store:     store,
		Directory: dir,
		Bridge:    bridge,
		Identity:  identity.StaticResolver{UserID: selfID},
		Log:       logger.NewNop(),
	})
	require.NoError(t, err)
	defer s.Close()

	msgs := s.Timeline().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "is it available?", msgs[0].Body)
	assert.Equal(t, chat.StateRead, msgs[1].State, "peer watermark covers the reply")

	assert.Equal(t, 1, store.markReadCalls(), "opening the screen marks it read")
	assert.Equal(t, 1, bridge.subscribeCount())
}

func TestOpenFailsWithoutIdentity(t *testing.T) {
	_, err := Open(context.Background(), 1, SessionConfig{
		Store:     &fakeStore{},
		Directory: &fakeDirectory{},
		Bridge:    &fakeBridge{},
		Identity:  identity.StaticResolver{},
		Log:       logger.NewNop(),
	})
	require.ErrorIs(t, err, bazaar_errors.ErrNoIdentity)
}

func TestSendConvergesWithEcho(t *testing.T) {
	s, _, bridge := newFixture(t)

	entry, err := s.Send(context.Background(), "deal, see you at 5")
	require.NoError(t, err)

	msgs := s.Timeline().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(101), msgs[0].ID)

	bridge.current().OnInsert(events.MessageInsertedEvent{
		MessageID:       101,
		ConversationID:  1,
		SenderID:        selfID,
		ClientMessageID: entry.ClientID,
		Body:            "deal, see you at 5",
		CreatedAt:       msgs[0].CreatedAt,
	})

	msgs = s.Timeline().Messages()
	require.Len(t, msgs, 1, "echo must not duplicate the acknowledged send")
}

func TestSendFailureThenRetry(t *testing.T) {
	s, store, _ := newFixture(t)

	store.sendErr = errors.New("gateway timeout")
	entry, err := s.Send(context.Background(), "hello?")
	require.ErrorIs(t, err, bazaar_errors.ErrSendFailed)

	msgs := s.Timeline().Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Failed)

	store.mu.Lock()
	store.sendErr = nil
	store.mu.Unlock()

	require.NoError(t, s.Retry(context.Background(), entry.ClientID))

	msgs = s.Timeline().Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Failed)
	assert.NotZero(t, msgs[0].ID)

	sent := store.sentClientIDs()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1], "retry reuses the client id")

	assert.ErrorIs(t, s.Retry(context.Background(), "unknown"), bazaar_errors.ErrNotFound)
}

func TestIncomingMessageIsMarkedRead(t *testing.T) {
	s, store, bridge := newFixture(t)
	before := store.markReadCalls()

	bridge.current().OnInsert(insertEvent(10, 99, "still interested?", base))

	msgs := s.Timeline().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].ID)
	assert.Equal(t, before+1, store.markReadCalls(), "screen is open, arrival counts as read")
}

func TestOwnEchoDoesNotMarkRead(t *testing.T) {
	s, store, bridge := newFixture(t)
	before := store.markReadCalls()

	bridge.current().OnInsert(insertEvent(10, selfID, "from another device", base))

	require.Len(t, s.Timeline().Messages(), 1)
	assert.Equal(t, before, store.markReadCalls())
}

func TestDropThenResyncRecoversGap(t *testing.T) {
	s, store, bridge := newFixture(t)

	bridge.current().OnDrop(bazaar_errors.ErrSubscriptionDropped)
	require.ErrorIs(t, s.Dropped(), bazaar_errors.ErrSubscriptionDropped)

	// A message lands while the feed is down; only a refetch can see it.
	store.mu.Lock()
	store.history = append(store.history, storedMessage(55, 99, "missed this one", base))
	store.mu.Unlock()

	require.NoError(t, s.Resync(context.Background()))
	assert.NoError(t, s.Dropped())
	assert.Equal(t, 2, bridge.subscribeCount())

	msgs := s.Timeline().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(55), msgs[0].ID)
}

func TestResyncKeepsUnresolvedSends(t *testing.T) {
	s, store, _ := newFixture(t)

	store.sendErr = errors.New("down")
	entry, err := s.Send(context.Background(), "lost in transit")
	require.ErrorIs(t, err, bazaar_errors.ErrSendFailed)

	store.mu.Lock()
	store.sendErr = nil
	store.mu.Unlock()

	require.NoError(t, s.Resync(context.Background()))

	msgs := s.Timeline().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, entry.ClientID, msgs[0].ClientID)
	assert.True(t, msgs[0].Failed, "reseeding must not drop the failed send")
}

func TestUnreadUsesOwnWatermark(t *testing.T) {
	s, store, _ := newFixture(t)
	store.mu.Lock()
	store.unread = 3
	store.mu.Unlock()

	n, err := s.Unread(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _, _ := newFixture(t)
	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Resync(context.Background()), bazaar_errors.ErrSessionClosed)
}
