// Package sync keeps one conversation's message list converged across
// three unordered inputs: the synchronous store calls the user triggers,
// the realtime events the platform pushes, and the optimistic entries shown
// before the backend acknowledges them.
package sync

import (
	stdsync "sync"
	"time"

	"bazaarchat/internal/domain/chat"
	"bazaarchat/internal/events"
)

// Entry is one row of the rendered message list. ID is zero until the
// backend assigns one; Failed marks a send that errored and is waiting for
// an explicit retry.
type Entry struct {
	ID            int64
	ClientID      string
	SenderID      int64
	Body          string
	AttachmentURL string
	CreatedAt     time.Time
	State         chat.DeliveryState
	Failed        bool
}

// Pending reports whether the entry is still waiting for its server id.
func (e Entry) Pending() bool {
	return e.ID == 0 && !e.Failed
}

// Timeline is the in-memory model of one open conversation. All methods
// are safe for concurrent use; the notify callback fires after every
// visible change, outside the lock, so it may call back into the timeline.
type Timeline struct {
	mu       stdsync.Mutex
	selfID   int64
	entries  []Entry
	outbound *outboundLedger

	// Read watermarks of the other members, keyed by user id. The
	// effective peer watermark is the minimum: a message counts as read
	// only once everyone else has seen it.
	memberReads map[int64]time.Time

	notify func()
}

func NewTimeline(selfID int64, notify func()) *Timeline {
	if notify == nil {
		notify = func() {}
	}
	return &Timeline{
		selfID:      selfID,
		outbound:    newOutboundLedger(),
		memberReads: make(map[int64]time.Time),
		notify:      notify,
	}
}

// Seed replaces the confirmed history with a fresh page from the store.
// Unresolved outbound entries survive: a reconnect must not silently drop
// a message the user watched themselves type.
func (t *Timeline) Seed(msgs []chat.Message, memberReads map[int64]time.Time) {
	t.mu.Lock()

	for uid, at := range memberReads {
		if uid == t.selfID {
			continue
		}
		t.memberReads[uid] = maxTime(t.memberReads[uid], at)
	}
	watermark := t.peerWatermarkLocked()

	t.entries = t.entries[:0]
	for _, m := range msgs {
		entry := Entry{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
			State:     chat.StateDelivered,
		}
		if m.ClientMessageID.Valid {
			entry.ClientID = m.ClientMessageID.String
		}
		if m.AttachmentURL.Valid {
			entry.AttachmentURL = m.AttachmentURL.String
		}
		if m.SenderID == t.selfID {
			entry.State = chat.DeriveState(m.CreatedAt, watermark)
			// A row the store already has resolves any matching
			// in-flight send.
			t.outbound.confirm(entry.ClientID, m.ID)
		}
		t.insertSortedLocked(entry)
	}

	for _, rec := range t.outbound.unresolved() {
		t.insertSortedLocked(Entry{
			ClientID:  rec.ClientID,
			SenderID:  t.selfID,
			Body:      rec.Body,
			CreatedAt: rec.EnqueuedAt,
			State:     chat.StateSent,
			Failed:    rec.State == outboundFailed,
		})
	}

	t.mu.Unlock()
	t.notify()
}

// BeginSend appends an optimistic pending entry and returns it. The caller
// forwards Entry.ClientID to the store so the echo can be matched exactly.
func (t *Timeline) BeginSend(body, attachmentURL string) Entry {
	t.mu.Lock()
	rec := t.outbound.add(body)
	entry := Entry{
		ClientID:      rec.ClientID,
		SenderID:      t.selfID,
		Body:          body,
		AttachmentURL: attachmentURL,
		CreatedAt:     rec.EnqueuedAt,
		State:         chat.StateSent,
	}
	t.insertSortedLocked(entry)
	t.mu.Unlock()
	t.notify()
	return entry
}

// CompleteSend applies the store's acknowledgement of an optimistic send.
// Harmless if the realtime echo already resolved the entry.
func (t *Timeline) CompleteSend(clientID string, msg chat.Message) {
	t.mu.Lock()
	changed := t.resolveLocked(clientID, msg.ID, msg.CreatedAt)
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// FailSend flags an optimistic send that errored. The entry stays on
// screen so the user can retry or give up deliberately.
func (t *Timeline) FailSend(clientID string) {
	t.mu.Lock()
	changed := false
	if rec := t.outbound.fail(clientID); rec != nil && rec.State == outboundFailed {
		if i := t.indexByClientIDLocked(clientID); i >= 0 && t.entries[i].ID == 0 {
			t.entries[i].Failed = true
			changed = true
		}
	}
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Retry puts a failed send back in flight, reusing its client id. Returns
// false when the client id is unknown or the send is not in a failed state.
func (t *Timeline) Retry(clientID string) bool {
	t.mu.Lock()
	rec := t.outbound.reopen(clientID)
	if rec == nil {
		t.mu.Unlock()
		return false
	}
	if i := t.indexByClientIDLocked(clientID); i >= 0 {
		t.entries[i].Failed = false
	}
	t.mu.Unlock()
	t.notify()
	return true
}

// ApplyInsert folds a realtime insert event into the list. Events are
// at-least-once and unordered, so every path here is idempotent: a known
// server id is a no-op, an own echo resolves the matching optimistic entry
// instead of duplicating it, anything else is inserted in timestamp order.
func (t *Timeline) ApplyInsert(e events.MessageInsertedEvent) {
	t.mu.Lock()

	if t.indexByIDLocked(e.MessageID) >= 0 {
		t.mu.Unlock()
		return
	}

	if e.SenderID == t.selfID {
		clientID := e.ClientMessageID
		if clientID == "" {
			// Legacy echo without a client id: fall back to matching
			// the oldest unresolved send with identical text.
			if rec := t.outbound.oldestPendingByBody(e.Body); rec != nil {
				clientID = rec.ClientID
			}
		}
		if clientID != "" && t.outbound.get(clientID) != nil {
			t.resolveLocked(clientID, e.MessageID, e.CreatedAt)
			t.mu.Unlock()
			t.notify()
			return
		}
	}

	entry := Entry{
		ID:            e.MessageID,
		ClientID:      e.ClientMessageID,
		SenderID:      e.SenderID,
		Body:          e.Body,
		AttachmentURL: e.AttachmentURL,
		CreatedAt:     e.CreatedAt,
		State:         chat.StateDelivered,
	}
	if e.SenderID == t.selfID {
		entry.State = chat.DeriveState(e.CreatedAt, t.peerWatermarkLocked())
	}
	t.insertSortedLocked(entry)

	t.mu.Unlock()
	t.notify()
}

// ApplyMemberUpdate folds a read-watermark event into the list. Watermarks
// only move forward; stale or out-of-order events change nothing. Only
// confirmed own entries upgrade, a pending entry has no server timestamp
// to compare.
func (t *Timeline) ApplyMemberUpdate(e events.MemberUpdatedEvent) {
	if e.UserID == t.selfID {
		return
	}

	t.mu.Lock()
	current := t.memberReads[e.UserID]
	if !e.LastReadAt.After(current) {
		t.mu.Unlock()
		return
	}
	t.memberReads[e.UserID] = e.LastReadAt

	changed := t.upgradeReadLocked()
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Messages returns a snapshot of the list in ascending timestamp order.
func (t *Timeline) Messages() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// PeerReadAt returns the effective peer watermark: the minimum read time
// across the other members. Zero while any of them has never read.
func (t *Timeline) PeerReadAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerWatermarkLocked()
}

// resolveLocked turns the optimistic entry for clientID into a confirmed
// one carrying the server id and timestamp. Reports whether anything
// changed.
func (t *Timeline) resolveLocked(clientID string, finalID int64, createdAt time.Time) bool {
	rec := t.outbound.get(clientID)
	if rec == nil {
		return false
	}
	if rec.State == outboundConfirmed && rec.FinalID == finalID {
		if i := t.indexByClientIDLocked(clientID); i >= 0 && t.entries[i].ID == finalID {
			return false
		}
	}
	t.outbound.confirm(clientID, finalID)

	i := t.indexByClientIDLocked(clientID)
	if i < 0 {
		return false
	}
	entry := t.entries[i]
	entry.ID = finalID
	entry.CreatedAt = createdAt
	entry.Failed = false
	entry.State = chat.DeriveState(createdAt, t.peerWatermarkLocked())

	// The server timestamp replaces the local one, so the entry may
	// belong elsewhere in the order.
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	t.insertSortedLocked(entry)
	return true
}

func (t *Timeline) upgradeReadLocked() bool {
	watermark := t.peerWatermarkLocked()
	if watermark.IsZero() {
		return false
	}
	changed := false
	for i := range t.entries {
		e := &t.entries[i]
		if e.SenderID != t.selfID || e.ID == 0 || e.State == chat.StateRead {
			continue
		}
		if chat.DeriveState(e.CreatedAt, watermark) == chat.StateRead {
			e.State = chat.StateRead
			changed = true
		}
	}
	return changed
}

func (t *Timeline) peerWatermarkLocked() time.Time {
	var min time.Time
	first := true
	for _, at := range t.memberReads {
		if first || at.Before(min) {
			min = at
			first = false
		}
	}
	return min
}

// insertSortedLocked places the entry by ascending CreatedAt, after any
// equal timestamps, so arrival order breaks ties.
func (t *Timeline) insertSortedLocked(entry Entry) {
	i := len(t.entries)
	for i > 0 && t.entries[i-1].CreatedAt.After(entry.CreatedAt) {
		i--
	}
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry
}

func (t *Timeline) indexByIDLocked(id int64) int {
	if id == 0 {
		return -1
	}
	for i := range t.entries {
		if t.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexByClientIDLocked(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i := range t.entries {
		if t.entries[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
