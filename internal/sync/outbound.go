package sync

import (
	"time"

	"github.com/google/uuid"
)

// outboundState is the lifecycle of one optimistically-sent message:
// pending until either the send acknowledgement or the realtime echo
// carries the server-assigned id, failed if the send errored first.
type outboundState int

const (
	outboundPending outboundState = iota
	outboundConfirmed
	outboundFailed
)

// outboundRecord tracks one optimistic send. Seq orders records within the
// session; ClientID travels to the backend so the echo can be matched
// structurally instead of by text.
type outboundRecord struct {
	Seq        int64
	ClientID   string
	Body       string
	State      outboundState
	FinalID    int64
	EnqueuedAt time.Time
}

// outboundLedger holds the session's outbound records. Not safe for
// concurrent use; the owning timeline serializes access.
type outboundLedger struct {
	nextSeq int64
	records map[string]*outboundRecord
}

func newOutboundLedger() *outboundLedger {
	return &outboundLedger{records: make(map[string]*outboundRecord)}
}

func (l *outboundLedger) add(body string) *outboundRecord {
	l.nextSeq++
	rec := &outboundRecord{
		Seq:        l.nextSeq,
		ClientID:   uuid.New().String(),
		Body:       body,
		State:      outboundPending,
		EnqueuedAt: time.Now(),
	}
	l.records[rec.ClientID] = rec
	return rec
}

func (l *outboundLedger) get(clientID string) *outboundRecord {
	return l.records[clientID]
}

func (l *outboundLedger) confirm(clientID string, finalID int64) *outboundRecord {
	rec := l.records[clientID]
	if rec == nil {
		return nil
	}
	rec.State = outboundConfirmed
	rec.FinalID = finalID
	return rec
}

// fail flags a send whose call errored. A record the echo already
// confirmed stays confirmed; the message made it regardless of what the
// call reported.
func (l *outboundLedger) fail(clientID string) *outboundRecord {
	rec := l.records[clientID]
	if rec == nil || rec.State == outboundConfirmed {
		return nil
	}
	rec.State = outboundFailed
	return rec
}

// reopen puts a failed record back in flight for a retry.
func (l *outboundLedger) reopen(clientID string) *outboundRecord {
	rec := l.records[clientID]
	if rec == nil || rec.State != outboundFailed {
		return nil
	}
	rec.State = outboundPending
	return rec
}

// oldestPendingByBody is the text-equality fallback for the echo-first
// race: when the realtime insert beats the send acknowledgement and carries
// no client id, the oldest unresolved send with identical text is the best
// candidate. FIFO keeps duplicate texts from cross-reconciling.
func (l *outboundLedger) oldestPendingByBody(body string) *outboundRecord {
	var oldest *outboundRecord
	for _, rec := range l.records {
		if rec.State != outboundPending || rec.Body != body {
			continue
		}
		if oldest == nil || rec.Seq < oldest.Seq {
			oldest = rec
		}
	}
	return oldest
}

// unresolved returns records that have not been confirmed, oldest first.
func (l *outboundLedger) unresolved() []*outboundRecord {
	var out []*outboundRecord
	for _, rec := range l.records {
		if rec.State != outboundConfirmed {
			out = append(out, rec)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Seq < out[j-1].Seq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
