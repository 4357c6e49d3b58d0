package chat

import "time"

// DeliveryState is the outbound status of a message authored by the local
// user. Messages from other members carry no outbound state.
type DeliveryState string

const (
	// StateSent: optimistically rendered, not yet acknowledged by the backend.
	StateSent DeliveryState = "SENT"
	// StateDelivered: the backend assigned a final id and timestamp.
	StateDelivered DeliveryState = "DELIVERED"
	// StateRead: the peer's read watermark covers the message timestamp.
	StateRead DeliveryState = "READ"
)

// DeriveState resolves the delivery state of a confirmed local message
// against the peer's read watermark. A zero watermark means the peer has
// never read.
func DeriveState(createdAt, peerReadAt time.Time) DeliveryState {
	if !peerReadAt.IsZero() && !createdAt.After(peerReadAt) {
		return StateRead
	}
	return StateDelivered
}
