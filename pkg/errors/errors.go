package bazaar_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Failure classes of the chat client core
var (
	ErrNoIdentity          = errors.New("no authenticated identity")
	ErrSendFailed          = errors.New("send failed")
	ErrFetchFailed         = errors.New("fetch failed")
	ErrSubscriptionDropped = errors.New("realtime subscription dropped")
	ErrSessionClosed       = errors.New("session closed")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
