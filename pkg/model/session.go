package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// Session is created implicitly on the first query for an unknown ID and is
// never deleted. DeletedAt is reserved for future soft-delete support.
type Session struct {
	ID        SessionID
	CreatedAt time.Time
	DeletedAt *time.Time
}
