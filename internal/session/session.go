package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the conversation state of one agent run.
type Session struct {
	ID        string
	CreatedAt time.Time
	History   *History
}

// New creates a session with a fresh ID and an empty history.
func New(ephemeralTags []string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		History:   NewHistory(ephemeralTags),
	}
}
