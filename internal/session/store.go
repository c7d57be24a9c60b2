package session

import (
	"time"

	"github.com/aictl/agentcore/internal/provider"
)

// Store persists snapshots together with the transcript they describe.
type Store interface {
	Save(rec *Record) error
	Load(id string) (*Record, error)
	List() ([]RecordInfo, error)
	Delete(id string) error
	Close() error
}

// Record is one saved snapshot. ID is assigned by Save when empty.
type Record struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	Snapshot  *Snapshot
	Messages  []provider.Message
}

// RecordInfo is a lightweight summary of a saved record (for listing).
type RecordInfo struct {
	ID          string
	SessionID   string
	CreatedAt   time.Time
	ProjectRoot string
	Messages    int
	ActiveFiles int
}
