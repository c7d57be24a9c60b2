package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AttemptedFix is one recent tool call recorded in a snapshot.
type AttemptedFix struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Snapshot is a resumable summary of where a session stands.
type Snapshot struct {
	Timestamp                time.Time      `json:"timestamp"`
	ProjectRoot              string         `json:"projectRoot"`
	ActiveFiles              []string       `json:"activeFiles"`
	LastError                string         `json:"lastError"`
	AttemptedFixes           []AttemptedFix `json:"attemptedFixes"`
	CompressedContextSummary string         `json:"compressedContextSummary"`
	NextSteps                []string       `json:"nextSteps"`
}

// WriteFile writes the snapshot as indented JSON, creating parent dirs.
func (s *Snapshot) WriteFile(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshotFile loads a snapshot written by WriteFile.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", path, err)
	}
	return &s, nil
}
