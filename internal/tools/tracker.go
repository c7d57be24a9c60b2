package tools

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// FileChange records one file operation made during a session.
type FileChange struct {
	Path      string
	Operation string // "created", "modified", "deleted"
	Tool      string
	At        time.Time
}

// FileTracker accumulates the file changes tools make. A nil tracker
// ignores records.
type FileTracker struct {
	mu      sync.Mutex
	changes []FileChange
	seen    map[string]string // path -> latest operation
}

// NewFileTracker creates an empty tracker.
func NewFileTracker() *FileTracker {
	return &FileTracker{seen: make(map[string]string)}
}

// Record adds a change. The summary keeps the latest operation per path.
func (ft *FileTracker) Record(path, operation, tool string) {
	if ft == nil {
		return
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.changes = append(ft.changes, FileChange{Path: path, Operation: operation, Tool: tool, At: time.Now()})
	ft.seen[path] = operation
}

// Changes returns all recorded changes in order.
func (ft *FileTracker) Changes() []FileChange {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	cp := make([]FileChange, len(ft.changes))
	copy(cp, ft.changes)
	return cp
}

// Summary returns the unique changed paths grouped by operation, or ""
// when nothing changed.
func (ft *FileTracker) Summary() string {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if len(ft.seen) == 0 {
		return ""
	}

	groups := map[string][]string{}
	for _, c := range ft.changes {
		if ft.seen[c.Path] == c.Operation && !slices.Contains(groups[c.Operation], c.Path) {
			groups[c.Operation] = append(groups[c.Operation], c.Path)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Files changed: %d\n", len(ft.seen))
	for _, op := range []string{"created", "modified", "deleted"} {
		paths := groups[op]
		if len(paths) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n  %s (%d):\n", op, len(paths))
		for _, p := range paths {
			sb.WriteString("    " + p + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Reset clears all tracked changes.
func (ft *FileTracker) Reset() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.changes = nil
	ft.seen = make(map[string]string)
}

// looksLikeFileModification reports bash commands that likely change files.
func looksLikeFileModification(cmd string) bool {
	prefixes := []string{"rm ", "mv ", "cp ", "mkdir ", "touch ", "chmod ", "chown "}
	lower := strings.ToLower(strings.TrimSpace(cmd))
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
