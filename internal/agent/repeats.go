package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/aictl/agentcore/internal/provider"
)

// repeatLevel grades how long the model has been issuing one batch.
type repeatLevel int

const (
	repeatNone repeatLevel = iota
	repeatWarn
	repeatStuck
)

const (
	repeatWarnAt  = 3
	repeatStuckAt = 5
)

// batchKey identifies a tool batch by what it would do, not how the model
// spelled it.
type batchKey string

// repeatWatcher counts consecutive identical batches. It never changes
// control flow; the loop only reports what it sees.
type repeatWatcher struct {
	last   batchKey
	streak int
}

// observe records key and returns the level and the current streak.
func (w *repeatWatcher) observe(key batchKey) (repeatLevel, int) {
	if key == w.last {
		w.streak++
	} else {
		w.last, w.streak = key, 1
	}
	switch {
	case w.streak >= repeatStuckAt:
		return repeatStuck, w.streak
	case w.streak >= repeatWarnAt:
		return repeatWarn, w.streak
	}
	return repeatNone, w.streak
}

// batchKey builds the key from each call's permission signature and its
// decoded arguments. Call ids, call order, key order and whitespace in the
// raw JSON do not matter.
func (a *Agent) batchKey(calls []provider.ToolCall) batchKey {
	parts := make([]string, len(calls))
	for i, c := range calls {
		args := parseArguments(c.Arguments)
		canon, _ := json.Marshal(args)
		parts[i] = a.gate.SignatureFor(c.Name, args) + "\x00" + c.Name + "\x00" + string(canon)
	}
	slices.Sort(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return batchKey(hex.EncodeToString(sum[:12]))
}
