package session

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/aictl/agentcore/internal/provider"
)

var (
	// ErrIndexOutOfRange is returned when a compaction plan names a message
	// that does not exist.
	ErrIndexOutOfRange = errors.New("message index out of range")

	// ErrInvalidArgument is returned for a truncation count outside
	// [1, Len], and for a compaction plan that repeats an index or would
	// leave nothing behind.
	ErrInvalidArgument = errors.New("invalid argument")
)

// CompressedPrefix starts the content of the summary message that
// replaces compacted history.
const CompressedPrefix = "[Compressed History]\n"

// History is the ordered conversation transcript of one session.
// Every mutation replaces the slice under the lock, so copies handed out by
// Snapshot are never affected by later changes.
type History struct {
	mu        sync.Mutex
	msgs      []provider.Message
	ephemeral []*regexp.Regexp
	onChange  func([]provider.Message)
}

// NewHistory returns an empty history that strips the given markup tags
// from older messages in model-bound snapshots.
func NewHistory(ephemeralTags []string) *History {
	h := &History{}
	for _, tag := range ephemeralTags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		q := regexp.QuoteMeta(tag)
		h.ephemeral = append(h.ephemeral, regexp.MustCompile(`(?s)<`+q+`(?:\s[^>]*)?>.*?</`+q+`>\s*`))
	}
	return h
}

// OnChange registers fn to run after every mutation with a copy of the new
// transcript. fn runs outside the lock and may call back into History.
func (h *History) OnChange(fn func(msgs []provider.Message)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// commit swaps in msgs and notifies the hook. Caller holds h.mu; commit
// releases it.
func (h *History) commit(msgs []provider.Message) {
	h.msgs = msgs
	hook := h.onChange
	var cp []provider.Message
	if hook != nil {
		cp = cloneMessages(msgs)
	}
	h.mu.Unlock()
	if hook != nil {
		hook(cp)
	}
}

// Append adds msg to the end of the transcript.
func (h *History) Append(msg provider.Message) {
	h.mu.Lock()
	next := make([]provider.Message, len(h.msgs), len(h.msgs)+1)
	copy(next, h.msgs)
	h.commit(append(next, msg.Clone()))
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Clear drops every message.
func (h *History) Clear() {
	h.mu.Lock()
	h.commit(nil)
}

// Restore replaces the transcript with msgs, as when resuming a saved
// session.
func (h *History) Restore(msgs []provider.Message) {
	h.mu.Lock()
	h.commit(cloneMessages(msgs))
}

// LastUserIndex returns the index of the most recent user message, or -1.
func (h *History) LastUserIndex() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lastUserIndex(h.msgs)
}

func lastUserIndex(msgs []provider.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == provider.RoleUser {
			return i
		}
	}
	return -1
}

// Snapshot returns a copy of the transcript. With forModel set, ephemeral
// markup is removed from every message except the most recent user
// message; the stored transcript is left untouched.
func (h *History) Snapshot(forModel bool) []provider.Message {
	h.mu.Lock()
	out := cloneMessages(h.msgs)
	h.mu.Unlock()

	if !forModel || len(h.ephemeral) == 0 {
		return out
	}
	keep := lastUserIndex(out)
	for i := range out {
		if i == keep {
			continue
		}
		out[i].Content = h.stripEphemeral(out[i].Content)
	}
	return out
}

func (h *History) stripEphemeral(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	stripped := s
	for _, re := range h.ephemeral {
		stripped = re.ReplaceAllString(stripped, "")
	}
	if stripped == s {
		return s
	}
	return strings.TrimSpace(stripped)
}

// ReplaceWithCompressed rebuilds the transcript from a compaction plan: an
// optional system summary message followed by the kept messages in
// ascending index order. Indices must be in range and unique, and a plan
// with neither a summary nor a kept message is refused. On error the
// transcript is left unchanged.
func (h *History) ReplaceWithCompressed(keep []int, summary string) error {
	if summary == "" && len(keep) == 0 {
		return fmt.Errorf("%w: compaction plan keeps nothing", ErrInvalidArgument)
	}
	idx := slices.Clone(keep)
	slices.Sort(idx)
	for i := 1; i < len(idx); i++ {
		if idx[i] == idx[i-1] {
			return fmt.Errorf("%w: keep index %d appears more than once", ErrInvalidArgument, idx[i])
		}
	}

	h.mu.Lock()
	for _, i := range idx {
		if i < 0 || i >= len(h.msgs) {
			n := len(h.msgs)
			h.mu.Unlock()
			return fmt.Errorf("%w: %d (history has %d messages)", ErrIndexOutOfRange, i, n)
		}
	}

	next := make([]provider.Message, 0, len(idx)+1)
	if summary != "" {
		next = append(next, provider.Message{
			Role:    provider.RoleSystem,
			Content: CompressedPrefix + summary,
		})
	}
	for _, i := range idx {
		next = append(next, h.msgs[i])
	}
	h.commit(next)
	return nil
}

// TruncateLast removes the last n messages and appends one assistant
// message carrying replacement.
func (h *History) TruncateLast(n int, replacement string) error {
	h.mu.Lock()
	if n <= 0 || n > len(h.msgs) {
		l := len(h.msgs)
		h.mu.Unlock()
		return fmt.Errorf("%w: cannot truncate %d of %d messages", ErrInvalidArgument, n, l)
	}
	next := make([]provider.Message, len(h.msgs)-n, len(h.msgs)-n+1)
	copy(next, h.msgs[:len(h.msgs)-n])
	next = append(next, provider.Message{Role: provider.RoleAssistant, Content: replacement})
	h.commit(next)
	return nil
}

// IsCompressedSummary reports whether m is a summary produced by compaction.
func IsCompressedSummary(m provider.Message) bool {
	return m.Role == provider.RoleSystem && strings.HasPrefix(m.Content, CompressedPrefix)
}

func cloneMessages(msgs []provider.Message) []provider.Message {
	if msgs == nil {
		return nil
	}
	out := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
