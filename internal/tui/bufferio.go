package tui

import (
	"io"
	"strings"
	"sync"

	"github.com/aictl/agentcore/internal/permission"
)

// BufferIO is a silent IO that captures assistant text and notices. It
// serves non-interactive runs and tests. Queued inputs are returned by
// ReadInput in order, then io.EOF.
type BufferIO struct {
	// Answer resolves every confirmation request.
	Answer permission.Action

	mu       sync.Mutex
	inputs   []string
	buf      strings.Builder
	system   []string
	errors   []string
	confirms []permission.Request
	used     int
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that answers confirmations with answer
// and feeds inputs to ReadInput.
func NewBufferIO(answer permission.Action, inputs ...string) *BufferIO {
	return &BufferIO{Answer: answer, inputs: inputs}
}

// Output returns all captured assistant text.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// SystemMessages returns the notices shown so far.
func (b *BufferIO) SystemMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.system...)
}

// Errors returns the errors shown so far.
func (b *BufferIO) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

// Confirmations returns every request Confirm received.
func (b *BufferIO) Confirmations() []permission.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]permission.Request(nil), b.confirms...)
}

// Used returns the last usage figure reported.
func (b *BufferIO) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	in := b.inputs[0]
	b.inputs = b.inputs[1:]
	return in, nil
}

func (b *BufferIO) UserMessage(_ string) {}
func (b *BufferIO) ThinkingStart()       {}

func (b *BufferIO) TextDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(delta)
}

func (b *BufferIO) TextDone(_ string)               {}
func (b *BufferIO) ToolStart(_, _, _ string)        {}
func (b *BufferIO) ToolDone(_, _, _ string, _ bool) {}

func (b *BufferIO) Confirm(req permission.Request) permission.Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirms = append(b.confirms, req)
	return b.Answer
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.system = append(b.system, text)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, msg)
}

func (b *BufferIO) SetUsage(used, _ int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = used
}
