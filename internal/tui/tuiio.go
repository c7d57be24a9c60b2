package tui

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aictl/agentcore/internal/permission"
)

// TuiIO implements IO by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult

	mu         sync.Mutex
	pending    chan permission.Action
	cancelLoop context.CancelFunc
}

var (
	_ IO                  = (*TuiIO)(nil)
	_ permission.Canceler = (*TuiIO)(nil)
)

func (t *TuiIO) ReadInput() (string, error) {
	t.program.Send(readInputMsg{})
	res := <-t.inputCh
	if res.err != nil {
		return "", io.EOF
	}
	return res.text, nil
}

func (t *TuiIO) UserMessage(text string) { t.program.Send(userMsg{text: text}) }
func (t *TuiIO) ThinkingStart()          { t.program.Send(thinkingStartMsg{}) }
func (t *TuiIO) TextDelta(delta string)  { t.program.Send(textDeltaMsg{delta: delta}) }
func (t *TuiIO) TextDone(fullText string) {
	t.program.Send(textDoneMsg{fullText: fullText})
}

func (t *TuiIO) ToolStart(id, name, params string) {
	t.program.Send(toolStartMsg{id: id, name: name, params: params})
}

func (t *TuiIO) ToolDone(id, name, result string, isErr bool) {
	t.program.Send(toolDoneMsg{id: id, name: name, result: result, isErr: isErr})
}

// Confirm shows the request inline and blocks until the user answers or
// CancelConfirm withdraws it.
func (t *TuiIO) Confirm(req permission.Request) permission.Action {
	replyCh := make(chan permission.Action, 1)
	t.mu.Lock()
	t.pending = replyCh
	t.mu.Unlock()

	params, _ := json.Marshal(req.Args)
	t.program.Send(confirmMsg{
		name:      req.ToolName,
		params:    string(params),
		signature: req.Signature,
		dangerous: req.Dangerous,
		replyCh:   replyCh,
	})
	a := <-replyCh

	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
	return a
}

// CancelConfirm resolves a pending prompt to Deny and clears it from the
// screen.
func (t *TuiIO) CancelConfirm() {
	t.mu.Lock()
	ch := t.pending
	t.pending = nil
	t.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- permission.Deny:
	default:
	}
	t.program.Send(confirmCanceledMsg{})
}

func (t *TuiIO) SystemMessage(text string) { t.program.Send(systemMsg{text: text}) }
func (t *TuiIO) Error(msg string)          { t.program.Send(errorMsg{text: msg}) }

func (t *TuiIO) SetUsage(used, max int) {
	t.program.Send(usageMsg{used: used, max: max})
}

// SetLoopCancel registers the cancel function of the running turn.
func (t *TuiIO) SetLoopCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLoop = cancel
}

// ClearLoopCancel forgets the turn's cancel function when it ends.
func (t *TuiIO) ClearLoopCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLoop = nil
}

// CancelLoop cancels the running turn. It reports whether one was running.
func (t *TuiIO) CancelLoop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelLoop != nil {
		t.cancelLoop()
		t.cancelLoop = nil
		return true
	}
	return false
}
