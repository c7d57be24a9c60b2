package tui

import (
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

var errQuit = errors.New("tui closed")

// RunTUI starts the bubbletea program in alt-screen mode and runs agentFn
// concurrently. It blocks until the agent finishes or the user quits.
func RunTUI(agentFn func(io IO) error) error {
	inputCh := make(chan inputResult, 1)
	model := NewModel(inputCh)

	tuiIO := &TuiIO{inputCh: inputCh}
	model.cancelLoopFn = tuiIO.CancelLoop

	p := tea.NewProgram(model, tea.WithAltScreen())
	tuiIO.program = p

	var (
		agentErr error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		agentErr = agentFn(tuiIO)
		p.Send(agentDoneMsg{err: agentErr})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	// Unblock an agent still waiting on the screen that just closed.
	tuiIO.CancelConfirm()
	tuiIO.CancelLoop()
	select {
	case inputCh <- inputResult{err: errQuit}:
	default:
	}
	wg.Wait()
	return agentErr
}
