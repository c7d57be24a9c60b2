// Package tui renders an agent session: a plain line-oriented terminal
// mode, a full-screen bubbletea mode, and a silent buffer for scripted use.
package tui

import "github.com/aictl/agentcore/internal/permission"

// IO is everything the agent needs from its front end. Every
// implementation is also the session's interactive permission.Confirmer.
type IO interface {
	// ReadInput blocks for the next line of user input; io.EOF ends the session.
	ReadInput() (string, error)
	UserMessage(text string)

	ThinkingStart()
	TextDelta(delta string)
	TextDone(fullText string)

	ToolStart(id, name, params string)
	ToolDone(id, name, result string, isErr bool)

	Confirm(req permission.Request) permission.Action

	SystemMessage(text string)
	Error(msg string)

	// SetUsage reports the estimated context size against the budget.
	SetUsage(used, max int)
}

// truncate shortens s to maxLen bytes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
