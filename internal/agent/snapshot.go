package agent

import (
	"fmt"
	"strings"

	"github.com/aictl/agentcore/internal/session"
)

const (
	snapshotFixes      = 5
	snapshotErrorCalls = 3
	snapshotFiles      = 3
)

// Snapshot describes where the session stands so work can be resumed:
// the files in play, the last message, the most recent tool calls and
// suggested next steps.
func (a *Agent) Snapshot() *session.Snapshot {
	msgs := a.session.History.Snapshot(false)

	a.mu.Lock()
	calls := append([]session.AttemptedFix(nil), a.callLog...)
	files := append([]string(nil), a.activeFiles...)
	a.mu.Unlock()

	lastError := ""
	if len(msgs) > 0 {
		lastError = msgs[len(msgs)-1].Content
	}

	fixes := calls[max(len(calls)-snapshotFixes, 0):]
	if fixes == nil {
		fixes = []session.AttemptedFix{}
	}
	if files == nil {
		files = []string{}
	}

	return &session.Snapshot{
		Timestamp:      a.tracker.Now(),
		ProjectRoot:    a.projectRoot,
		ActiveFiles:    files,
		LastError:      lastError,
		AttemptedFixes: fixes,
		CompressedContextSummary: fmt.Sprintf("Files modified: %d; Tool calls: %d; Messages: %d",
			len(files), len(calls), len(msgs)),
		NextSteps: suggestNextSteps(calls, files),
	}
}

func suggestNextSteps(calls []session.AttemptedFix, files []string) []string {
	var steps []string
	for _, c := range calls[max(len(calls)-snapshotErrorCalls, 0):] {
		if strings.Contains(strings.ToLower(fmt.Sprint(c.Tool, c.Arguments)), "error") {
			steps = append(steps,
				"Review compilation errors manually",
				"Check if dependencies are properly configured")
			break
		}
	}
	if len(files) > 0 {
		steps = append(steps, "Review changes in: "+strings.Join(files[:min(len(files), snapshotFiles)], ", "))
	}
	if len(steps) == 0 {
		steps = append(steps, "Verify the changes and test manually")
	}
	return steps
}
