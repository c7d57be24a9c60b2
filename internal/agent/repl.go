package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aictl/agentcore/internal/provider"
	"github.com/aictl/agentcore/internal/session"
)

// loopCanceller is implemented by front ends that can interrupt a turn.
type loopCanceller interface {
	SetLoopCancel(cancel context.CancelFunc)
	ClearLoopCancel()
}

// Chat runs the interactive loop until the input ends, /quit, or ctx is
// canceled.
func (a *Agent) Chat(ctx context.Context) error {
	for {
		input, err := a.io.ReadInput()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			handled, quit := a.handleSlashCommand(ctx, input)
			if quit {
				return nil
			}
			if handled {
				continue
			}
		}

		a.io.UserMessage(input)
		a.turn(ctx, input)
		if ctx.Err() != nil {
			a.io.SystemMessage("\nInterrupted.")
			return ctx.Err()
		}
	}
}

// turn runs one input with a per-turn cancel the front end can trigger.
func (a *Agent) turn(ctx context.Context, input string) Result {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if lc, ok := a.io.(loopCanceller); ok {
		lc.SetLoopCancel(cancel)
		defer lc.ClearLoopCancel()
	}

	res := a.Run(turnCtx, input)
	switch res.State {
	case StateFailed:
		a.io.Error(res.Text)
	case StateStoppedByUser, StateStoppedMaxIterations:
		a.io.SystemMessage(res.Text)
	}
	return res
}

// handleSlashCommand runs a built-in or custom command. It returns
// (handled, quit); unknown commands are sent to the model as input.
func (a *Agent) handleSlashCommand(ctx context.Context, input string) (bool, bool) {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		a.io.SystemMessage("Bye.")
		return true, true
	case "/help":
		a.io.SystemMessage(helpText)
	case "/usage":
		a.io.SystemMessage(a.tracker.Report())
	case "/compact":
		if err := a.Compact(ctx); err != nil {
			a.io.Error("Compact failed: " + err.Error())
		}
	case "/compact-last":
		a.handleCompactLast(arg)
	case "/snapshot":
		a.handleSnapshot(arg)
	case "/snapshots":
		a.handleSnapshots()
	case "/resume":
		a.handleResume(arg)
	case "/permissions":
		a.io.SystemMessage(a.formatPermissions())
	case "/reset-permissions":
		a.gate.Reset()
		a.io.SystemMessage("Permissions reset. Every tool will ask again.")
	case "/files":
		a.io.SystemMessage(a.formatFiles())
	case "/history":
		a.io.SystemMessage(formatHistory(a.session.History.Snapshot(false)))
	case "/clear":
		a.session.History.Clear()
		a.io.SystemMessage("History cleared.")
	case "/commands":
		a.io.SystemMessage(formatCommandList(a.commands))
	default:
		custom, ok := a.commands[strings.TrimPrefix(cmd, "/")]
		if !ok {
			return false, false
		}
		prompt, err := renderCommand(custom, arg)
		if err != nil {
			a.io.Error(err.Error())
			return true, false
		}
		a.io.UserMessage(input)
		a.turn(ctx, prompt)
	}
	return true, false
}

const helpText = `Available commands:
  /help                    Show this help message
  /usage                   Show token usage per budget category
  /compact                 Compact history now
  /compact-last <n> <text> Replace the last n messages with a note
  /snapshot [file]         Save a session snapshot (and write it to file)
  /snapshot delete <id>    Delete a saved snapshot
  /snapshots               List saved snapshots
  /resume <id>             Restore the transcript of a saved snapshot
  /permissions             Show standing allow/deny decisions
  /reset-permissions       Forget all allow/deny decisions
  /files                   Show files touched in this session
  /history                 Show message history
  /commands                List custom commands
  /clear                   Clear message history
  /quit                    Exit`

func (a *Agent) handleCompactLast(arg string) {
	fields := strings.SplitN(arg, " ", 2)
	n, err := strconv.Atoi(fields[0])
	if err != nil || len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		a.io.SystemMessage("Usage: /compact-last <n> <replacement text>")
		return
	}
	if err := a.session.History.TruncateLast(n, strings.TrimSpace(fields[1])); err != nil {
		a.io.Error(fmt.Sprintf("compact-last: %v", err))
		return
	}
	a.io.SystemMessage(fmt.Sprintf("Replaced the last %d messages.", n))
}

func (a *Agent) handleSnapshot(arg string) {
	if fields := strings.Fields(arg); len(fields) > 0 && fields[0] == "delete" {
		a.handleSnapshotDelete(fields[1:])
		return
	}
	path := arg
	snap := a.Snapshot()
	if path != "" {
		if err := snap.WriteFile(path); err != nil {
			a.io.Error(err.Error())
			return
		}
		a.io.SystemMessage("Snapshot written to " + path)
	}
	if a.store == nil {
		if path == "" {
			a.io.SystemMessage("No snapshot store configured; use /snapshot <file>.")
		}
		return
	}
	rec := &session.Record{
		SessionID: a.session.ID,
		Snapshot:  snap,
		Messages:  a.session.History.Snapshot(false),
	}
	if err := a.store.Save(rec); err != nil {
		a.io.Error("Save snapshot: " + err.Error())
		return
	}
	a.io.SystemMessage(fmt.Sprintf("Snapshot saved: %s (%d messages)", shortID(rec.ID), len(rec.Messages)))
}

func (a *Agent) handleSnapshotDelete(args []string) {
	if len(args) != 1 {
		a.io.SystemMessage("Usage: /snapshot delete <id>")
		return
	}
	id, err := a.findRecord(args[0])
	if err != nil {
		a.io.Error("Delete snapshot: " + err.Error())
		return
	}
	if err := a.store.Delete(id); err != nil {
		a.io.Error("Delete snapshot: " + err.Error())
		return
	}
	a.io.SystemMessage("Snapshot deleted: " + shortID(id))
}

// handleResume swaps the current transcript for a saved one. The active
// file list comes back with it; permissions and the call log do not.
func (a *Agent) handleResume(arg string) {
	if arg == "" {
		a.io.SystemMessage("Usage: /resume <id>")
		return
	}
	id, err := a.findRecord(arg)
	if err != nil {
		a.io.Error("Resume: " + err.Error())
		return
	}
	rec, err := a.store.Load(id)
	if err != nil {
		a.io.Error("Resume: " + err.Error())
		return
	}

	a.mu.Lock()
	a.activeFiles = nil
	if rec.Snapshot != nil {
		a.activeFiles = append(a.activeFiles, rec.Snapshot.ActiveFiles...)
	}
	a.mu.Unlock()
	a.session.History.Restore(rec.Messages)

	a.logger.Info("session resumed", "snapshot", rec.ID, "from_session", rec.SessionID, "messages", len(rec.Messages))
	a.io.SystemMessage(fmt.Sprintf("Resumed snapshot %s (%d messages)", shortID(rec.ID), len(rec.Messages)))
}

// findRecord resolves a full or shortened snapshot ID.
func (a *Agent) findRecord(prefix string) (string, error) {
	if a.store == nil {
		return "", errors.New("no snapshot store configured")
	}
	infos, err := a.store.List()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, info := range infos {
		if info.ID == prefix {
			return info.ID, nil
		}
		if strings.HasPrefix(info.ID, prefix) {
			matches = append(matches, info.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", session.ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("ambiguous snapshot id %q matches %d snapshots", prefix, len(matches))
}

func (a *Agent) handleSnapshots() {
	if a.store == nil {
		a.io.SystemMessage("No snapshot store configured.")
		return
	}
	infos, err := a.store.List()
	if err != nil {
		a.io.Error("List snapshots: " + err.Error())
		return
	}
	if len(infos) == 0 {
		a.io.SystemMessage("No saved snapshots.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Saved snapshots (%d):\n", len(infos))
	for i, info := range infos {
		if i >= 20 {
			fmt.Fprintf(&b, "  ... and %d more\n", len(infos)-20)
			break
		}
		fmt.Fprintf(&b, "  %s  %s  %d msgs  %d files  %s\n",
			shortID(info.ID),
			info.CreatedAt.Format("2006-01-02 15:04"),
			info.Messages,
			info.ActiveFiles,
			info.ProjectRoot)
	}
	a.io.SystemMessage(strings.TrimRight(b.String(), "\n"))
}

func (a *Agent) formatPermissions() string {
	allowed, denied := a.gate.Allowed(), a.gate.Denied()
	if len(allowed) == 0 && len(denied) == 0 {
		return "No standing permissions."
	}
	var b strings.Builder
	if len(allowed) > 0 {
		b.WriteString("Always allowed:\n")
		for _, s := range allowed {
			b.WriteString("  " + s + "\n")
		}
	}
	if len(denied) > 0 {
		b.WriteString("Denied (will ask again):\n")
		for _, s := range denied {
			b.WriteString("  " + s + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Agent) formatFiles() string {
	files := a.ActiveFiles()
	var b strings.Builder
	if len(files) == 0 {
		b.WriteString("No active files.")
	} else {
		b.WriteString("Active files:\n  " + strings.Join(files, "\n  "))
	}
	if a.changes != nil {
		if s := a.changes.Summary(); s != "" {
			b.WriteString("\n\n" + s)
		}
	}
	return b.String()
}

func formatHistory(messages []provider.Message) string {
	if len(messages) == 0 {
		return "No history."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "=== History (%d messages) ===\n", len(messages))
	for i, msg := range messages {
		fmt.Fprintf(&b, "[%d] %s", i, msg.Role)
		if msg.ToolCallID != "" {
			status := "ok"
			if msg.IsError {
				status = "err"
			}
			fmt.Fprintf(&b, " (%s, %s)", msg.ToolCallID, status)
		}
		fmt.Fprintf(&b, ": %s\n", truncate(strings.ReplaceAll(msg.Content, "\n", " "), 100))
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&b, "    tool_call %s: %s(%s)\n", tc.ID, tc.Name, truncate(string(tc.Arguments), 60))
		}
	}
	b.WriteString("===")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
