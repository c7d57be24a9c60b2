package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aictl/agentcore/internal/budget"
	"github.com/aictl/agentcore/internal/permission"
	"github.com/aictl/agentcore/internal/provider"
	"github.com/aictl/agentcore/internal/session"
	"github.com/aictl/agentcore/internal/tui"
)

func newChatEnv(t *testing.T, model *fakeModel, inputs ...string) *testEnv {
	t.Helper()
	bio := tui.NewBufferIO(permission.Deny, inputs...)
	env := newTestEnv(t, model, nil, WithIO(bio))
	env.io = bio
	return env
}

func hasMessage(msgs []string, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func TestChat_RunsTurnsUntilEOF(t *testing.T) {
	model := &fakeModel{responses: []*provider.Response{{Content: "one"}, {Content: "two"}}}
	env := newChatEnv(t, model, "first", "", "second")

	if err := env.agent.Chat(context.Background()); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if model.calls() != 2 {
		t.Errorf("model calls = %d", model.calls())
	}
	if got := roles(env.history()); got != "user,assistant,user,assistant" {
		t.Errorf("history roles = %s", got)
	}
}

func TestChat_QuitStopsReading(t *testing.T) {
	model := &fakeModel{}
	env := newChatEnv(t, model, "/quit", "never sent")

	if err := env.agent.Chat(context.Background()); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if model.calls() != 0 {
		t.Errorf("model called after /quit")
	}
}

func TestChat_ReportsEndings(t *testing.T) {
	model := &fakeModel{responses: []*provider.Response{withCalls(toolCall("c1", "echo", `{"text":"x"}`))}}
	env := newChatEnv(t, model, "go")
	env.confirmer.actions = []permission.Action{permission.Deny}

	if err := env.agent.Chat(context.Background()); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !hasMessage(env.io.SystemMessages(), stoppedMessage) {
		t.Errorf("system messages = %v", env.io.SystemMessages())
	}
}

func TestChat_UnknownSlashGoesToModel(t *testing.T) {
	model := &fakeModel{}
	env := newChatEnv(t, model, "/not-a-command please")
	if err := env.agent.Chat(context.Background()); err != nil {
		t.Fatal(err)
	}
	if model.calls() != 1 || env.history()[0].Content != "/not-a-command please" {
		t.Errorf("history = %+v", env.history())
	}
}

func TestSlashCommands(t *testing.T) {
	model := &fakeModel{responses: []*provider.Response{{Content: "answer"}}}
	env := newChatEnv(t, model)
	ctx := context.Background()
	env.agent.Run(ctx, "question")
	env.agent.Gate().RecordDecision("echo", nil, permission.AllowAlways)

	tests := []struct {
		input string
		want  string
	}{
		{"/help", "/compact-last <n> <text>"},
		{"/usage", "recent_messages"},
		{"/permissions", "Always allowed:\n  echo"},
		{"/files", "No active files."},
		{"/history", "[1] assistant: answer"},
		{"/commands", "No custom commands found"},
		{"/compact-last", "Usage: /compact-last"},
		{"/snapshots", "No snapshot store configured."},
		{"/resume", "Usage: /resume <id>"},
		{"/snapshot delete", "Usage: /snapshot delete <id>"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			before := len(env.io.SystemMessages())
			handled, quit := env.agent.handleSlashCommand(ctx, tt.input)
			if !handled || quit {
				t.Fatalf("handled = %v, quit = %v", handled, quit)
			}
			msgs := env.io.SystemMessages()[before:]
			if !hasMessage(msgs, tt.want) {
				t.Errorf("output %q does not contain %q", msgs, tt.want)
			}
		})
	}
}

func TestSlashCommands_Mutations(t *testing.T) {
	model := &fakeModel{responses: []*provider.Response{{Content: "a"}, {Content: "b"}}}
	env := newChatEnv(t, model)
	ctx := context.Background()
	env.agent.Run(ctx, "q1")
	env.agent.Run(ctx, "q2")

	env.agent.handleSlashCommand(ctx, "/compact-last 2 Earlier exchange summarized.")
	hist := env.history()
	if len(hist) != 3 || hist[2].Content != "Earlier exchange summarized." {
		t.Errorf("after compact-last = %+v", hist)
	}

	env.agent.handleSlashCommand(ctx, "/compact-last 9 too many")
	if errs := env.io.Errors(); len(errs) != 1 || !strings.Contains(errs[0], "cannot truncate 9 of 3") {
		t.Errorf("errors = %v", errs)
	}

	env.agent.Gate().RecordDecision("echo", nil, permission.AllowAlways)
	env.agent.handleSlashCommand(ctx, "/reset-permissions")
	if len(env.agent.Gate().Allowed()) != 0 {
		t.Error("permissions not reset")
	}

	env.agent.handleSlashCommand(ctx, "/clear")
	if env.agent.Session().History.Len() != 0 {
		t.Error("history not cleared")
	}
}

func TestSlashSnapshot_WritesFileAndStore(t *testing.T) {
	store, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	bio := tui.NewBufferIO(permission.Deny)
	env := newTestEnv(t, &fakeModel{}, nil, WithIO(bio), WithStore(store))
	env.io = bio
	ctx := context.Background()
	env.agent.Run(ctx, "hello")

	path := filepath.Join(t.TempDir(), "out", "snap.json")
	env.agent.handleSlashCommand(ctx, "/snapshot "+path)

	snap, err := session.ReadSnapshotFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.LastError != "done" {
		t.Errorf("last error = %q", snap.LastError)
	}

	infos, err := store.List()
	if err != nil || len(infos) != 1 || infos[0].Messages != 2 {
		t.Fatalf("store list = %+v, %v", infos, err)
	}
	rec, err := store.Load(infos[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.SessionID != env.agent.Session().ID || len(rec.Messages) != 2 {
		t.Errorf("record = %+v", rec)
	}

	env.agent.handleSlashCommand(ctx, "/snapshots")
	if !hasMessage(bio.SystemMessages(), "Saved snapshots (1):") {
		t.Errorf("system messages = %v", bio.SystemMessages())
	}
}

func TestSlashResumeAndDelete(t *testing.T) {
	store, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	saved := []provider.Message{
		{Role: provider.RoleUser, Content: "fix the parser"},
		{Role: provider.RoleAssistant, Content: "Done."},
	}
	rec := &session.Record{
		SessionID: "earlier",
		Snapshot:  &session.Snapshot{ActiveFiles: []string{"parser.go"}},
		Messages:  saved,
	}
	if err := store.Save(rec); err != nil {
		t.Fatal(err)
	}

	bio := tui.NewBufferIO(permission.Deny)
	env := newTestEnv(t, &fakeModel{}, nil, WithIO(bio), WithStore(store))
	env.io = bio
	ctx := context.Background()
	env.agent.Run(ctx, "unrelated")

	env.agent.handleSlashCommand(ctx, "/resume "+shortID(rec.ID))
	hist := env.history()
	if len(hist) != 2 || hist[0].Content != "fix the parser" || hist[1].Content != "Done." {
		t.Fatalf("history after resume = %+v", hist)
	}
	if files := env.agent.ActiveFiles(); len(files) != 1 || files[0] != "parser.go" {
		t.Errorf("active files = %v", files)
	}
	if got, want := env.agent.Tracker().Usage().RecentMessages, budget.CountMessages(saved); got != want {
		t.Errorf("recent usage = %d, want %d", got, want)
	}
	if !hasMessage(bio.SystemMessages(), "Resumed snapshot "+shortID(rec.ID)+" (2 messages)") {
		t.Errorf("system messages = %v", bio.SystemMessages())
	}

	env.agent.handleSlashCommand(ctx, "/resume nope")
	if errs := bio.Errors(); len(errs) != 1 || !strings.Contains(errs[0], "snapshot not found") {
		t.Errorf("errors = %v", errs)
	}

	env.agent.handleSlashCommand(ctx, "/snapshot delete "+shortID(rec.ID))
	if _, err := store.Load(rec.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Load after delete err = %v", err)
	}
	if !hasMessage(bio.SystemMessages(), "Snapshot deleted: "+shortID(rec.ID)) {
		t.Errorf("system messages = %v", bio.SystemMessages())
	}
}

func TestFindRecord_Ambiguous(t *testing.T) {
	store, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	for _, id := range []string{"abc-1", "abc-2"} {
		if err := store.Save(&session.Record{ID: id, Snapshot: &session.Snapshot{}}); err != nil {
			t.Fatal(err)
		}
	}
	env := newTestEnv(t, &fakeModel{}, nil, WithStore(store))

	if _, err := env.agent.findRecord("abc"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("prefix err = %v", err)
	}
	if id, err := env.agent.findRecord("abc-2"); err != nil || id != "abc-2" {
		t.Errorf("exact = %q, %v", id, err)
	}
}

func TestSlashCustomCommand(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".agentcore", "commands")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cmd := "---\ndescription: Review a file\nargs:\n  - name: file\n    required: true\n---\nReview {{.file}} carefully."
	if err := os.WriteFile(filepath.Join(dir, "review.md"), []byte(cmd), 0o644); err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{}
	bio := tui.NewBufferIO(permission.Deny, "/review main.go")
	env := newTestEnv(t, model, nil, WithIO(bio), WithProjectRoot(root))
	env.io = bio

	if err := env.agent.Chat(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := env.history()[0].Content; got != "Review main.go carefully." {
		t.Errorf("prompt = %q", got)
	}

	env.agent.handleSlashCommand(context.Background(), "/commands")
	if !hasMessage(bio.SystemMessages(), "/review <file>") {
		t.Errorf("system messages = %v", bio.SystemMessages())
	}
}

func TestFormatHistory(t *testing.T) {
	if got := formatHistory(nil); got != "No history." {
		t.Errorf("empty = %q", got)
	}
	got := formatHistory([]provider.Message{
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "echo", Arguments: []byte(`{"text":"hi"}`)}}},
		{Role: provider.RoleTool, ToolCallID: "c1", Content: "line1\nline2", IsError: true},
	})
	for _, want := range []string{"=== History (2 messages) ===", `tool_call c1: echo({"text":"hi"})`, "[1] tool (c1, err): line1 line2"} {
		if !strings.Contains(got, want) {
			t.Errorf("history missing %q:\n%s", want, got)
		}
	}
}

func TestShortIDAndTruncate(t *testing.T) {
	if shortID("0123456789") != "01234567" || shortID("abc") != "abc" {
		t.Error("shortID")
	}
	if truncate("hello world", 5) != "hello..." || truncate("hi", 5) != "hi" {
		t.Error("truncate")
	}
}
