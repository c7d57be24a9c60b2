package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aictl/agentcore/internal/budget"
	"github.com/aictl/agentcore/internal/clock"
	"github.com/aictl/agentcore/internal/config"
	"github.com/aictl/agentcore/internal/permission"
	"github.com/aictl/agentcore/internal/provider"
	"github.com/aictl/agentcore/internal/session"
	"github.com/aictl/agentcore/internal/tools"
	"github.com/aictl/agentcore/internal/tui"
)

// fakeModel replays scripted responses. Once the script is exhausted the
// last response repeats; an empty script answers "done".
type fakeModel struct {
	mu        sync.Mutex
	responses []*provider.Response
	errs      []error
	chatCalls int
	seen      [][]provider.Message
	prompt    string

	compress      func(req provider.CompressRequest) (*provider.CompressResult, error)
	compressCalls int
}

func (f *fakeModel) ChatWithTools(_ context.Context, msgs []provider.Message, _ []provider.ToolSchema) (*provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.chatCalls
	f.chatCalls++
	f.seen = append(f.seen, msgs)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.responses) == 0 {
		return &provider.Response{Content: "done"}, nil
	}
	return f.responses[min(i, len(f.responses)-1)], nil
}

func (f *fakeModel) Compress(_ context.Context, req provider.CompressRequest) (*provider.CompressResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compressCalls++
	if f.compress == nil {
		return nil, fmt.Errorf("compress not scripted")
	}
	return f.compress(req)
}

func (f *fakeModel) SetSystemPrompt(s string) { f.prompt = s }

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

// scriptedConfirmer answers with actions in order, then AllowOnce.
type scriptedConfirmer struct {
	actions []permission.Action
	reqs    []permission.Request
}

func (s *scriptedConfirmer) Confirm(req permission.Request) permission.Action {
	s.reqs = append(s.reqs, req)
	if len(s.actions) == 0 {
		return permission.AllowOnce
	}
	a := s.actions[0]
	s.actions = s.actions[1:]
	return a
}

type echoArgs struct {
	Text string `json:"text"`
}

type touchArgs struct {
	Path string `json:"path"`
}

type bigArgs struct {
	Lines int `json:"lines"`
}

type testEnv struct {
	agent      *Agent
	model      *fakeModel
	confirmer  *scriptedConfirmer
	clock      *clock.Fake
	io         *tui.BufferIO
	dispatched []string
}

func (e *testEnv) history() []provider.Message {
	return e.agent.Session().History.Snapshot(false)
}

func testTools(env *testEnv) []tools.Registration {
	return []tools.Registration{
		tools.Define(tools.Definition[echoArgs]{
			Name:        "echo",
			Description: "Echo text back.",
			Category:    tools.CategoryAgent,
			New: func(tools.Deps) (tools.Handler[echoArgs], error) {
				return func(_ context.Context, a echoArgs) (tools.ToolResult, error) {
					env.dispatched = append(env.dispatched, "echo:"+a.Text)
					return tools.ToolResult{Content: "echo: " + a.Text}, nil
				}, nil
			},
		}),
		tools.Define(tools.Definition[touchArgs]{
			Name:          "touch",
			Description:   "Pretend to touch a file.",
			Category:      tools.CategoryFilesystem,
			FileOperation: true,
			New: func(tools.Deps) (tools.Handler[touchArgs], error) {
				return func(_ context.Context, a touchArgs) (tools.ToolResult, error) {
					env.dispatched = append(env.dispatched, "touch:"+a.Path)
					return tools.ToolResult{Content: "touched " + a.Path}, nil
				}, nil
			},
		}),
		tools.Define(tools.Definition[bigArgs]{
			Name:        "big",
			Description: "Produce many lines.",
			Category:    tools.CategoryAgent,
			New: func(tools.Deps) (tools.Handler[bigArgs], error) {
				return func(_ context.Context, a bigArgs) (tools.ToolResult, error) {
					env.dispatched = append(env.dispatched, "big")
					var b strings.Builder
					for i := range a.Lines {
						fmt.Fprintf(&b, "line %04d of generated output\n", i)
					}
					return tools.ToolResult{Content: b.String()}, nil
				}, nil
			},
		}),
	}
}

// newTestEnv builds an agent over the test tools. tune adjusts the budget
// before the tracker is created.
func newTestEnv(t *testing.T, model *fakeModel, tune func(*config.BudgetConfig), opts ...Option) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := config.DefaultBudget()
	if tune != nil {
		tune(&cfg)
	}
	env := &testEnv{
		model:     model,
		confirmer: &scriptedConfirmer{},
		clock:     clock.NewFake(time.Unix(1_700_000_000, 0)),
		io:        tui.NewBufferIO(permission.Deny),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	catalog := tools.NewCatalog(tools.Deps{WorkDir: t.TempDir(), Logger: logger})
	for _, reg := range testTools(env) {
		if err := catalog.Register(reg); err != nil {
			t.Fatalf("register %s: %v", reg.Name(), err)
		}
	}
	tracker := budget.NewTracker(cfg, env.clock)

	base := []Option{
		WithIO(env.io),
		WithConfirmer(env.confirmer),
		WithLogger(logger),
		WithProjectRoot(t.TempDir()),
	}
	env.agent = New(model, catalog, tracker, session.New(nil), append(base, opts...)...)
	return env
}

func toolCall(id, name, args string) provider.ToolCall {
	return provider.ToolCall{ID: id, Name: name, Arguments: []byte(args)}
}

func withCalls(calls ...provider.ToolCall) *provider.Response {
	return &provider.Response{ToolCalls: calls}
}

func roles(msgs []provider.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = string(m.Role)
	}
	return strings.Join(parts, ",")
}
