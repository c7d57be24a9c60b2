// Package agent drives a coding session: it runs the model/tool loop under
// the token budget and the permission gate, and hosts the interactive REPL
// on top of it.
package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aictl/agentcore/internal/budget"
	"github.com/aictl/agentcore/internal/permission"
	"github.com/aictl/agentcore/internal/provider"
	"github.com/aictl/agentcore/internal/session"
	"github.com/aictl/agentcore/internal/tools"
	"github.com/aictl/agentcore/internal/tui"
)

// ModelClient is the model the loop talks to. provider.Client implements it.
type ModelClient interface {
	ChatWithTools(ctx context.Context, msgs []provider.Message, schemas []provider.ToolSchema) (*provider.Response, error)
	Compress(ctx context.Context, req provider.CompressRequest) (*provider.CompressResult, error)
}

// systemPrompter is implemented by model clients that hold the system prompt.
type systemPrompter interface {
	SetSystemPrompt(s string)
}

// State is where a turn stands.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateStoppedByUser
	StateStoppedMaxIterations
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStoppedByUser:
		return "stopped_by_user"
	case StateStoppedMaxIterations:
		return "stopped_max_iterations"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of one turn. Text is always human-readable.
type Result struct {
	State      State
	Text       string
	Iterations int
	ModelCalls int
}

const defaultMaxIterations = 25

// Agent owns one session: its history, budget, permissions and tools.
// It is not safe for concurrent turns.
type Agent struct {
	model     ModelClient
	catalog   *tools.Catalog
	gate      *permission.Gate
	confirmer permission.Confirmer
	tracker   *budget.Tracker
	session   *session.Session
	io        tui.IO
	logger    *slog.Logger
	store     session.Store
	changes   *tools.FileTracker

	maxIterations int
	projectRoot   string
	basePrompt    string
	systemPrompt  string
	commands      map[string]*CustomCommand

	mu          sync.Mutex
	state       State
	activeFiles []string
	callLog     []session.AttemptedFix
	repeats     repeatWatcher
}

// Option configures an Agent.
type Option func(*Agent)

// WithIO sets the front end. The default is a silent buffer that denies
// every confirmation.
func WithIO(io tui.IO) Option { return func(a *Agent) { a.io = io } }

// WithConfirmer overrides who answers confirmation requests; the default
// is the IO.
func WithConfirmer(c permission.Confirmer) Option { return func(a *Agent) { a.confirmer = c } }

// WithGate shares a gate instead of creating one from the catalog.
func WithGate(g *permission.Gate) Option { return func(a *Agent) { a.gate = g } }

func WithLogger(l *slog.Logger) Option { return func(a *Agent) { a.logger = l } }

func WithMaxIterations(n int) Option { return func(a *Agent) { a.maxIterations = n } }

// WithProjectRoot sets the directory whose notes and layout go into the
// system prompt.
func WithProjectRoot(root string) Option { return func(a *Agent) { a.projectRoot = root } }

// WithSystemPrompt replaces the built-in prompt sections.
func WithSystemPrompt(s string) Option { return func(a *Agent) { a.basePrompt = s } }

// WithStore enables /snapshot persistence and /snapshots.
func WithStore(s session.Store) Option { return func(a *Agent) { a.store = s } }

// WithFileTracker enables /files.
func WithFileTracker(ft *tools.FileTracker) Option { return func(a *Agent) { a.changes = ft } }

// New creates an agent for sess. The system prompt is assembled here and
// handed to model when it can hold one; the project tree is counted into
// the project_structure budget.
func New(model ModelClient, catalog *tools.Catalog, tracker *budget.Tracker, sess *session.Session, opts ...Option) *Agent {
	a := &Agent{
		model:         model,
		catalog:       catalog,
		tracker:       tracker,
		session:       sess,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.io == nil {
		a.io = tui.NewBufferIO(permission.Deny)
	}
	if a.confirmer == nil {
		a.confirmer = a.io
	}
	if a.gate == nil {
		a.gate = permission.NewGate(catalog)
	}
	if a.maxIterations <= 0 {
		a.maxIterations = defaultMaxIterations
	}

	prompt, tree := buildSystemPrompt(a.basePrompt, a.projectRoot)
	a.systemPrompt = prompt
	tracker.UpdateUsage(budget.ProjectStructure, budget.CountTokens(tree))
	if sp, ok := model.(systemPrompter); ok {
		sp.SetSystemPrompt(prompt)
	}
	if a.projectRoot != "" {
		a.commands = loadCustomCommands(a.projectRoot)
	}

	sess.History.OnChange(a.recount)
	a.recount(sess.History.Snapshot(false))
	return a
}

// State reports the state of the current or last turn.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Session returns the agent's session.
func (a *Agent) Session() *session.Session { return a.session }

// Gate returns the agent's permission gate.
func (a *Agent) Gate() *permission.Gate { return a.gate }

// Tracker returns the agent's budget tracker.
func (a *Agent) Tracker() *budget.Tracker { return a.tracker }

// SystemPrompt returns the assembled system prompt.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// ActiveFiles returns the paths touched by file operations, in first-use
// order.
func (a *Agent) ActiveFiles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.activeFiles...)
}

func (a *Agent) trackActiveFile(tool string, args map[string]any) {
	if !a.catalog.IsFileOperation(tool) {
		return
	}
	path, _ := args["path"].(string)
	if path == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.activeFiles {
		if p == path {
			return
		}
	}
	a.activeFiles = append(a.activeFiles, path)
}

func (a *Agent) recordCall(tool string, args map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callLog = append(a.callLog, session.AttemptedFix{Tool: tool, Arguments: args})
}

// recount splits the history across the budget categories: compaction
// summaries are compressed_history, results of file operations are
// active_files, and everything else is recent_messages.
func (a *Agent) recount(msgs []provider.Message) {
	fileCalls := make(map[string]bool)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			if a.catalog.IsFileOperation(tc.Name) {
				fileCalls[tc.ID] = true
			}
		}
	}

	var compressed, files, recent int
	for _, m := range msgs {
		n := budget.CountMessages([]provider.Message{m})
		switch {
		case session.IsCompressedSummary(m):
			compressed += n
		case m.Role == provider.RoleTool && fileCalls[m.ToolCallID]:
			files += n
		default:
			recent += n
		}
	}
	a.tracker.UpdateUsage(budget.CompressedHistory, compressed)
	a.tracker.UpdateUsage(budget.ActiveFiles, files)
	a.tracker.UpdateUsage(budget.RecentMessages, recent)
	a.io.SetUsage(a.tracker.Usage().Total, a.tracker.MaxTokens())
}
