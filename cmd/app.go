package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aictl/agentcore/internal/agent"
	"github.com/aictl/agentcore/internal/budget"
	"github.com/aictl/agentcore/internal/clock"
	"github.com/aictl/agentcore/internal/config"
	"github.com/aictl/agentcore/internal/mcp"
	"github.com/aictl/agentcore/internal/permission"
	"github.com/aictl/agentcore/internal/provider"
	"github.com/aictl/agentcore/internal/session"
	"github.com/aictl/agentcore/internal/tools"
	"github.com/aictl/agentcore/internal/tui"
)

const mcpConnectTimeout = 30 * time.Second

// app is one fully wired agent and the resources it holds.
type app struct {
	agent   *agent.Agent
	catalog *tools.Catalog
	mcp     *mcp.Manager
	store   session.Store
}

func (a *app) Close() {
	if a.mcp != nil {
		a.mcp.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// newCatalog registers the built-in tools with session-scoped deps.
func newCatalog(cfg *config.Config, tracker *budget.Tracker, changes *tools.FileTracker, logger *slog.Logger) (*tools.Catalog, error) {
	catalog := tools.NewCatalog(tools.Deps{
		WorkDir:    cfg.ProjectRoot,
		Files:      tracker,
		Todos:      tools.NewTodoList(),
		Changes:    changes,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	})
	if err := tools.RegisterBuiltins(catalog); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return catalog, nil
}

// connectMCP starts the configured MCP servers and registers their tools.
// Servers that fail to connect are reported and skipped.
func connectMCP(ctx context.Context, cfg *config.Config, catalog *tools.Catalog, version string, ui tui.IO, logger *slog.Logger) *mcp.Manager {
	mcpCfg, err := mcp.LoadConfig(cfg.MCPConfig, cfg.ProjectRoot)
	if err != nil {
		ui.Error(fmt.Sprintf("mcp: %v", err))
		return nil
	}
	if len(mcpCfg.MCPServers) == 0 {
		return nil
	}

	mgr := mcp.NewManager(mcpCfg, version, logger)
	initCtx, cancel := context.WithTimeout(ctx, mcpConnectTimeout)
	defer cancel()
	for _, err := range mgr.ConnectAll(initCtx) {
		ui.SystemMessage(fmt.Sprintf("[mcp] warning: %v", err))
	}
	n, err := mcp.RegisterTools(mgr, catalog)
	if err != nil {
		ui.Error(fmt.Sprintf("mcp: %v", err))
	}
	if n > 0 {
		ui.SystemMessage(fmt.Sprintf("[mcp] registered %d tool(s)", n))
	}
	return mgr
}

// openStore opens the snapshot database. A store that cannot be opened
// disables persistence rather than the session.
func openStore(logger *slog.Logger) session.Store {
	path, err := session.DefaultDBPath()
	if err != nil {
		logger.Warn("snapshot store disabled", "error", err)
		return nil
	}
	store, err := session.NewSQLiteStore(path)
	if err != nil {
		logger.Warn("snapshot store disabled", "path", path, "error", err)
		return nil
	}
	return store
}

// newApp wires an agent that talks to ui.
func newApp(ctx context.Context, cfg *config.Config, version string, ui tui.IO, logger *slog.Logger) (*app, error) {
	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	client := provider.NewClient(p,
		provider.WithModel(cfg.Model),
		provider.WithMaxRetries(cfg.MaxRetries),
		provider.WithLogger(logger),
		provider.WithTextHandler(ui.TextDelta),
		provider.WithRetryHandler(func(attempt, limit int, delay time.Duration, err error) {
			ui.SystemMessage(fmt.Sprintf("Request failed (%v), retrying in %s (%d/%d)", err, delay.Round(time.Second), attempt, limit))
		}),
	)

	tracker := budget.NewTracker(cfg.Budget, clock.Real())
	changes := tools.NewFileTracker()
	catalog, err := newCatalog(cfg, tracker, changes, logger)
	if err != nil {
		return nil, err
	}

	a := &app{catalog: catalog}
	a.mcp = connectMCP(ctx, cfg, catalog, version, ui, logger)
	a.store = openStore(logger)

	confirmer := permission.NewPolicyConfirmer(cfg.Permissions,
		permission.NewTimeoutConfirmer(ui, cfg.Permissions.ConfirmTimeout, clock.Real()))

	opts := []agent.Option{
		agent.WithIO(ui),
		agent.WithConfirmer(confirmer),
		agent.WithLogger(logger),
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithProjectRoot(cfg.ProjectRoot),
		agent.WithSystemPrompt(cfg.SystemPrompt),
		agent.WithFileTracker(changes),
	}
	if a.store != nil {
		opts = append(opts, agent.WithStore(a.store))
	}
	a.agent = agent.New(client, catalog, tracker, session.New(cfg.EphemeralTags), opts...)

	logger.Info("agent ready",
		"provider", p.Name(),
		"model", client.Model(),
		"tools", len(catalog.Discover()),
		"max_tokens", cfg.Budget.MaxTokens,
		"project_root", cfg.ProjectRoot)
	return a, nil
}
