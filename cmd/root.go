// Package cmd implements the agentcore command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aictl/agentcore/internal/config"
	"github.com/aictl/agentcore/internal/provider"
)

var (
	cfgFile      string
	autoApprove  bool
	modelFlag    string
	providerFlag string
	maxTurnsFlag int
	useTUI       bool
	logLevelFlag string
	verbose      bool
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	rootCmd := newRootCmd(version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(int(exit))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "AI coding agent with a token-budgeted context",
		Long: "agentcore is an interactive coding agent. It calls tools on your behalf,\n" +
			"asks before anything risky, and compacts its history to stay within the\n" +
			"model's context window.",
		// Running agentcore with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !cmd.Root().PersistentFlags().Changed("tui") && term.IsTerminal(int(os.Stdout.Fd())) {
				useTUI = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), version)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/agentcore/config.yaml)")
	flags.BoolVar(&autoApprove, "auto-approve", false, "skip confirmations except for dangerous operations")
	flags.StringVarP(&modelFlag, "model", "m", "", "override model")
	flags.StringVarP(&providerFlag, "provider", "p", "", "override provider")
	flags.IntVar(&maxTurnsFlag, "max-turns", 0, "max agent loop iterations per turn (0 = config value)")
	flags.BoolVar(&useTUI, "tui", false, "use the full-screen TUI (default: auto-detect terminal)")
	flags.StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&verbose, "verbose", "v", false, "also log to stderr")

	rootCmd.AddCommand(newRunCmd(version))
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	return rootCmd
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if autoApprove {
		cfg.Permissions.Mode = "auto-approve"
	}
	if maxTurnsFlag > 0 {
		cfg.MaxIterations = maxTurnsFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if cfg.ProjectRoot == "" {
		if cfg.ProjectRoot, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger writes text logs to the configured log file, and to stderr
// with --verbose. The returned close func releases the file.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("log_level %q: %w", cfg.LogLevel, err)
	}

	path := cfg.LogFile
	if path == "" {
		path = defaultLogPath()
	}
	var (
		writers []io.Writer
		closeFn = func() {}
	)
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closeFn = func() { f.Close() }
	}
	if verbose {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	return slog.New(handler), closeFn, nil
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "agentcore", "agentcore.log")
}

// providerBaseURLs maps OpenAI-compatible provider names to their base URLs.
var providerBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com",
	"minimax":  "https://api.minimax.chat/v1",
	"kimi":     "https://api.moonshot.cn/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"glm":      "https://open.bigmodel.cn/api/paas/v4/",
	"doubao":   "https://ark.cn-beijing.volces.com/api/v3",
	"groq":     "https://api.groq.com/openai/v1",
	"ollama":   "http://localhost:11434/v1",
}

// buildProvider creates the provider adapter named by the configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	if pc.APIKey == "" && name != "ollama" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY",
			name, name,
		)
	}

	model := cfg.Model
	if model == "" {
		model = pc.Model
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(pc.APIKey, pc.BaseURL, model), nil
	default:
		baseURL := pc.BaseURL
		if baseURL == "" {
			u, ok := providerBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		if model == "" && name != "openai" {
			return nil, fmt.Errorf("no model configured for provider %q; set model or providers.%s.model", name, name)
		}
		return provider.NewOpenAIProvider(pc.APIKey, baseURL, model), nil
	}
}

// exitError carries a process exit code through cobra. The command has
// already reported the failure.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
