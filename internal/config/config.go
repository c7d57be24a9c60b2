// Package config loads and validates agentcore configuration.
//
// Sources, highest priority first:
//  1. environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, AGENTCORE_*)
//  2. the file given by --config
//  3. ~/.config/agentcore/config.yaml
//
// CLI flags are applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds the settings for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// PermissionConfig configures how confirmation requests are resolved.
type PermissionConfig struct {
	// Mode: "interactive" (default) | "auto-approve" | "yolo".
	// auto-approve still asks for dangerous operations; yolo never asks.
	Mode string `yaml:"mode"`

	// AutoApproveTools are answered "allow once" without asking.
	AutoApproveTools []string `yaml:"auto_approve_tools"`

	// AllowedCommands is a bash prefix whitelist (e.g. "go test").
	AllowedCommands []string `yaml:"allowed_commands"`

	// DeniedCommands are always denied, even in yolo mode.
	DeniedCommands []string `yaml:"denied_commands"`

	// ConfirmTimeout bounds how long an interactive prompt may wait.
	// Zero disables the timeout. A timed-out prompt resolves to deny.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// CompressionConfig controls when and how far history is compacted.
type CompressionConfig struct {
	TriggerThreshold    float64 `yaml:"trigger_threshold"`
	MinIntervalSeconds  int     `yaml:"min_interval"`
	TargetAfterCompress float64 `yaml:"target_after_compress"`
}

// MinInterval returns the minimum spacing between two compactions.
func (c CompressionConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSeconds) * time.Second
}

// LimitsConfig caps individual payloads before they enter history.
type LimitsConfig struct {
	MaxFileTokens       int `yaml:"max_file_tokens"`
	MaxToolResultTokens int `yaml:"max_tool_result_tokens"`
}

// BudgetConfig is the token budget for one session. It is read once at
// session start and never mutated afterwards.
type BudgetConfig struct {
	MaxTokens   int                `yaml:"max_tokens"`
	Budgets     map[string]float64 `yaml:"budgets"`
	Compression CompressionConfig  `yaml:"compression"`
	Limits      LimitsConfig       `yaml:"limits"`
}

// Config is the full agentcore configuration.
type Config struct {
	// Provider is the active provider name ("anthropic", "openai", "deepseek", ...).
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	Providers map[string]*ProviderConfig `yaml:"providers"`

	Permissions PermissionConfig `yaml:"permissions"`

	// SystemPrompt replaces the built-in prompt when set.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxIterations bounds one agent turn (default 25).
	MaxIterations int `yaml:"max_iterations"`

	// MaxRetries is the number of retries the model client performs on
	// retryable transport errors. The agent loop itself never retries.
	MaxRetries int `yaml:"max_retries"`

	// ProjectRoot defaults to the working directory.
	ProjectRoot string `yaml:"project_root"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// EphemeralTags name the markup blocks stripped from older messages
	// before they are sent to the model.
	EphemeralTags []string `yaml:"ephemeral_tags"`

	// MCPConfig points at an mcp.json file; empty uses the default locations.
	MCPConfig string `yaml:"mcp_config"`

	Budget BudgetConfig `yaml:"budget"`
}

// DefaultBudget returns the stock 128k budget.
func DefaultBudget() BudgetConfig {
	return BudgetConfig{
		MaxTokens: 128000,
		Budgets: map[string]float64{
			"active_files":       0.25,
			"processed_files":    0.15,
			"project_structure":  0.05,
			"compressed_history": 0.30,
			"recent_messages":    0.25,
		},
		Compression: CompressionConfig{
			TriggerThreshold:    0.85,
			MinIntervalSeconds:  300,
			TargetAfterCompress: 0.5,
		},
		Limits: LimitsConfig{
			MaxFileTokens:       10000,
			MaxToolResultTokens: 5000,
		},
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:      "openai",
		MaxIterations: 25,
		MaxRetries:    2,
		LogLevel:      "info",
		Providers:     make(map[string]*ProviderConfig),
		Permissions: PermissionConfig{
			Mode: "interactive",
			AutoApproveTools: []string{
				"read_file", "glob", "grep", "list_dir", "todo_read", "todo_write",
			},
		},
		EphemeralTags: []string{"system-reminder", "ide_context", "editor_state"},
		Budget:        DefaultBudget(),
	}
}

// DefaultPath returns ~/.config/agentcore/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentcore", "config.yaml")
}

// Load reads the config file (missing file = defaults) and applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	fillBudgetDefaults(&cfg.Budget)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillBudgetDefaults fills zero values left by a partial budget section.
func fillBudgetDefaults(b *BudgetConfig) {
	def := DefaultBudget()
	if b.MaxTokens == 0 {
		b.MaxTokens = def.MaxTokens
	}
	if b.Budgets == nil {
		b.Budgets = def.Budgets
	}
	if b.Compression.TriggerThreshold == 0 {
		b.Compression.TriggerThreshold = def.Compression.TriggerThreshold
	}
	if b.Compression.TargetAfterCompress == 0 {
		b.Compression.TargetAfterCompress = def.Compression.TargetAfterCompress
	}
	if b.Limits.MaxFileTokens == 0 {
		b.Limits.MaxFileTokens = def.Limits.MaxFileTokens
	}
	if b.Limits.MaxToolResultTokens == 0 {
		b.Limits.MaxToolResultTokens = def.Limits.MaxToolResultTokens
	}
}

// Validate reports the first inconsistency in the configuration.
func (c *Config) Validate() error {
	b := c.Budget
	if b.MaxTokens <= 0 {
		return fmt.Errorf("budget.max_tokens must be positive, got %d", b.MaxTokens)
	}
	sum := 0.0
	for cat, ratio := range b.Budgets {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("budget.budgets.%s must be within [0,1], got %v", cat, ratio)
		}
		sum += ratio
	}
	if sum > 1.0001 {
		return fmt.Errorf("budget.budgets ratios sum to %.2f, must not exceed 1", sum)
	}
	if t := b.Compression.TriggerThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("budget.compression.trigger_threshold must be within (0,1], got %v", t)
	}
	if t := b.Compression.TargetAfterCompress; t <= 0 || t > 1 {
		return fmt.Errorf("budget.compression.target_after_compress must be within (0,1], got %v", t)
	}
	if b.Compression.MinIntervalSeconds < 0 {
		return fmt.Errorf("budget.compression.min_interval must not be negative")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	switch c.Permissions.Mode {
	case "", "interactive", "auto-approve", "yolo":
	default:
		return fmt.Errorf("permissions.mode %q is not one of interactive, auto-approve, yolo", c.Permissions.Mode)
	}
	return nil
}

// GetProviderConfig returns the named provider's settings, or an empty one.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

func applyEnvOverrides(cfg *Config) {
	// Provider selection first so generic keys land on the right entry.
	if v := os.Getenv("AGENTCORE_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry("anthropic").APIKey = v
	}
	if v := os.Getenv("AGENTCORE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("AGENTCORE_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Budget.MaxTokens = n
		}
	}
}
