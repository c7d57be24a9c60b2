package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aictl/agentcore/internal/config"
	"github.com/aictl/agentcore/internal/tools"
)

// resetFlags restores the package flag variables after a test.
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		cfgFile, autoApprove, modelFlag, providerFlag = "", false, "", ""
		maxTurnsFlag, useTUI, logLevelFlag, verbose = 0, false, "", false
	})
}

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "ANTHROPIC_API_KEY", "AGENTCORE_PROVIDER", "AGENTCORE_MODEL", "AGENTCORE_MAX_TOKENS"} {
		t.Setenv(k, "")
	}
}

func TestInitConfig_FlagsOverrideFile(t *testing.T) {
	isolateEnv(t)
	resetFlags(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "provider: deepseek\nmodel: deepseek-chat\nmax_iterations: 10\nproject_root: /srv/app\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgFile = path
	modelFlag = "deepseek-reasoner"
	autoApprove = true
	maxTurnsFlag = 4
	logLevelFlag = "debug"

	cfg, err := initConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "deepseek" || cfg.Model != "deepseek-reasoner" {
		t.Errorf("provider/model = %s/%s", cfg.Provider, cfg.Model)
	}
	if cfg.Permissions.Mode != "auto-approve" || cfg.MaxIterations != 4 || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ProjectRoot != "/srv/app" {
		t.Errorf("project root = %s", cfg.ProjectRoot)
	}
}

func TestInitConfig_DefaultsProjectRootToCwd(t *testing.T) {
	isolateEnv(t)
	resetFlags(t)
	cfg, err := initConfig()
	if err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if cfg.ProjectRoot != wd {
		t.Errorf("project root = %s, want %s", cfg.ProjectRoot, wd)
	}
}

func TestInitConfig_MissingExplicitFile(t *testing.T) {
	isolateEnv(t)
	resetFlags(t)
	cfgFile = filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := initConfig(); err == nil {
		t.Fatal("expected error for missing --config file")
	}
}

func TestBuildProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		pc       *config.ProviderConfig
		model    string
		wantName string
		wantErr  string
	}{
		{"anthropic", "anthropic", &config.ProviderConfig{APIKey: "k"}, "", "anthropic", ""},
		{"openai compatible", "deepseek", &config.ProviderConfig{APIKey: "k"}, "deepseek-chat", "deepseek", ""},
		{"missing key", "openai", &config.ProviderConfig{}, "gpt-4o", "", "API key not configured"},
		{"unknown provider", "acme", &config.ProviderConfig{APIKey: "k"}, "m", "", "unknown provider"},
		{"no model", "deepseek", &config.ProviderConfig{APIKey: "k"}, "", "", "no model configured"},
		{"openai default model", "openai", &config.ProviderConfig{APIKey: "k"}, "", "openai", ""},
		{"model from provider entry", "groq", &config.ProviderConfig{APIKey: "k", Model: "llama"}, "", "openai", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Provider = tt.provider
			cfg.Model = tt.model
			cfg.Providers[tt.provider] = tt.pc

			p, err := buildProvider(cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("name = %s, want %s", p.Name(), tt.wantName)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	resetFlags(t)
	cfg := config.DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "agentcore.log")
	cfg.LogLevel = "warn"

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	closeLog()

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "msg=shown k=v") {
		t.Errorf("log = %q", data)
	}

	cfg.LogLevel = "loud"
	if _, _, err := newLogger(cfg); err == nil {
		t.Error("invalid level should fail")
	}
}

func TestWriteTools(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectRoot = t.TempDir()
	catalog, err := newCatalog(cfg, nil, tools.NewFileTracker(), nil)
	if err != nil {
		t.Fatal(err)
	}
	descs := catalog.Discover()

	var buf bytes.Buffer
	if err := writeTools(&buf, descs, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"read_file", "bash", "read-only"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("table missing %q", want)
		}
	}

	buf.Reset()
	if err := writeTools(&buf, descs, true); err != nil {
		t.Fatal(err)
	}
	var decoded []tools.Descriptor
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(descs) || decoded[0].Schema == nil {
		t.Errorf("decoded %d descriptors", len(decoded))
	}
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := newVersionCmd("1.2.3", "abc", "today")
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)
	if got := buf.String(); got != "agentcore version 1.2.3 (commit: abc, built: today)\n" {
		t.Errorf("version = %q", got)
	}
}

func TestExitError(t *testing.T) {
	var target exitError
	err := error(exitError(3))
	if !errors.As(err, &target) || target != 3 || err.Error() != "exit status 3" {
		t.Errorf("exitError = %v", err)
	}
}
