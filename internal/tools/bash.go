package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	defaultBashTimeout = 120 * time.Second
	maxBashTimeout     = 600 * time.Second
	bgWarmupTimeout    = 10 * time.Second // background mode: return after this if still running
)

type bashArgs struct {
	Command         string `json:"command" jsonschema:"The shell command to execute"`
	Timeout         int    `json:"timeout,omitempty" jsonschema:"Timeout in seconds (default 120, max 600)"`
	RunInBackground bool   `json:"run_in_background,omitempty" jsonschema:"Start a long-running process, return its first 10 seconds of output and leave it running"`
}

var dangerousCommands = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*[rR][a-zA-Z]*f|\brm\s+-[a-zA-Z]*f[a-zA-Z]*[rR]`),
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*[rR][a-zA-Z]*\s+/(\s|\*|$)`),
	regexp.MustCompile(`\bchmod\s+-R\s+777\b`),
	regexp.MustCompile(`\bchown\s+-R\b`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};\s*:`),
	regexp.MustCompile(`(^|[;&|]\s*)sudo\b`),
}

// harmlessRedirects are stripped before matching so "2>/dev/null" stays safe.
var harmlessRedirects = regexp.MustCompile(`>\s*/dev/(null|stdout|stderr|tty)\b`)

// IsDangerousCommand reports shell commands that must be confirmed every
// time: recursive deletes, recursive permission changes, raw device
// writes, filesystem creation, fork bombs and sudo.
func IsDangerousCommand(cmd string) bool {
	cmd = harmlessRedirects.ReplaceAllString(cmd, "")
	for _, re := range dangerousCommands {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

// commandSignature scopes "allow always" to the program being run.
func commandSignature(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "bash"
	}
	return "bash:" + fields[0]
}

// Bash runs shell commands in the project root.
func Bash() Registration {
	return Define(Definition[bashArgs]{
		Name: "bash",
		Description: "Execute a shell command and return its combined stdout and stderr output. " +
			"For long-running processes (dev servers, watchers, etc.) that never exit, " +
			"set run_in_background=true to capture initial output and let the process continue.",
		Category:  CategoryExecutor,
		Dangerous: func(a bashArgs) bool { return IsDangerousCommand(a.Command) },
		Signature: func(a bashArgs) string { return commandSignature(a.Command) },
		New: func(d Deps) (Handler[bashArgs], error) {
			return func(ctx context.Context, p bashArgs) (ToolResult, error) {
				if p.Command == "" {
					return ToolResult{}, fmt.Errorf("command is required")
				}
				if looksLikeFileModification(p.Command) {
					d.Changes.Record("(bash) "+p.Command, "modified", "bash")
				}
				if p.RunInBackground {
					return runBackground(ctx, d.WorkDir, p.Command)
				}
				return runShell(ctx, d.WorkDir, p.Command, p.Timeout)
			}, nil
		},
	})
}

func runShell(ctx context.Context, dir, command string, timeoutSecs int) (ToolResult, error) {
	timeout := defaultBashTimeout
	if timeoutSecs > 0 {
		timeout = time.Duration(timeoutSecs) * time.Second
	}
	if timeout > maxBashTimeout {
		timeout = maxBashTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, shellBin(), "-c", command)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	result := string(out)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			secs := int(timeout.Seconds())
			return ToolResult{
				Content: fmt.Sprintf("Command timed out after %dm%ds\nOutput:\n%s", secs/60, secs%60, result),
				IsError: true,
			}, nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return ToolResult{}, fmt.Errorf("cancelled")
		}
		return ToolResult{
			Content: fmt.Sprintf("Exit error: %v\nOutput:\n%s", err, result),
			IsError: true,
		}, nil
	}
	if result == "" {
		result = "(no output)"
	}
	return ToolResult{Content: result}, nil
}

// runBackground starts the command detached, collects output for
// bgWarmupTimeout and leaves the process running if it has not exited.
func runBackground(ctx context.Context, dir, command string) (ToolResult, error) {
	// exec.Command (not CommandContext) so the process outlives the tool call
	cmd := exec.Command(shellBin(), "-c", command)
	cmd.Dir = dir

	var buf safeBuffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return ToolResult{Content: fmt.Sprintf("Failed to start: %v", err), IsError: true}, nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	warmup := time.NewTimer(bgWarmupTimeout)
	defer warmup.Stop()

	select {
	case err := <-done:
		if err != nil {
			return ToolResult{Content: fmt.Sprintf("Exit error: %v\nOutput:\n%s", err, buf.String()), IsError: true}, nil
		}
		return ToolResult{Content: buf.String()}, nil
	case <-warmup.C:
		note := fmt.Sprintf(
			"\n\n(Process still running in background, PID: %d. Output above captured during first %ds.)",
			cmd.Process.Pid, int(bgWarmupTimeout.Seconds()))
		return ToolResult{Content: buf.String() + note}, nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ToolResult{}, fmt.Errorf("cancelled")
	}
}

// safeBuffer is a bytes.Buffer safe for concurrent reads and writes.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// shellBin returns the user's preferred shell, falling back to bash then sh.
func shellBin() string {
	if s := os.Getenv("SHELL"); s != "" {
		if _, err := os.Stat(s); err == nil {
			return s
		}
	}
	if p, err := exec.LookPath("bash"); err == nil {
		return p
	}
	return "sh"
}
