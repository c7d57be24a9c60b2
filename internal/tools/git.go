package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	gitTimeout     = 60 * time.Second
	maxGitLogLines = 200
)

var gitActions = []string{
	"status", "add", "commit", "reset", "branch", "checkout", "push", "pull",
	"fetch", "rebase", "stash", "cherry-pick", "log", "diff", "show", "clean",
}

type gitArgs struct {
	Action    string   `json:"action" jsonschema:"Git operation to run"`
	Operation string   `json:"operation,omitempty" jsonschema:"Sub-operation: branch list|create|delete|rename, stash push|pop|apply|drop|list, rebase start|continue|abort|skip, cherry-pick pick|continue|abort, checkout switch|create"`
	Ref       string   `json:"ref,omitempty" jsonschema:"Commit, branch or tag the action applies to"`
	Name      string   `json:"name,omitempty" jsonschema:"Branch name for branch operations (the old name when renaming, with the new name in ref)"`
	Files     []string `json:"files,omitempty" jsonschema:"Paths the action is limited to"`
	Message   string   `json:"message,omitempty" jsonschema:"Commit or stash message"`
	Mode      string   `json:"mode,omitempty" jsonschema:"Reset mode"`
	Remote    string   `json:"remote,omitempty" jsonschema:"Remote name (default origin)"`
	All       bool     `json:"all,omitempty" jsonschema:"add: stage everything; commit: stage tracked changes; branch: list remote branches; fetch: all remotes"`
	Force     bool     `json:"force,omitempty" jsonschema:"Force the operation (push --force, branch -D, clean -f)"`
	Staged    bool     `json:"staged,omitempty" jsonschema:"diff: show staged changes"`
	Count     int      `json:"count,omitempty" jsonschema:"log: number of commits (default 20)"`
}

// isDangerousGit reports git calls that rewrite or discard history or
// work: hard resets, force pushes, forced branch deletes, rebases,
// cherry-picks and clean.
func isDangerousGit(a gitArgs) bool {
	switch a.Action {
	case "reset":
		return a.Mode == "hard"
	case "push":
		return a.Force
	case "branch":
		return a.Operation == "delete" && a.Force
	case "rebase", "cherry-pick", "clean":
		return true
	}
	return false
}

// Git runs one git action in the project root.
func Git() Registration {
	return Define(Definition[gitArgs]{
		Name: "git",
		Description: "Run a git operation in the project repository. " +
			"Choose the action and pass its parameters; destructive operations always ask for confirmation.",
		Category:  CategoryGit,
		Dangerous: isDangerousGit,
		Signature: func(a gitArgs) string { return "git:" + a.Action },
		Refine: func(s *jsonschema.Schema) {
			setEnum(s, "action", gitActions...)
			setEnum(s, "mode", "soft", "mixed", "hard")
		},
		New: func(d Deps) (Handler[gitArgs], error) {
			return func(ctx context.Context, p gitArgs) (ToolResult, error) {
				argv, err := gitCommand(p)
				if err != nil {
					return ToolResult{Content: err.Error(), IsError: true}, nil
				}
				ctx, cancel := context.WithTimeout(ctx, gitTimeout)
				defer cancel()

				out, err := runGit(ctx, d.WorkDir, argv...)
				if err != nil {
					return ToolResult{Content: fmt.Sprintf("git %s error: %v\n%s", p.Action, err, out), IsError: true}, nil
				}
				if strings.TrimSpace(out) == "" {
					if p.Action == "diff" {
						return ToolResult{Content: "(no differences)"}, nil
					}
					return ToolResult{Content: fmt.Sprintf("git %s: done", p.Action)}, nil
				}
				if p.Action == "diff" || p.Action == "log" || p.Action == "show" {
					return limitLines(out, maxGitLogLines), nil
				}
				return ToolResult{Content: out}, nil
			}, nil
		},
	})
}

// gitCommand maps the typed arguments onto a git argv.
func gitCommand(p gitArgs) ([]string, error) {
	if !slices.Contains(gitActions, p.Action) {
		return nil, fmt.Errorf("unsupported git action: %q", p.Action)
	}
	remote := p.Remote
	if remote == "" {
		remote = "origin"
	}
	withFiles := func(argv []string) []string {
		if len(p.Files) > 0 {
			argv = append(argv, "--")
			argv = append(argv, p.Files...)
		}
		return argv
	}

	switch p.Action {
	case "status":
		return []string{"status", "--short", "--branch"}, nil
	case "add":
		if p.All {
			return []string{"add", "-A"}, nil
		}
		if len(p.Files) == 0 {
			return nil, fmt.Errorf("git add needs files or all=true")
		}
		return withFiles([]string{"add"}), nil
	case "commit":
		if p.Message == "" {
			return nil, fmt.Errorf("git commit needs a message")
		}
		argv := []string{"commit", "-m", p.Message}
		if p.All {
			argv = append(argv, "-a")
		}
		return argv, nil
	case "reset":
		argv := []string{"reset"}
		if p.Mode != "" && len(p.Files) == 0 {
			argv = append(argv, "--"+p.Mode)
		}
		if p.Ref != "" {
			argv = append(argv, p.Ref)
		}
		return withFiles(argv), nil
	case "branch":
		switch p.Operation {
		case "", "list":
			if p.All {
				return []string{"branch", "-a"}, nil
			}
			return []string{"branch"}, nil
		case "create":
			if p.Name == "" {
				return nil, fmt.Errorf("branch create needs a name")
			}
			argv := []string{"branch", p.Name}
			if p.Ref != "" {
				argv = append(argv, p.Ref)
			}
			return argv, nil
		case "delete":
			if p.Name == "" {
				return nil, fmt.Errorf("branch delete needs a name")
			}
			flag := "-d"
			if p.Force {
				flag = "-D"
			}
			return []string{"branch", flag, p.Name}, nil
		case "rename":
			if p.Name == "" || p.Ref == "" {
				return nil, fmt.Errorf("branch rename needs name and ref (the new name)")
			}
			return []string{"branch", "-m", p.Name, p.Ref}, nil
		}
	case "checkout":
		if len(p.Files) > 0 {
			argv := []string{"checkout"}
			if p.Ref != "" {
				argv = append(argv, p.Ref)
			}
			return withFiles(argv), nil
		}
		if p.Ref == "" {
			return nil, fmt.Errorf("git checkout needs a ref or files")
		}
		if p.Operation == "create" {
			return []string{"checkout", "-b", p.Ref}, nil
		}
		return []string{"checkout", p.Ref}, nil
	case "push":
		argv := []string{"push"}
		if p.Force {
			argv = append(argv, "--force-with-lease")
		}
		argv = append(argv, remote)
		if p.Ref != "" {
			argv = append(argv, p.Ref)
		}
		return argv, nil
	case "pull":
		argv := []string{"pull", remote}
		if p.Ref != "" {
			argv = append(argv, p.Ref)
		}
		return argv, nil
	case "fetch":
		if p.All {
			return []string{"fetch", "--all", "--prune"}, nil
		}
		return []string{"fetch", "--prune", remote}, nil
	case "rebase":
		switch p.Operation {
		case "", "start":
			if p.Ref == "" {
				return nil, fmt.Errorf("git rebase needs a ref")
			}
			return []string{"rebase", p.Ref}, nil
		case "continue", "abort", "skip":
			return []string{"rebase", "--" + p.Operation}, nil
		}
	case "stash":
		switch p.Operation {
		case "", "push":
			argv := []string{"stash", "push"}
			if p.Message != "" {
				argv = append(argv, "-m", p.Message)
			}
			return argv, nil
		case "pop", "apply", "drop":
			argv := []string{"stash", p.Operation}
			if p.Ref != "" {
				argv = append(argv, p.Ref)
			}
			return argv, nil
		case "list":
			return []string{"stash", "list"}, nil
		}
	case "cherry-pick":
		switch p.Operation {
		case "", "pick":
			if p.Ref == "" {
				return nil, fmt.Errorf("git cherry-pick needs a ref")
			}
			return append([]string{"cherry-pick"}, strings.Fields(p.Ref)...), nil
		case "continue", "abort":
			return []string{"cherry-pick", "--" + p.Operation}, nil
		}
	case "log":
		n := p.Count
		if n <= 0 {
			n = 20
		}
		argv := []string{"log", "--oneline", fmt.Sprintf("-n%d", n)}
		if p.Ref != "" {
			argv = append(argv, p.Ref)
		}
		return withFiles(argv), nil
	case "diff":
		argv := []string{"diff"}
		if p.Staged {
			argv = append(argv, "--staged")
		}
		if p.Ref != "" {
			argv = append(argv, p.Ref)
		}
		return withFiles(argv), nil
	case "show":
		ref := p.Ref
		if ref == "" {
			ref = "HEAD"
		}
		return []string{"show", ref}, nil
	case "clean":
		if p.Force {
			return []string{"clean", "-fd"}, nil
		}
		return []string{"clean", "-nd"}, nil
	}
	return nil, fmt.Errorf("unsupported %s operation: %q", p.Action, p.Operation)
}

// gitBin returns the path to the git executable.
func gitBin() string {
	if p, err := exec.LookPath("git"); err == nil {
		return p
	}
	for _, candidate := range []string{"/usr/bin/git", "/usr/local/bin/git", "/opt/homebrew/bin/git"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "git"
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, gitBin(), args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func limitLines(out string, max int) ToolResult {
	lines := strings.Split(out, "\n")
	if len(lines) <= max {
		return ToolResult{Content: out}
	}
	content := strings.Join(lines[:max], "\n") +
		fmt.Sprintf("\n[Truncated: showing %d of %d lines]", max, len(lines))
	return ToolResult{Content: content, Truncated: true}
}
