package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aictl/agentcore/internal/tools"
)

const (
	maxFileBytes  = 8 * 1024
	maxTotalBytes = 16 * 1024

	projectTreeDepth   = 2
	projectTreeEntries = 200
)

// loadProjectContext collects the AGENTCORE.md / .agentcore/context.md
// notes that apply to cwd and formats them for the system prompt. It
// returns "" when there are none.
func loadProjectContext(cwd string) string {
	if cwd == "" {
		var err error
		if cwd, err = os.Getwd(); err != nil {
			return ""
		}
	}

	var sections []string
	totalBytes := 0
	for _, p := range candidatePaths(cwd, findGitRoot(cwd)) {
		if totalBytes >= maxTotalBytes {
			break
		}
		content := readContextFile(p)
		if content == "" {
			continue
		}
		if remaining := maxTotalBytes - totalBytes; len(content) > remaining {
			content = content[:remaining] + "\n[Truncated: context file too large]"
		}
		totalBytes += len(content)
		sections = append(sections, fmt.Sprintf("<!-- Source: %s -->\n%s", p, content))
	}

	if len(sections) == 0 {
		return ""
	}
	return "\n\n<project_context>\n" + strings.Join(sections, "\n\n") + "\n</project_context>"
}

// findGitRoot returns the repository root containing cwd, or "".
func findGitRoot(cwd string) string {
	cmd := exec.Command(gitExecutable(), "rev-parse", "--show-toplevel")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// gitExecutable returns the git binary path, checking common locations.
func gitExecutable() string {
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

// candidatePaths lists the note files to try, global first and the
// working directory last. Duplicates (cwd == gitRoot) are dropped.
func candidatePaths(cwd, gitRoot string) []string {
	seen := make(map[string]bool)
	var paths []string

	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		paths = append(paths, abs)
	}

	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".config", "agentcore", "context.md"))
		add(filepath.Join(home, ".config", "agentcore", "AGENTCORE.md"))
	}
	if gitRoot != "" && gitRoot != cwd {
		add(filepath.Join(gitRoot, ".agentcore", "context.md"))
		add(filepath.Join(gitRoot, "AGENTCORE.md"))
	}
	add(filepath.Join(cwd, ".agentcore", "context.md"))
	add(filepath.Join(cwd, "AGENTCORE.md"))
	return paths
}

// readContextFile returns a note file's content capped at maxFileBytes,
// or "" if it is missing or empty.
func readContextFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	if len(content) > maxFileBytes {
		content = content[:maxFileBytes] + "\n[Truncated: file exceeds 8KB limit]"
	}
	return content
}

// projectTree renders root to the given depth, directories first, one
// entry per line. VCS, dependency and cache directories are skipped. The
// listing stops after projectTreeEntries entries.
func projectTree(root string, depth int) string {
	if root == "" {
		return ""
	}
	var b strings.Builder
	count := 0
	var walk func(dir, indent string, level int)
	walk = func(dir, indent string, level int) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].IsDir() != entries[j].IsDir() {
				return entries[i].IsDir()
			}
			return entries[i].Name() < entries[j].Name()
		})
		for _, e := range entries {
			if count >= projectTreeEntries {
				return
			}
			name := e.Name()
			if e.IsDir() && tools.SkipDir(name) {
				continue
			}
			count++
			if e.IsDir() {
				fmt.Fprintf(&b, "%s%s/\n", indent, name)
				if level < depth {
					walk(filepath.Join(dir, name), indent+"  ", level+1)
				}
				continue
			}
			fmt.Fprintf(&b, "%s%s\n", indent, name)
		}
	}
	walk(root, "", 1)
	if count >= projectTreeEntries {
		b.WriteString("...\n")
	}
	return b.String()
}
