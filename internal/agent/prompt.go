package agent

import (
	"embed"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.md
var defaultPromptFS embed.FS

// promptSections are the section names in assembly order. Each name is a
// file "{name}.md" in the embedded prompts/ directory.
var promptSections = []string{
	"identity",
	"core",
	"tools",
	"communication",
	"safety",
	"errors",
}

// loadSystemPrompt assembles the system prompt from the embedded sections
// and user overrides. Override directories, later ones winning:
//
//	~/.config/agentcore/prompts/{section}.md
//	{gitRoot}/.agentcore/prompts/{section}.md
//	{cwd}/.agentcore/prompts/{section}.md
//
// An override file replaces the embedded section. An "_extra.md" in any
// override directory is appended after all sections.
func loadSystemPrompt(cwd string) string {
	overrideDirs := promptOverrideDirs(cwd, findGitRoot(cwd))

	var sections []string
	for _, name := range promptSections {
		if content := loadPromptSection(name, overrideDirs); content != "" {
			sections = append(sections, content)
		}
	}
	result := strings.Join(sections, "\n\n")

	for _, dir := range overrideDirs {
		if extra := readFileString(filepath.Join(dir, "_extra.md")); extra != "" {
			result += "\n\n" + extra
		}
	}
	return result
}

// loadPromptSection returns the highest-priority override of a section,
// or the embedded default.
func loadPromptSection(name string, overrideDirs []string) string {
	filename := name + ".md"
	for i := len(overrideDirs) - 1; i >= 0; i-- {
		if content := readFileString(filepath.Join(overrideDirs[i], filename)); content != "" {
			return content
		}
	}
	data, err := defaultPromptFS.ReadFile("prompts/" + filename)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// promptOverrideDirs returns the existing override directories, lowest
// priority first.
func promptOverrideDirs(cwd, gitRoot string) []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		abs, err := filepath.Abs(dir)
		if err != nil || seen[abs] {
			return
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return
		}
		seen[abs] = true
		dirs = append(dirs, abs)
	}

	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".config", "agentcore", "prompts"))
	}
	if gitRoot != "" && gitRoot != cwd {
		add(filepath.Join(gitRoot, ".agentcore", "prompts"))
	}
	add(filepath.Join(cwd, ".agentcore", "prompts"))
	return dirs
}

// buildSystemPrompt returns the full system prompt and, separately, the
// project tree it embeds. A non-empty base replaces the section files.
func buildSystemPrompt(base, root string) (prompt, tree string) {
	if root == "" {
		root, _ = os.Getwd()
	}
	if base == "" {
		base = loadSystemPrompt(root)
	}
	prompt = base + loadProjectContext(root)

	tree = projectTree(root, projectTreeDepth)
	if tree != "" {
		prompt += "\n\n<project_structure>\n" + tree + "</project_structure>"
	}
	return prompt, tree
}

// readFileString returns a file's trimmed content, or "" if unreadable.
func readFileString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
