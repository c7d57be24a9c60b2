package agent

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// CommandArg is one positional argument of a custom command.
type CommandArg struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Default  string `yaml:"default"`
}

// CustomCommand is a prompt template loaded from a markdown file with YAML
// frontmatter, invoked as /<name> [args...].
type CustomCommand struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Args        []CommandArg `yaml:"args"`

	body string
}

// splitFrontmatter separates a leading "---" delimited YAML block from
// the body. Input without frontmatter is returned as the body.
func splitFrontmatter(s string) (front, body string, err error) {
	if !strings.HasPrefix(s, "---\n") {
		return "", s, nil
	}
	rest := s[len("---\n"):]
	if strings.HasPrefix(rest, "---") {
		return "", strings.TrimSpace(rest[len("---"):]), nil
	}
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", fmt.Errorf("unclosed frontmatter")
	}
	front = rest[:idx]
	body = strings.TrimSpace(rest[idx+len("\n---"):])
	return front, body, nil
}

// parseCommandFile loads one command. The name defaults to the file name.
func parseCommandFile(path string) (*CustomCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	front, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cmd := &CustomCommand{}
	if front != "" {
		if err := yaml.Unmarshal([]byte(front), cmd); err != nil {
			return nil, fmt.Errorf("%s: parse frontmatter: %w", path, err)
		}
	}
	if cmd.Name == "" {
		cmd.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	cmd.body = body
	return cmd, nil
}

// buildArgMap binds whitespace-separated words to the declared arguments.
// The last argument takes the remainder; missing ones take their default.
// "_args" holds the whole raw argument string.
func buildArgMap(cmd *CustomCommand, rawArgs string) map[string]string {
	fields := strings.Fields(rawArgs)
	data := map[string]string{"_args": strings.TrimSpace(rawArgs)}
	for i, arg := range cmd.Args {
		switch {
		case i >= len(fields):
			data[arg.Name] = arg.Default
		case i == len(cmd.Args)-1:
			data[arg.Name] = strings.Join(fields[i:], " ")
		default:
			data[arg.Name] = fields[i]
		}
	}
	return data
}

// renderCommand expands the command body with rawArgs.
func renderCommand(cmd *CustomCommand, rawArgs string) (string, error) {
	tmpl, err := template.New(cmd.Name).Parse(cmd.body)
	if err != nil {
		return "", fmt.Errorf("parse command %s: %w", cmd.Name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, buildArgMap(cmd, rawArgs)); err != nil {
		return "", fmt.Errorf("render command %s: %w", cmd.Name, err)
	}
	return buf.String(), nil
}

// commandDirs lists the command directories, lowest priority first.
func commandDirs(cwd, gitRoot string) []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "agentcore", "commands"))
	}
	if gitRoot != "" && gitRoot != cwd {
		dirs = append(dirs, filepath.Join(gitRoot, ".agentcore", "commands"))
	}
	return append(dirs, filepath.Join(cwd, ".agentcore", "commands"))
}

// loadCustomCommands reads every *.md command that applies to cwd. A
// command in a higher-priority directory replaces one of the same name.
// Unparsable files are skipped.
func loadCustomCommands(cwd string) map[string]*CustomCommand {
	commands := make(map[string]*CustomCommand)
	for _, dir := range commandDirs(cwd, findGitRoot(cwd)) {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.md"))
		for _, path := range matches {
			cmd, err := parseCommandFile(path)
			if err != nil {
				continue
			}
			commands[cmd.Name] = cmd
		}
	}
	return commands
}

func formatCommandList(commands map[string]*CustomCommand) string {
	if len(commands) == 0 {
		return "No custom commands found. Add markdown files to .agentcore/commands/."
	}
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Custom commands (%d):\n", len(commands))
	for _, name := range names {
		cmd := commands[name]
		usage := "/" + name
		for _, arg := range cmd.Args {
			if arg.Required {
				usage += " <" + arg.Name + ">"
			} else {
				usage += " [" + arg.Name + "]"
			}
		}
		fmt.Fprintf(&b, "  %-24s %s\n", usage, cmd.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
