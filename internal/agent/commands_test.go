package agent

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantFront string
		wantBody  string
		wantErr   bool
	}{
		{"none", "just a body", "", "just a body", false},
		{"full", "---\nname: x\n---\nBody here\n", "name: x", "Body here", false},
		{"empty", "---\n---\nBody", "", "Body", false},
		{"unclosed", "---\nname: x\nBody", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			front, body, err := splitFrontmatter(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if front != tt.wantFront || body != tt.wantBody {
				t.Errorf("got (%q, %q)", front, body)
			}
		})
	}
}

func TestParseCommandFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.md")
	writeFile(t, path, "---\ndescription: Deploy a service\nargs:\n  - name: env\n    required: true\n  - name: note\n    default: none\n---\nDeploy to {{.env}} ({{.note}}).")

	cmd, err := parseCommandFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Name != "deploy" || cmd.Description != "Deploy a service" || len(cmd.Args) != 2 {
		t.Errorf("cmd = %+v", cmd)
	}
	if !cmd.Args[0].Required || cmd.Args[1].Default != "none" {
		t.Errorf("args = %+v", cmd.Args)
	}

	bad := filepath.Join(dir, "bad.md")
	writeFile(t, bad, "---\nargs: [unclosed\n---\nbody")
	if _, err := parseCommandFile(bad); err == nil {
		t.Error("invalid YAML should fail")
	}
}

func TestRenderCommand(t *testing.T) {
	cmd := &CustomCommand{
		Name: "deploy",
		Args: []CommandArg{{Name: "env", Required: true}, {Name: "note", Default: "none"}},
		body: "Deploy to {{.env}} ({{.note}}). Raw: {{._args}}",
	}
	tests := []struct {
		args string
		want string
	}{
		{"prod", "Deploy to prod (none). Raw: prod"},
		{"prod ship it now", "Deploy to prod (ship it now). Raw: prod ship it now"},
		{"", "Deploy to  (none). Raw: "},
	}
	for _, tt := range tests {
		got, err := renderCommand(cmd, tt.args)
		if err != nil {
			t.Fatalf("render %q: %v", tt.args, err)
		}
		if got != tt.want {
			t.Errorf("render %q = %q, want %q", tt.args, got, tt.want)
		}
	}

	broken := &CustomCommand{Name: "broken", body: "{{.x"}
	if _, err := renderCommand(broken, ""); err == nil {
		t.Error("bad template should fail")
	}
}

func TestLoadCustomCommands_ProjectOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := t.TempDir()

	writeFile(t, filepath.Join(home, ".config", "agentcore", "commands", "review.md"), "---\ndescription: global\n---\nglobal")
	writeFile(t, filepath.Join(home, ".config", "agentcore", "commands", "test.md"), "run tests")
	writeFile(t, filepath.Join(cwd, ".agentcore", "commands", "review.md"), "---\ndescription: project\n---\nproject")
	writeFile(t, filepath.Join(cwd, ".agentcore", "commands", "broken.md"), "---\nunclosed")
	writeFile(t, filepath.Join(cwd, ".agentcore", "commands", "notes.txt"), "ignored")

	cmds := loadCustomCommands(cwd)
	if len(cmds) != 2 {
		t.Fatalf("commands = %v", cmds)
	}
	if cmds["review"].Description != "project" {
		t.Errorf("review = %+v", cmds["review"])
	}
	if cmds["test"] == nil || cmds["test"].body != "run tests" {
		t.Errorf("test = %+v", cmds["test"])
	}
}

func TestFormatCommandList(t *testing.T) {
	if got := formatCommandList(nil); !strings.HasPrefix(got, "No custom commands found") {
		t.Errorf("empty = %q", got)
	}
	got := formatCommandList(map[string]*CustomCommand{
		"zeta":   {Name: "zeta", Description: "last"},
		"deploy": {Name: "deploy", Description: "ship", Args: []CommandArg{{Name: "env", Required: true}, {Name: "note"}}},
	})
	lines := strings.Split(got, "\n")
	if lines[0] != "Custom commands (2):" || len(lines) != 3 {
		t.Fatalf("list = %q", got)
	}
	if !strings.Contains(lines[1], "/deploy <env> [note]") || !strings.Contains(lines[2], "/zeta") {
		t.Errorf("list = %q", got)
	}
}
