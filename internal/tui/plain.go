package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aictl/agentcore/internal/permission"
)

var (
	plainWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	plainToolStyle   = lipgloss.NewStyle().Bold(true)
	plainSystemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// PlainIO implements IO with line-oriented terminal output. It is used
// when the TUI is disabled or stdout is not a terminal.
type PlainIO struct {
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer
}

var _ IO = (*PlainIO)(nil)

// NewPlainIO creates a PlainIO on stdin, stdout and stderr.
func NewPlainIO() *PlainIO {
	return NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr)
}

// NewPlainIOWith creates a PlainIO on the given streams.
func NewPlainIOWith(in io.Reader, out, errOut io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errOut: errOut}
}

func (p *PlainIO) readLine() (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) ReadInput() (string, error) {
	fmt.Fprint(p.out, "\n> ")
	return p.readLine()
}

// UserMessage is a no-op: the user already sees what they typed.
func (p *PlainIO) UserMessage(_ string) {}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) TextDelta(delta string) {
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(_ string) {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) ToolStart(_, name, params string) {
	fmt.Fprintf(p.out, "\n%s\n  %s %s\n", strings.Repeat("-", 30), plainToolStyle.Render(name), truncate(params, 120))
}

func (p *PlainIO) ToolDone(_, _, result string, isErr bool) {
	if isErr {
		fmt.Fprintf(p.out, "    Error: %s\n", truncate(result, 80))
		return
	}
	fmt.Fprintf(p.out, "    Result: %s\n", truncate(strings.ReplaceAll(result, "\n", " "), 60))
}

// Confirm asks on the terminal. "y" allows once, "a" allows the signature
// for the rest of the session, anything else denies.
func (p *PlainIO) Confirm(req permission.Request) permission.Action {
	if req.Dangerous {
		fmt.Fprintf(p.out, "\n%s\n", plainWarnStyle.Render("WARNING: DANGEROUS OPERATION"))
	}
	fmt.Fprintf(p.out, "\n--- Tool: %s (%s) ---\n%s\n[y]es once / [a]lways %s / [N]o: ",
		req.ToolName, req.Category, truncate(formatArgs(req.Args), 200), req.Signature)

	answer, err := p.readLine()
	if err != nil {
		return permission.Deny
	}
	return parseAnswer(answer)
}

func (p *PlainIO) SystemMessage(text string) {
	fmt.Fprintln(p.out, plainSystemStyle.Render(text))
}

func (p *PlainIO) Error(msg string) {
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

// SetUsage is a no-op; /usage prints the full report.
func (p *PlainIO) SetUsage(_, _ int) {}

func parseAnswer(s string) permission.Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return permission.AllowOnce
	case "a", "always":
		return permission.AllowAlways
	}
	return permission.Deny
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(data)
}
