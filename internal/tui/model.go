package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/aictl/agentcore/internal/permission"
)

// ---------- messages sent from the agent goroutine via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type thinkingStartMsg struct{}
type textDeltaMsg struct{ delta string }
type textDoneMsg struct{ fullText string }
type toolStartMsg struct{ id, name, params string }
type toolDoneMsg struct {
	id, name, result string
	isErr            bool
}
type confirmMsg struct {
	name      string
	params    string
	signature string
	dangerous bool
	replyCh   chan permission.Action
}
type confirmCanceledMsg struct{}
type systemMsg struct{ text string }
type errorMsg struct{ text string }
type usageMsg struct{ used, max int }
type agentDoneMsg struct{ err error }

// ---------- spinner activity kinds ----------

type spinnerKind int

const (
	spinnerNone     spinnerKind = iota
	spinnerThinking             // model call in flight
	spinnerTool                 // tool is executing
)

type toolCallState struct {
	name   string
	params string
}

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusWarnStyle = statusBarStyle.Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	toolBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("7")).
			PaddingLeft(1)

	toolNameStyle    = lipgloss.NewStyle().Bold(true)
	toolParamStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	toolSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	toolErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	confirmBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(lipgloss.Color("3")).
				PaddingLeft(1)

	confirmDangerBorderStyle = confirmBorderStyle.BorderForeground(lipgloss.Color("9"))

	confirmHintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	confirmDangerHintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// ---------- Model ----------

const statusBarHeight = 1
const inputHeight = 1

// usageWarnRatio turns the status bar amber.
const usageWarnRatio = 0.85

// Model is the bubbletea model managing the full TUI state.
type Model struct {
	viewport  viewport.Model
	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int

	content     *strings.Builder // accumulated output, shared by copies of the model
	streaming   bool             // text deltas are arriving
	streamStart int              // byte offset in content where the current stream began
	inputMode   bool             // waiting for user input
	spinnerKind spinnerKind

	currentTool *toolCallState

	confirming    bool
	confirmCh     chan permission.Action
	confirmDanger bool

	inputCh chan inputResult

	// cancelLoopFn cancels the running turn; it reports whether one ran.
	cancelLoopFn func() bool

	quitting bool

	// status bar
	used, max int
	toolName  string
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 4096

	vp := viewport.New(80, 24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		viewport:  vp,
		textinput: ti,
		spinner:   sp,
		content:   &strings.Builder{},
		inputCh:   inputCh,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// answer resolves the pending confirmation.
func (m *Model) answer(a permission.Action) {
	if !m.confirming || m.confirmCh == nil {
		return
	}
	select {
	case m.confirmCh <- a:
	default:
	}
	m.confirming = false
	m.confirmCh = nil
	switch a {
	case permission.AllowOnce:
		m.appendLine(toolSuccessStyle.Render("  ✓ allowed once"))
	case permission.AllowAlways:
		m.appendLine(toolSuccessStyle.Render("  ✓ allowed for this session"))
	default:
		m.appendLine(toolErrorStyle.Render("  ✗ denied"))
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.width
		m.viewport.Height = max(m.height-statusBarHeight-inputHeight, 1)
		m.textinput.Width = m.width - 4

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if m.confirming {
			switch msg.String() {
			case "enter", "y":
				m.answer(permission.AllowOnce)
			case "a":
				m.answer(permission.AllowAlways)
			case "esc", "n":
				m.answer(permission.Deny)
			case "ctrl+c":
				m.answer(permission.Deny)
				m.quitting = true
				return m, tea.Quit
			}
			break
		}
		switch msg.String() {
		case "ctrl+c":
			if !m.inputMode && m.cancelLoopFn != nil && m.cancelLoopFn() {
				m.appendLine(systemStyle.Render("  [interrupted]"))
				break
			}
			if m.inputMode {
				m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
				m.inputMode = false
				m.textinput.Blur()
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if m.inputMode {
				text := strings.TrimSpace(m.textinput.Value())
				m.textinput.SetValue("")
				m.inputCh <- inputResult{text: text}
				m.inputMode = false
				m.textinput.Blur()
			}
			return m, nil
		}
		if m.inputMode {
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
		}

	// ---------- custom messages from the agent goroutine ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()
		cmds = append(cmds, textinput.Blink)

	case userMsg:
		m.appendLine(userStyle.Render("You: " + msg.text))

	case thinkingStartMsg:
		m.spinnerKind = spinnerThinking
		m.streaming = false

	case textDeltaMsg:
		if m.spinnerKind == spinnerThinking {
			m.spinnerKind = spinnerNone
		}
		if !m.streaming {
			m.streamStart = m.content.Len()
			m.streaming = true
		}
		m.content.WriteString(msg.delta)

	case textDoneMsg:
		m.spinnerKind = spinnerNone
		if m.streaming {
			m.replaceStreamWithMarkdown(msg.fullText)
		} else if msg.fullText != "" {
			m.streamStart = m.content.Len()
			m.replaceStreamWithMarkdown(msg.fullText)
		}
		m.streaming = false

	case toolStartMsg:
		m.toolName = msg.name
		m.spinnerKind = spinnerTool
		m.currentTool = &toolCallState{name: msg.name, params: formatToolParams(msg.params)}

	case toolDoneMsg:
		if m.currentTool != nil {
			m.appendLine(m.renderToolDone(m.currentTool, msg.result, msg.isErr))
		}
		m.toolName = ""
		m.spinnerKind = spinnerNone
		m.currentTool = nil

	case confirmMsg:
		m.confirming = true
		m.confirmCh = msg.replyCh
		m.confirmDanger = msg.dangerous
		m.spinnerKind = spinnerNone
		m.appendLine(renderConfirmBlock(msg))

	case confirmCanceledMsg:
		if m.confirming {
			m.confirming = false
			m.confirmCh = nil
			m.appendLine(toolErrorStyle.Render("  ✗ timed out, denied"))
		}

	case systemMsg:
		m.appendLine(systemStyle.Render(msg.text))

	case errorMsg:
		m.appendLine(errorStyle.Render("Error: " + msg.text))

	case usageMsg:
		m.used, m.max = msg.used, msg.max

	case agentDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoBottom()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.viewport.View() + "\n" + m.statusBar() + "\n" + m.inputLine()
}

func (m Model) statusBar() string {
	status := fmt.Sprintf(" context: %d", m.used)
	style := statusBarStyle
	if m.max > 0 {
		ratio := float64(m.used) / float64(m.max)
		status = fmt.Sprintf(" context: %d/%d (%.0f%%)", m.used, m.max, ratio*100)
		if ratio >= usageWarnRatio {
			style = statusWarnStyle
		}
	}
	if m.toolName != "" {
		status += " | tool: " + m.toolName
	}
	return style.Width(m.width).Render(status)
}

func (m Model) inputLine() string {
	switch {
	case m.confirming && m.confirmDanger:
		return confirmDangerHintStyle.Render("  ⚠ y/Enter = once • a = always • n/Esc = deny")
	case m.confirming:
		return confirmHintStyle.Render("  y/Enter = once • a = always • n/Esc = deny")
	case m.inputMode:
		return m.textinput.View()
	}
	return ""
}

// ---------- tool call rendering ----------

func (m *Model) renderToolRunning(tc *toolCallState) string {
	inner := toolNameStyle.Render(tc.name) + "\n" +
		toolParamStyle.Render(tc.params) + "\n" +
		m.spinner.View() + " running..."
	return toolBorderStyle.Render(inner)
}

func (m *Model) renderToolDone(tc *toolCallState, result string, isErr bool) string {
	var status string
	if isErr {
		status = toolErrorStyle.Render("✗ " + truncate(result, 200))
	} else {
		status = toolSuccessStyle.Render("✓ " + truncate(strings.ReplaceAll(result, "\n", " "), 120))
	}
	inner := toolNameStyle.Render(tc.name) + "\n" + toolParamStyle.Render(tc.params) + "\n" + status
	return toolBorderStyle.Render(inner)
}

func renderConfirmBlock(msg confirmMsg) string {
	lines := []string{
		toolNameStyle.Render(msg.name),
		toolParamStyle.Render(formatToolParams(msg.params)),
		toolParamStyle.Render("always allows: " + msg.signature),
	}
	border := confirmBorderStyle
	if msg.dangerous {
		border = confirmDangerBorderStyle
		lines = append(lines, "", confirmDangerHintStyle.Render("⚠ DANGEROUS"))
	}
	return border.Render(strings.Join(lines, "\n"))
}

// renderContent appends the dynamic elements (spinner, in-flight tool
// block) that are not kept in the content builder.
func (m *Model) renderContent() string {
	base := m.content.String()
	switch m.spinnerKind {
	case spinnerThinking:
		return base + "\n" + m.spinner.View() + " Thinking..."
	case spinnerTool:
		if m.currentTool != nil {
			return base + "\n" + m.renderToolRunning(m.currentTool)
		}
		return base + "\n" + m.spinner.View() + " " + m.toolName + "..."
	}
	return base
}

// ---------- markdown rendering ----------

// replaceStreamWithMarkdown replaces the raw streamed text from streamStart
// with glamour-rendered markdown. Rendering errors keep the raw text.
func (m *Model) replaceStreamWithMarkdown(fullText string) {
	width := m.width
	if width <= 0 {
		width = 80
	}
	rendered, err := renderMarkdown(fullText, width-4)
	if err != nil {
		if s := m.content.String(); len(s) > 0 && s[len(s)-1] != '\n' {
			m.content.WriteString("\n")
		}
		return
	}
	before := m.content.String()[:m.streamStart]
	m.content.Reset()
	m.content.WriteString(before)
	m.content.WriteString(strings.TrimRight(rendered, "\n"))
	m.content.WriteString("\n")
}

func renderMarkdown(text string, wrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

// ---------- helpers ----------

func (m *Model) appendLine(text string) {
	m.content.WriteString(text)
	m.content.WriteString("\n")
}

// formatToolParams trims raw JSON params for display.
func formatToolParams(raw string) string {
	return truncate(strings.TrimSpace(raw), 120)
}
