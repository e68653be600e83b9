// This file implements the interactive session using bubbletea.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"factual/cmd/facts/ui"
	"factual/internal/checker"
	"factual/internal/config"
	"factual/internal/inspect"
	"factual/internal/report"
	"factual/internal/selector"
)

const helpMarkdown = `# facts session

Fact scripts were loaded on startup; the registry persists until you quit,
so forget and recheck behave the way the per-command CLI cannot.

## Commands

- ` + "`load [ns ...]`" + ` reload namespaces (all of them by default)
- ` + "`check [sel ...]`" + ` check the selected facts
- ` + "`fetch [sel ...]`" + ` list what a selection would check
- ` + "`forget [sel ...]`" + ` remove the selected facts
- ` + "`recheck`" + ` re-run the most recently checked fact
- ` + "`ns [name|-]`" + ` show, set or clear the ambient namespace
- ` + "`level [name]`" + ` show or set the print level
- ` + "`query <pred> [rule]`" + ` run a datalog query over the registry
- ` + "`history [fact-id]`" + ` show journaled runs or one fact across runs
- ` + "`clear`" + `, ` + "`help`" + `, ` + "`quit`" + `

## Selectors

` + "`:all`" + ` everything, ` + "`:slow`" + ` tagged facts, ` + "`/re/`" + ` name regexp,
` + "`name:text`" + ` name substring, ` + "`ns:pkg.x`" + ` or bare ` + "`pkg.x`" + ` a namespace.
No selector means the ambient namespace when one is set, everything otherwise.
`

// replModel is the model for the interactive session.
type replModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	transcript []replEntry
	isLoading  bool
	width      int
	height     int
	ready      bool

	// Session
	app       *app
	buf       *bytes.Buffer
	currentNS string
}

// replEntry is one transcript exchange. The initial load has no input line;
// a pending async command has no output yet.
type replEntry struct {
	input  string
	output string
	done   bool
}

// replResultMsg carries a finished command's console output back into Update.
type replResultMsg struct {
	output string
}

// runREPL starts the interactive session. The TUI owns the terminal, so the
// session logs nowhere and the console emitter writes into a buffer that is
// drained into the transcript after each command.
func runREPL() error {
	c, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if levelFlag != "" {
		c.PrintLevel = levelFlag
	}
	if err := c.Validate(); err != nil {
		return err
	}

	m, err := newREPLModel(c)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func newREPLModel(c *config.Config) (replModel, error) {
	styles := ui.DefaultStyles()

	buf := &bytes.Buffer{}
	a, err := newApp(c, zap.NewNop(), buf)
	if err != nil {
		return replModel{}, err
	}

	ti := textinput.New()
	ti.Placeholder = "check :all, load, help... (Enter to run, Ctrl+C to quit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 1024
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.Input

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	return replModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		app:       a,
		buf:       buf,
		isLoading: true, // until the startup load lands
	}, nil
}

func (m replModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.startupLoad(),
	)
}

// startupLoad populates the registry before the first prompt, checking
// facts as they register.
func (m replModel) startupLoad() tea.Cmd {
	return func() tea.Msg {
		_, err := m.app.loader.Load(context.Background())
		return m.drainResult(err)
	}
}

// drainResult empties the console buffer into a result message. Only one
// command runs at a time, so the buffer has a single writer.
func (m replModel) drainResult(err error) replResultMsg {
	out := strings.TrimRight(m.buf.String(), "\n")
	m.buf.Reset()
	if err != nil {
		if out != "" {
			out += "\n"
		}
		out += "error: " + err.Error()
	}
	return replResultMsg{output: out}
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.app.Close()
			return m, tea.Quit

		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
		}

		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.viewport.SetContent(m.renderTranscript())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}
		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case replResultMsg:
		m.isLoading = false
		if n := len(m.transcript); n > 0 && !m.transcript[n-1].done {
			m.transcript[n-1].output = msg.output
			m.transcript[n-1].done = true
		} else {
			m.transcript = append(m.transcript, replEntry{output: msg.output, done: true})
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m replModel) handleSubmit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.textinput.Value())
	if line == "" {
		return m, nil
	}
	m.textinput.Reset()

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	// Session-local commands answer synchronously.
	switch name {
	case "quit", "exit", "q":
		m.app.Close()
		return m, tea.Quit

	case "clear":
		m.transcript = nil
		m.viewport.SetContent("")
		return m, nil

	case "help":
		return m.finish(line, m.renderHelp()), nil

	case "ns":
		out := m.switchNamespace(args)
		return m.finish(line, out), nil

	case "level":
		out := m.switchLevel(args)
		return m.finish(line, out), nil
	}

	run, err := m.commandFor(name, args)
	if err != nil {
		return m.finish(line, m.styles.Error.Render("error: "+err.Error())), nil
	}

	m.transcript = append(m.transcript, replEntry{input: line})
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	m.isLoading = true

	return m, tea.Batch(m.spinner.Tick, run)
}

// finish appends a completed exchange and refreshes the viewport.
func (m replModel) finish(input, output string) replModel {
	m.transcript = append(m.transcript, replEntry{input: input, output: output, done: true})
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
	return m
}

// commandFor builds the async command for one input line. The closures
// capture the session's registry and controller; the ambient namespace is
// the value at submit time.
func (m replModel) commandFor(name string, args []string) (tea.Cmd, error) {
	switch name {
	case "load":
		return func() tea.Msg {
			_, err := m.app.loader.Load(context.Background(), args...)
			return m.drainResult(err)
		}, nil

	case "check":
		sels, err := m.sessionSelectors(args)
		if err != nil {
			return nil, err
		}
		return func() tea.Msg {
			facts := selector.Fetch(m.app.comp, m.currentNS, sels...)
			m.app.ctl.CheckMany(context.Background(), facts)
			return m.drainResult(nil)
		}, nil

	case "fetch":
		sels, err := m.sessionSelectors(args)
		if err != nil {
			return nil, err
		}
		return func() tea.Msg {
			facts := selector.Fetch(m.app.comp, m.currentNS, sels...)
			var sb strings.Builder
			for _, f := range facts {
				sb.WriteString(f.String())
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%d fact(s)", len(facts))
			return replResultMsg{output: sb.String()}
		}, nil

	case "forget":
		sels, err := m.sessionSelectors(args)
		if err != nil {
			return nil, err
		}
		return func() tea.Msg {
			removed := 0
			for _, f := range selector.Fetch(m.app.comp, m.currentNS, sels...) {
				if m.app.comp.Remove(f.ID) {
					removed++
				}
			}
			return replResultMsg{output: fmt.Sprintf("forgot %d fact(s)", removed)}
		}, nil

	case "recheck":
		return func() tea.Msg {
			_, err := m.app.ctl.RecheckLast(context.Background())
			if errors.Is(err, checker.ErrNothingChecked) {
				return replResultMsg{output: "nothing has been checked yet"}
			}
			return m.drainResult(err)
		}, nil

	case "query":
		if len(args) == 0 {
			return nil, fmt.Errorf("query needs a predicate; see help")
		}
		pred := args[0]
		var rules []string
		if len(args) > 1 {
			rules = []string{strings.Join(args[1:], " ")}
		}
		return func() tea.Msg {
			eng := inspect.New(m.app.comp, m.app.logger)
			rows, err := eng.Query(pred, rules...)
			if err != nil {
				return replResultMsg{output: "error: " + err.Error()}
			}
			if len(rows) == 0 {
				return replResultMsg{output: "no results"}
			}
			var sb strings.Builder
			for i, row := range rows {
				if i > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(row.String())
			}
			return replResultMsg{output: sb.String()}
		}, nil

	case "history":
		return func() tea.Msg {
			return replResultMsg{output: m.renderRunHistory(args)}
		}, nil
	}

	return nil, fmt.Errorf("unknown command %q; try help", name)
}

// sessionSelectors maps a command's arguments to selectors under the
// session's ambient namespace.
func (m replModel) sessionSelectors(args []string) ([]selector.Selector, error) {
	if len(args) == 0 {
		if m.currentNS != "" {
			return nil, nil
		}
		return []selector.Selector{selector.All{}}, nil
	}
	return selector.ParseAll(args)
}

func (m *replModel) switchNamespace(args []string) string {
	switch {
	case len(args) == 0:
		if m.currentNS == "" {
			return "no ambient namespace; ns <name> sets one"
		}
		return "ambient namespace: " + m.currentNS
	case args[0] == "-":
		m.currentNS = ""
		return "ambient namespace cleared"
	default:
		m.currentNS = args[0]
		return "ambient namespace: " + m.currentNS
	}
}

func (m *replModel) switchLevel(args []string) string {
	if len(args) == 0 {
		return "print level: " + m.app.console.Level().String()
	}
	level, err := report.ParseLevel(args[0])
	if err != nil {
		return "error: " + err.Error()
	}
	m.app.console.SetLevel(level)
	return "print level: " + level.String()
}

func (m replModel) renderRunHistory(args []string) string {
	if m.app.store == nil {
		return "run journal is disabled; set history.enabled in the configuration"
	}

	var sb strings.Builder
	if len(args) > 0 {
		outcomes, err := m.app.store.FactHistory(args[0], 10)
		if err != nil {
			return "error: " + err.Error()
		}
		if len(outcomes) == 0 {
			return fmt.Sprintf("no journaled results for %s", args[0])
		}
		for _, o := range outcomes {
			fmt.Fprintf(&sb, "%s  %-5s  %v", o.RunID, o.Status, o.Duration)
			if o.Detail != "" {
				fmt.Fprintf(&sb, "  %s", o.Detail)
			}
			sb.WriteByte('\n')
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	runs, err := m.app.store.RecentRuns(10)
	if err != nil {
		return "error: " + err.Error()
	}
	if len(runs) == 0 {
		return "no journaled runs"
	}
	for _, r := range runs {
		status := "ok"
		if !r.AllPassed() {
			status = "FAILED"
		}
		fmt.Fprintf(&sb, "%s  %s  checked=%d passed=%d failed=%d errored=%d  %s\n",
			r.Started.Local().Format("15:04:05"), r.RunID,
			r.Checked, r.Passed, r.Failed, r.Errored, status)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderHelp renders the command reference with panic recovery; glamour
// chokes on some terminal setups and plain text is an acceptable fallback.
func (m replModel) renderHelp() (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = helpMarkdown
		}
	}()

	if m.renderer != nil {
		rendered, err := m.renderer.Render(helpMarkdown)
		if err == nil {
			return rendered
		}
	}
	return helpMarkdown
}

func (m replModel) renderTranscript() string {
	var sb strings.Builder

	for _, e := range m.transcript {
		if e.input != "" {
			sb.WriteString(m.styles.Prompt.Render("facts> ") + m.styles.Bold.Render(e.input) + "\n")
		}
		if e.output != "" {
			sb.WriteString(e.output)
			if !strings.HasSuffix(e.output, "\n") {
				sb.WriteByte('\n')
			}
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

func (m replModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	body := m.viewport.View()
	if m.isLoading {
		body += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Working..."
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		body,
		inputStyle.Render(m.textinput.View()),
		m.renderFooter(),
	)
}

func (m replModel) renderHeader() string {
	title := m.styles.Header.Render(" facts ")
	badge := m.styles.Badge.Render("v" + version)

	var status string
	if m.isLoading {
		status = m.styles.Warning.Render("● Running")
	} else {
		status = m.styles.Success.Render("● Ready")
	}

	registry := fmt.Sprintf(" %d fact(s) in %d namespace(s)",
		m.app.comp.Count(), len(m.app.comp.Namespaces()))
	if m.currentNS != "" {
		registry += "  ns=" + m.currentNS
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		badge,
		"  ",
		status,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.Muted.Render(registry),
		m.styles.RenderDivider(m.width),
	)
}

func (m replModel) renderFooter() string {
	help := m.styles.Muted.Render("Enter: run • help: commands • Ctrl+C: quit")
	return lipgloss.NewStyle().MarginTop(1).Render(help)
}
