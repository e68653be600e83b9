package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"factual/internal/fact"
)

// Semantic colors, shared with the REPL styles.
var (
	colorPass  = lipgloss.Color("#8BC34A") // lime green
	colorFail  = lipgloss.Color("#e53935") // red
	colorError = lipgloss.Color("#FFC107") // yellow
	colorMuted = lipgloss.Color("#7a8699")
	colorNS    = lipgloss.Color("#2196F3") // blue
)

// Styles holds the rendered text styles of the console emitter.
type Styles struct {
	Pass      lipgloss.Style
	Fail      lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Namespace lipgloss.Style
	Detail    lipgloss.Style
}

// DefaultStyles returns the standard console styles.
func DefaultStyles() Styles {
	return Styles{
		Pass:      lipgloss.NewStyle().Foreground(colorPass).Bold(true),
		Fail:      lipgloss.NewStyle().Foreground(colorFail).Bold(true),
		Error:     lipgloss.NewStyle().Foreground(colorError).Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(colorMuted),
		Namespace: lipgloss.NewStyle().Foreground(colorNS).Bold(true),
		Detail:    lipgloss.NewStyle().PaddingLeft(4),
	}
}

// Console renders run events to a writer at a print level. It is safe for
// the single-caller model the framework assumes; a mutex still serializes
// writes so the autotest goroutine can share it with the REPL.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	styles Styles
	logger *zap.Logger
}

// NewConsole creates a console emitter writing to w. A nil logger disables
// debug mirroring.
func NewConsole(w io.Writer, level Level, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		w:      w,
		level:  level,
		styles: DefaultStyles(),
		logger: logger,
	}
}

// SetLevel changes the print level for subsequent events.
func (c *Console) SetLevel(level Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
}

// Level returns the current print level.
func (c *Console) Level() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.w, format, args...)
}

// ForgetResults opens a run.
func (c *Console) ForgetResults(runID string) {
	c.logger.Debug("run started", zap.String("run_id", runID))
}

// NamespaceChanged prints a namespace transition at verbose level.
func (c *Console) NamespaceChanged(ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("namespace changed", zap.String("namespace", ns))
	if c.level >= LevelVerbose {
		c.printf("%s\n", c.styles.Namespace.Render("= "+ns))
	}
}

// FactStarted is a debug-only event on the console.
func (c *Console) FactStarted(f *fact.Fact) {
	c.logger.Debug("checking fact", zap.String("fact", f.ID))
}

// Pass prints a per-fact line at verbose level.
func (c *Console) Pass(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.level >= LevelVerbose {
		c.printf("%s %s %s\n",
			c.styles.Pass.Render("✓"),
			o.Label(),
			c.styles.Muted.Render(o.Duration.Round(time.Millisecond).String()))
		c.printNotes(o)
	}
}

// Fail prints the failed checks with their diffs.
func (c *Console) Fail(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.level < LevelNormal {
		return
	}
	c.printf("%s %s\n", c.styles.Fail.Render("FAIL"), o.Label())
	for _, msg := range o.Failures {
		c.printf("%s\n", c.styles.Detail.Render(msg))
	}
	if len(o.Failures) == 0 {
		c.printf("%s\n", c.styles.Detail.Render("fact body returned false"))
	}
	if c.level >= LevelVerbose {
		c.printNotes(o)
	}
}

func (c *Console) printNotes(o Outcome) {
	for _, note := range o.Notes {
		c.printf("%s\n", c.styles.Muted.Render("  · "+note))
	}
}

// Error prints a fact that ended in an unexpected panic.
func (c *Console) Error(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.level < LevelNormal {
		return
	}
	c.printf("%s %s\n", c.styles.Error.Render("ERROR"), o.Label())
	c.printf("%s\n", c.styles.Detail.Render(o.Err))
}

// LoadError prints a namespace whose script failed to load.
func (c *Console) LoadError(ns string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("load error", zap.String("namespace", ns), zap.Error(err))
	if c.level < LevelNormal {
		return
	}
	c.printf("%s %s\n", c.styles.Error.Render("LOAD ERROR"), ns)
	c.printf("%s\n", c.styles.Detail.Render(err.Error()))
}

// Summarize prints the end-of-run summary.
func (c *Console) Summarize(s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.level < LevelSummary {
		return
	}
	c.printf("%s\n", RenderSummary(s, c.styles))
}

// RenderSummary formats a run summary as a single styled line (plus a load
// failure line when applicable). Shared with the REPL viewport.
func RenderSummary(s Summary, styles Styles) string {
	var b strings.Builder

	switch {
	case s.Checked == 0 && len(s.Loads) == 0:
		b.WriteString(styles.Muted.Render("No facts were checked."))
	case s.AllPassed():
		b.WriteString(styles.Pass.Render(fmt.Sprintf("All checks (%d) succeeded.", s.Checked)))
	default:
		parts := []string{fmt.Sprintf("%d failed", s.Failed)}
		if s.Errored > 0 {
			parts = append(parts, fmt.Sprintf("%d errored", s.Errored))
		}
		b.WriteString(styles.Fail.Render(
			fmt.Sprintf("FAILURE: %s of %d checks.", strings.Join(parts, ", "), s.Checked)))
	}

	if len(s.Loads) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Error.Render(fmt.Sprintf("%d namespace(s) failed to load.", len(s.Loads))))
	}

	if s.Duration > 0 {
		b.WriteString(styles.Muted.Render(fmt.Sprintf(" [%s]", s.Duration.Round(time.Millisecond))))
	}
	return b.String()
}
