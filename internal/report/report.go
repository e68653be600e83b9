// Package report defines the reporting boundary of the framework. The
// execution layer announces run events through the Emitter interface; the
// console emitter renders them at a configurable print level, and other
// emitters (run history, test recorders) can be fanned in behind the same
// interface.
package report

import (
	"fmt"
	"time"

	"factual/internal/fact"
)

// Level is the console print level.
type Level int

const (
	// LevelSilent prints nothing.
	LevelSilent Level = iota
	// LevelSummary prints only the end-of-run summary.
	LevelSummary
	// LevelNormal prints failures, errors and the summary.
	LevelNormal
	// LevelVerbose additionally prints namespace transitions and a line
	// per passing fact.
	LevelVerbose
)

// ParseLevel converts a config string into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "silent":
		return LevelSilent, nil
	case "summary":
		return LevelSummary, nil
	case "normal", "":
		return LevelNormal, nil
	case "verbose":
		return LevelVerbose, nil
	default:
		return LevelNormal, fmt.Errorf("unknown print level %q (want silent, summary, normal or verbose)", s)
	}
}

// String returns the config spelling of the level.
func (l Level) String() string {
	switch l {
	case LevelSilent:
		return "silent"
	case LevelSummary:
		return "summary"
	case LevelVerbose:
		return "verbose"
	default:
		return "normal"
	}
}

// Outcome is the result of checking one fact.
type Outcome struct {
	FactID    string
	Namespace string
	Name      string
	Passed    bool
	// Failures holds the recorded check failures, one message per failed
	// check, diffs included.
	Failures []string
	// Err is set when the body ended in an unexpected panic or error
	// instead of a clean false.
	Err string
	// Notes holds Logf output from the body, shown at verbose level.
	Notes    []string
	Duration time.Duration
}

// Label returns the outcome's display label, mirroring fact.Fact.String.
func (o Outcome) Label() string {
	if o.Name != "" {
		return fmt.Sprintf("%s: %s", o.Namespace, o.Name)
	}
	return o.FactID
}

// LoadFailure records a namespace whose script could not be loaded.
type LoadFailure struct {
	Namespace string
	Err       string
}

// Summary aggregates a whole run: one check-many or load invocation.
type Summary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Checked  int
	Passed   int
	Failed   int
	Errored  int
	Outcomes []Outcome
	Loads    []LoadFailure
}

// AllPassed reports whether the run held: no failed checks, no errored
// facts, no load failures. A run that checked nothing holds vacuously.
func (s Summary) AllPassed() bool {
	return s.Failed == 0 && s.Errored == 0 && len(s.Loads) == 0
}

// Emitter receives run events from the execution layer. Implementations
// must tolerate any call order the controller produces: ForgetResults opens
// a run, Summarize closes it, and the per-fact and namespace events land in
// between.
type Emitter interface {
	// ForgetResults discards accumulated result state and opens a new run.
	ForgetResults(runID string)
	// NamespaceChanged announces that subsequent events belong to ns.
	NamespaceChanged(ns string)
	// FactStarted announces that f's body is about to run.
	FactStarted(f *fact.Fact)
	// Pass reports a fact that held.
	Pass(o Outcome)
	// Fail reports a fact with at least one failed check or a false body.
	Fail(o Outcome)
	// Error reports a fact whose body ended in an unexpected panic.
	Error(o Outcome)
	// LoadError reports a namespace whose script failed to load. Checking
	// continues with the remaining namespaces.
	LoadError(ns string, err error)
	// Summarize closes the run with its aggregate summary.
	Summarize(s Summary)
}

// Nop is an Emitter that discards everything.
type Nop struct{}

func (Nop) ForgetResults(string)    {}
func (Nop) NamespaceChanged(string) {}
func (Nop) FactStarted(*fact.Fact)  {}
func (Nop) Pass(Outcome)            {}
func (Nop) Fail(Outcome)            {}
func (Nop) Error(Outcome)           {}
func (Nop) LoadError(string, error) {}
func (Nop) Summarize(Summary)       {}

type multi []Emitter

// Multi fans events out to several emitters in order.
func Multi(emitters ...Emitter) Emitter {
	return multi(emitters)
}

func (m multi) ForgetResults(runID string) {
	for _, e := range m {
		e.ForgetResults(runID)
	}
}

func (m multi) NamespaceChanged(ns string) {
	for _, e := range m {
		e.NamespaceChanged(ns)
	}
}

func (m multi) FactStarted(f *fact.Fact) {
	for _, e := range m {
		e.FactStarted(f)
	}
}

func (m multi) Pass(o Outcome) {
	for _, e := range m {
		e.Pass(o)
	}
}

func (m multi) Fail(o Outcome) {
	for _, e := range m {
		e.Fail(o)
	}
}

func (m multi) Error(o Outcome) {
	for _, e := range m {
		e.Error(o)
	}
}

func (m multi) LoadError(ns string, err error) {
	for _, e := range m {
		e.LoadError(ns, err)
	}
}

func (m multi) Summarize(s Summary) {
	for _, e := range m {
		e.Summarize(s)
	}
}
