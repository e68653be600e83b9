package report

import (
	"sync"

	"factual/internal/fact"
)

// Recorder is an Emitter that stores every event it receives. Tests and the
// REPL session inspect it after a run.
type Recorder struct {
	mu        sync.Mutex
	Runs      []string
	NSChanges []string
	Started   []string
	Passes    []Outcome
	Fails     []Outcome
	Errs      []Outcome
	LoadFails []LoadFailure
	Summaries []Summary
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ForgetResults(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Runs = append(r.Runs, runID)
}

func (r *Recorder) NamespaceChanged(ns string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.NSChanges = append(r.NSChanges, ns)
}

func (r *Recorder) FactStarted(f *fact.Fact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Started = append(r.Started, f.ID)
}

func (r *Recorder) Pass(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Passes = append(r.Passes, o)
}

func (r *Recorder) Fail(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fails = append(r.Fails, o)
}

func (r *Recorder) Error(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errs = append(r.Errs, o)
}

func (r *Recorder) LoadError(ns string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LoadFails = append(r.LoadFails, LoadFailure{Namespace: ns, Err: err.Error()})
}

func (r *Recorder) Summarize(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Summaries = append(r.Summaries, s)
}

// LastSummary returns the most recent summary, if any run has completed.
func (r *Recorder) LastSummary() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Summaries) == 0 {
		return Summary{}, false
	}
	return r.Summaries[len(r.Summaries)-1], true
}
