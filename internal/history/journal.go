package history

import (
	"go.uber.org/zap"

	"factual/internal/fact"
	"factual/internal/report"
)

// Journal is a report.Emitter that persists completed runs to a Store.
// Fan it in next to the console emitter with report.Multi. Write failures
// are logged and swallowed: a broken journal must never fail a check run.
type Journal struct {
	store  *Store
	logger *zap.Logger
}

// NewJournal creates a journaling emitter over store.
func NewJournal(store *Store, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{store: store, logger: logger}
}

var _ report.Emitter = (*Journal)(nil)

func (j *Journal) ForgetResults(string)    {}
func (j *Journal) NamespaceChanged(string) {}
func (j *Journal) FactStarted(*fact.Fact)  {}
func (j *Journal) Pass(report.Outcome)     {}
func (j *Journal) Fail(report.Outcome)     {}
func (j *Journal) Error(report.Outcome)    {}
func (j *Journal) LoadError(string, error) {}

// Summarize journals the completed run. The summary already carries every
// outcome, so per-fact events need no buffering here.
func (j *Journal) Summarize(s report.Summary) {
	if err := j.store.RecordRun(s); err != nil {
		j.logger.Warn("failed to journal run",
			zap.String("run_id", s.RunID),
			zap.Error(err))
	}
}
