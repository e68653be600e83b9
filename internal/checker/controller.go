package checker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"factual/internal/compendium"
	"factual/internal/fact"
	"factual/internal/report"
)

// ErrNothingChecked is returned by RecheckLast when no fact has been
// checked since the registry was created.
var ErrNothingChecked = errors.New("no fact has been checked yet")

// Controller executes facts against a compendium and reports through an
// emitter. A run (one check-many or one load) is bracketed by
// BeginRun/EndRun; individual checks between the brackets accumulate into
// the run's summary.
type Controller struct {
	comp    *compendium.Compendium
	emitter report.Emitter
	logger  *zap.Logger

	run *report.Summary
}

// New creates a controller. A nil emitter discards events; a nil logger
// disables debug logging.
func New(comp *compendium.Compendium, emitter report.Emitter, logger *zap.Logger) *Controller {
	if emitter == nil {
		emitter = report.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{comp: comp, emitter: emitter, logger: logger}
}

// Emitter returns the controller's emitter, for collaborators that need to
// announce their own events (the loader's namespace transitions).
func (c *Controller) Emitter() report.Emitter {
	return c.emitter
}

// BeginRun discards previous per-run state and opens a new run. It returns
// the run ID.
func (c *Controller) BeginRun() string {
	runID := uuid.New().String()[:8]
	c.run = &report.Summary{RunID: runID, Started: time.Now()}
	c.emitter.ForgetResults(runID)
	c.logger.Debug("run opened", zap.String("run_id", runID))
	return runID
}

// EndRun closes the current run, emits its summary and returns it. Calling
// EndRun without an open run yields an empty summary.
func (c *Controller) EndRun() report.Summary {
	if c.run == nil {
		return report.Summary{}
	}
	s := *c.run
	s.Duration = time.Since(s.Started)
	c.run = nil
	c.emitter.Summarize(s)
	return s
}

// CheckOne runs a single fact. The last-checked slot is overwritten before
// the body runs, so a failing check is still the one recheck-last repeats.
// A panicking body is contained: it becomes an errored outcome and the
// caller simply sees false.
func (c *Controller) CheckOne(f *fact.Fact) bool {
	c.comp.SetLastChecked(f)
	c.emitter.FactStarted(f)

	t := newT(c.logger)
	start := time.Now()
	returned, panicErr := runBody(f.Body, t)

	o := report.Outcome{
		FactID:    f.ID,
		Namespace: f.Namespace,
		Name:      f.Name,
		Notes:     t.notes,
		Duration:  time.Since(start),
	}

	switch {
	case panicErr != nil:
		o.Err = panicErr.Error()
	case !returned || t.Failed():
		o.Failures = t.Failures()
	default:
		o.Passed = true
	}
	c.record(o)
	return o.Passed
}

// record folds an outcome into the open run (if any) and emits it.
func (c *Controller) record(o report.Outcome) {
	if c.run != nil {
		c.run.Checked++
		c.run.Outcomes = append(c.run.Outcomes, o)
		switch {
		case o.Err != "":
			c.run.Errored++
		case o.Passed:
			c.run.Passed++
		default:
			c.run.Failed++
		}
	}
	switch {
	case o.Err != "":
		c.emitter.Error(o)
	case o.Passed:
		c.emitter.Pass(o)
	default:
		c.emitter.Fail(o)
	}
}

// RecordLoadError attributes a load failure to ns inside the current run.
func (c *Controller) RecordLoadError(ns string, err error) {
	if c.run != nil {
		c.run.Loads = append(c.run.Loads, report.LoadFailure{Namespace: ns, Err: err.Error()})
	}
	c.emitter.LoadError(ns, err)
}

// CheckMany checks the given facts in order inside one bracketed run.
// Duplicates in the slice are checked as many times as they appear. The
// run holds when every check passed; an empty slice holds vacuously. A
// cancelled context stops between facts; already-produced outcomes stand.
func (c *Controller) CheckMany(ctx context.Context, facts []*fact.Fact) report.Summary {
	c.BeginRun()
	for _, f := range facts {
		if ctx.Err() != nil {
			c.logger.Warn("run cancelled", zap.Error(ctx.Err()))
			break
		}
		c.CheckOne(f)
	}
	return c.EndRun()
}

// RecheckLast rechecks the most recently checked fact. With no check
// history it returns ErrNothingChecked; it never fabricates a run.
func (c *Controller) RecheckLast(ctx context.Context) (report.Summary, error) {
	f, ok := c.comp.LastChecked()
	if !ok {
		return report.Summary{}, ErrNothingChecked
	}
	return c.CheckMany(ctx, []*fact.Fact{f}), nil
}
