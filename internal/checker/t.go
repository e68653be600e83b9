// Package checker runs fact bodies and turns them into reported outcomes.
// It owns the assertion context handed to bodies and the controller that
// brackets runs, isolates panics and maintains the last-checked slot.
package checker

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"factual/internal/fact"
)

// T is the assertion context passed to a running fact body. It records
// failed checks; the fact's outcome is the body's return value AND an empty
// failure list. T is not safe for concurrent use; a body that spawns
// goroutines must join them before returning.
type T struct {
	logger   *zap.Logger
	failures []string
	notes    []string
}

var _ fact.Check = (*T)(nil)

func newT(logger *zap.Logger) *T {
	return &T{logger: logger}
}

// Equal compares with go-cmp and records the diff on mismatch. Types with
// unexported fields need a cmp option (a comparer or an exporter); without
// one go-cmp panics, which the controller reports as an errored fact.
func (t *T) Equal(expected, actual any, opts ...cmp.Option) bool {
	diff := cmp.Diff(expected, actual, opts...)
	if diff == "" {
		return true
	}
	t.failures = append(t.failures, fmt.Sprintf("mismatch (-expected +actual):\n%s", diff))
	return false
}

// Truthy records a failure unless got is truthy. Only nil and false fail.
func (t *T) Truthy(got any) bool {
	if fact.Truthy(got) {
		return true
	}
	t.failures = append(t.failures, fmt.Sprintf("expected a truthy value, got %#v", got))
	return false
}

// Falsey records a failure unless got is nil or false.
func (t *T) Falsey(got any) bool {
	if !fact.Truthy(got) {
		return true
	}
	t.failures = append(t.failures, fmt.Sprintf("expected nil or false, got %#v", got))
	return false
}

// NoError records a failure when err is non-nil.
func (t *T) NoError(err error) bool {
	if err == nil {
		return true
	}
	t.failures = append(t.failures, fmt.Sprintf("unexpected error: %v", err))
	return false
}

// Failf records an explicit failure.
func (t *T) Failf(format string, args ...any) {
	t.failures = append(t.failures, fmt.Sprintf(format, args...))
}

// Logf records a note, shown at verbose print level.
func (t *T) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.notes = append(t.notes, msg)
	t.logger.Debug("fact log", zap.String("note", msg))
}

// Fact runs a nested fact inline. The nested fact is not registered and
// does not touch last-checked state; a failing or panicking nested fact
// fails the parent. Metadata on nested facts is informational only.
func (t *T) Fact(name string, meta fact.Metadata, body fact.Body) bool {
	child := newT(t.logger)
	returned, panicErr := runBody(body, child)

	switch {
	case panicErr != nil:
		t.failures = append(t.failures, fmt.Sprintf("nested fact %q: %v", name, panicErr))
		return false
	case !returned || child.Failed():
		for _, f := range child.failures {
			t.failures = append(t.failures, fmt.Sprintf("nested fact %q: %s", name, f))
		}
		if len(child.failures) == 0 {
			t.failures = append(t.failures, fmt.Sprintf("nested fact %q returned false", name))
		}
		return false
	default:
		t.notes = append(t.notes, child.notes...)
		return true
	}
}

// Failed reports whether any check recorded a failure.
func (t *T) Failed() bool {
	return len(t.failures) > 0
}

// Failures returns the recorded failure messages.
func (t *T) Failures() []string {
	return t.failures
}

// runBody invokes body with panic isolation. returned is the body's return
// value; panicErr is non-nil when the body unwound instead of returning.
func runBody(body fact.Body, t *T) (returned bool, panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr = fmt.Errorf("panic: %v", r)
		}
	}()
	return body(t), nil
}
