package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factual/internal/fact"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"silent", LevelSilent, true},
		{"summary", LevelSummary, true},
		{"normal", LevelNormal, true},
		{"", LevelNormal, true},
		{"verbose", LevelVerbose, true},
		{"shouty", LevelNormal, false},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
		} else {
			require.Error(t, err, tc.in)
		}
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, l := range []Level{LevelSilent, LevelSummary, LevelNormal, LevelVerbose} {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}
}

func TestOutcomeLabel(t *testing.T) {
	named := Outcome{FactID: "pkg.x/adds", Namespace: "pkg.x", Name: "adds"}
	assert.Equal(t, "pkg.x: adds", named.Label())

	anon := Outcome{FactID: "pkg.x#2", Namespace: "pkg.x"}
	assert.Equal(t, "pkg.x#2", anon.Label())
}

func TestConsoleSilentPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, LevelSilent, nil)

	c.NamespaceChanged("pkg.x")
	c.Pass(Outcome{FactID: "pkg.x/adds", Passed: true})
	c.Fail(Outcome{FactID: "pkg.x/breaks", Failures: []string{"boom"}})
	c.Error(Outcome{FactID: "pkg.x/blows", Err: "panic: nope"})
	c.LoadError("pkg.x", errors.New("syntax error"))
	c.Summarize(Summary{Checked: 3, Failed: 1})

	assert.Empty(t, buf.String())
}

func TestConsoleSummaryLevel(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, LevelSummary, nil)

	c.Fail(Outcome{FactID: "pkg.x/breaks", Failures: []string{"boom"}})
	assert.Empty(t, buf.String(), "failures are below the summary level")

	c.Summarize(Summary{Checked: 2, Passed: 2})
	assert.Contains(t, buf.String(), "All checks (2) succeeded.")
}

func TestConsoleNormalLevel(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, LevelNormal, nil)

	c.NamespaceChanged("pkg.x")
	c.Pass(Outcome{FactID: "pkg.x/adds", Passed: true})
	assert.Empty(t, buf.String(), "passes and transitions stay quiet at normal")

	c.Fail(Outcome{
		FactID:    "pkg.x/breaks",
		Namespace: "pkg.x",
		Name:      "breaks",
		Failures:  []string{"mismatch (-expected +actual):\n-5\n+4"},
	})
	out := buf.String()
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "pkg.x: breaks")
	assert.Contains(t, out, "mismatch")

	buf.Reset()
	c.Fail(Outcome{FactID: "pkg.x#1", Namespace: "pkg.x"})
	assert.Contains(t, buf.String(), "fact body returned false")

	buf.Reset()
	c.Error(Outcome{FactID: "pkg.x/blows", Namespace: "pkg.x", Name: "blows", Err: "panic: nil map"})
	out = buf.String()
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "panic: nil map")

	buf.Reset()
	c.LoadError("pkg.y", errors.New("no fact script"))
	out = buf.String()
	assert.Contains(t, out, "LOAD ERROR")
	assert.Contains(t, out, "pkg.y")
	assert.Contains(t, out, "no fact script")
}

func TestConsoleVerboseLevel(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, LevelVerbose, nil)

	c.NamespaceChanged("pkg.x")
	assert.Contains(t, buf.String(), "= pkg.x")

	buf.Reset()
	c.Pass(Outcome{
		FactID:    "pkg.x/adds",
		Namespace: "pkg.x",
		Name:      "adds",
		Passed:    true,
		Notes:     []string{"tried 3 inputs"},
		Duration:  12 * time.Millisecond,
	})
	out := buf.String()
	assert.Contains(t, out, "pkg.x: adds")
	assert.Contains(t, out, "12ms")
	assert.Contains(t, out, "tried 3 inputs")
}

func TestConsoleSetLevel(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, LevelSilent, nil)

	c.Summarize(Summary{Checked: 1, Passed: 1})
	assert.Empty(t, buf.String())

	c.SetLevel(LevelSummary)
	c.Summarize(Summary{Checked: 1, Passed: 1})
	assert.NotEmpty(t, buf.String())
}

func TestRenderSummary(t *testing.T) {
	styles := DefaultStyles()

	vacuous := RenderSummary(Summary{}, styles)
	assert.Contains(t, vacuous, "No facts were checked.")

	passed := RenderSummary(Summary{Checked: 3, Passed: 3, Duration: 40 * time.Millisecond}, styles)
	assert.Contains(t, passed, "All checks (3) succeeded.")
	assert.Contains(t, passed, "[40ms]")

	failed := RenderSummary(Summary{Checked: 5, Passed: 2, Failed: 1, Errored: 2}, styles)
	assert.Contains(t, failed, "FAILURE: 1 failed, 2 errored of 5 checks.")

	loads := RenderSummary(Summary{Loads: []LoadFailure{{Namespace: "pkg.x", Err: "bad"}}}, styles)
	assert.Contains(t, loads, "1 namespace(s) failed to load.")
}

func TestSummaryAllPassed(t *testing.T) {
	assert.True(t, Summary{}.AllPassed(), "an empty run holds vacuously")
	assert.True(t, Summary{Checked: 2, Passed: 2}.AllPassed())
	assert.False(t, Summary{Checked: 2, Passed: 1, Failed: 1}.AllPassed())
	assert.False(t, Summary{Checked: 1, Passed: 1, Errored: 1}.AllPassed())
	assert.False(t, Summary{Loads: []LoadFailure{{Namespace: "x", Err: "e"}}}.AllPassed())
}

func TestMultiFansOut(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()
	m := Multi(a, b)

	m.ForgetResults("run-1")
	m.NamespaceChanged("pkg.x")
	m.FactStarted(&fact.Fact{ID: "pkg.x/adds"})
	m.Pass(Outcome{FactID: "pkg.x/adds", Passed: true})
	m.Fail(Outcome{FactID: "pkg.x/breaks"})
	m.Error(Outcome{FactID: "pkg.x/blows", Err: "panic"})
	m.LoadError("pkg.y", errors.New("bad"))
	m.Summarize(Summary{RunID: "run-1", Checked: 3})

	for _, rec := range []*Recorder{a, b} {
		assert.Equal(t, []string{"run-1"}, rec.Runs)
		assert.Equal(t, []string{"pkg.x"}, rec.NSChanges)
		assert.Equal(t, []string{"pkg.x/adds"}, rec.Started)
		assert.Len(t, rec.Passes, 1)
		assert.Len(t, rec.Fails, 1)
		assert.Len(t, rec.Errs, 1)
		assert.Len(t, rec.LoadFails, 1)
		s, ok := rec.LastSummary()
		require.True(t, ok)
		assert.Equal(t, "run-1", s.RunID)
	}
}
