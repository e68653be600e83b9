package facts

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factual/internal/checker"
	"factual/internal/compendium"
	"factual/internal/config"
	"factual/internal/fact"
	"factual/internal/report"
)

// recordingChecker captures the facts handed to immediate checking.
type recordingChecker struct {
	ids []string
}

func (rc *recordingChecker) CheckOne(f *fact.Fact) bool {
	rc.ids = append(rc.ids, f.ID)
	return true
}

func TestFactIdentities(t *testing.T) {
	comp := compendium.New()
	r := NewRegistrar(comp, "ledger.core")

	r.Fact("balances sum to zero", nil, func(T) bool { return true })
	r.Fact("", nil, func(T) bool { return true })
	r.Fact("rounding is bankers", Meta{"slow": true}, func(T) bool { return true })
	r.FactAs("ledger.core/pinned", "was: rounding survives rename", nil, func(T) bool { return true })

	require.NoError(t, r.Err())
	assert.Equal(t, 4, r.Count())

	all := comp.AllFacts()
	require.Len(t, all, 4)
	assert.Equal(t, "ledger.core/balances sum to zero", all[0].ID)
	assert.Equal(t, "ledger.core#1", all[1].ID)
	assert.Equal(t, "ledger.core/rounding is bankers", all[2].ID)
	assert.Equal(t, "ledger.core/pinned", all[3].ID)

	f, ok := comp.Get("ledger.core/rounding is bankers")
	require.True(t, ok)
	assert.Equal(t, true, f.Meta["slow"])
}

func TestRegistrationErrorsAccumulate(t *testing.T) {
	comp := compendium.New()
	r := NewRegistrar(comp, "ledger.core")

	r.Fact("no body", nil, nil)
	r.Fact("fine", nil, func(T) bool { return true })
	r.Formula("no formula body", nil, nil)

	err := r.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `fact "no body"`)
	assert.Contains(t, err.Error(), `formula "no formula body"`)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1, comp.Count())
}

func TestEmptyNamespaceRejected(t *testing.T) {
	comp := compendium.New()
	r := NewRegistrar(comp, "")

	r.Fact("orphan", nil, func(T) bool { return true })

	require.Error(t, r.Err())
	assert.Zero(t, comp.Count())
}

func TestReRegistrationReplaces(t *testing.T) {
	comp := compendium.New()
	r := NewRegistrar(comp, "ledger.core")

	r.Fact("stable", nil, func(T) bool { return false })
	r.Fact("stable", nil, func(T) bool { return true })

	require.NoError(t, r.Err())
	require.Equal(t, 1, comp.Count())

	ctl := checker.New(comp, nil, nil)
	f, ok := comp.Get("ledger.core/stable")
	require.True(t, ok)
	assert.True(t, ctl.CheckOne(f), "replacement body should be the one that runs")
}

func TestImmediateChecking(t *testing.T) {
	comp := compendium.New()
	rc := &recordingChecker{}

	r := NewRegistrar(comp, "ledger.core")
	r.Fact("before checker", nil, func(T) bool { return true })
	r.SetChecker(rc)
	r.Fact("after checker", nil, func(T) bool { return true })
	r.Fact("", nil, func(T) bool { return true })

	assert.Equal(t, []string{"ledger.core/after checker", "ledger.core#2"}, rc.ids)
}

func TestSetGenerations(t *testing.T) {
	r := NewRegistrar(compendium.New(), "ledger.core")

	for _, n := range []int{0, -3} {
		err := r.SetGenerations(n)
		require.Error(t, err)
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "generations", verr.Field)
	}

	require.NoError(t, r.SetGenerations(7))

	calls := 0
	r.Formula("counts generations", nil, func(t T, _ *rand.Rand) bool {
		calls++
		return true
	})
	require.NoError(t, r.Err())

	ctl := checker.New(compendium.New(), nil, nil)
	f, ok := r.comp.Get("ledger.core/counts generations")
	require.True(t, ok)
	assert.True(t, ctl.CheckOne(f))
	assert.Equal(t, 7, calls)
}

func TestFormulaDeterministic(t *testing.T) {
	comp := compendium.New()
	r := NewRegistrar(comp, "ledger.core")
	require.NoError(t, r.SetGenerations(5))

	var draws []int64
	r.Formula("stable stream", nil, func(t T, rng *rand.Rand) bool {
		draws = append(draws, rng.Int63())
		return true
	})
	require.NoError(t, r.Err())

	ctl := checker.New(comp, nil, nil)
	f, ok := comp.Get("ledger.core/stable stream")
	require.True(t, ok)

	require.True(t, ctl.CheckOne(f))
	first := append([]int64(nil), draws...)
	draws = draws[:0]
	require.True(t, ctl.CheckOne(f))

	assert.Equal(t, first, draws, "same identity must replay the same generations")
}

func TestFormulaStopsAtFirstFailure(t *testing.T) {
	comp := compendium.New()
	rec := report.NewRecorder()
	ctl := checker.New(comp, rec, nil)

	r := NewRegistrar(comp, "ledger.core")
	require.NoError(t, r.SetGenerations(10))

	calls := 0
	r.Formula("fails midway", nil, func(t T, _ *rand.Rand) bool {
		calls++
		return calls != 4
	})
	require.NoError(t, r.Err())

	f, ok := comp.Get("ledger.core/fails midway")
	require.True(t, ok)
	assert.False(t, ctl.CheckOne(f))
	assert.Equal(t, 4, calls, "generations after the failing one must not run")

	require.Len(t, rec.Fails, 1)
	require.NotEmpty(t, rec.Fails[0].Failures)
	assert.Contains(t, rec.Fails[0].Failures[0], "generation 3")
}

func TestRegistrationSource(t *testing.T) {
	comp := compendium.New()

	r := NewRegistrar(comp, "ledger.core")
	r.Fact("from go", nil, func(T) bool { return true })

	f, ok := comp.Get("ledger.core/from go")
	require.True(t, ok)
	assert.Contains(t, f.Source, "facts_test.go:")

	r.SetSource("ledger/core.facts.go")
	r.Fact("from script", nil, func(T) bool { return true })

	f, ok = comp.Get("ledger.core/from script")
	require.True(t, ok)
	assert.Equal(t, "ledger/core.facts.go", f.Source)
}

func TestOrdinalsCountFailedRegistrations(t *testing.T) {
	comp := compendium.New()
	r := NewRegistrar(comp, "ledger.core")

	r.Fact("", nil, func(T) bool { return true })
	r.Fact("bad", nil, nil)
	r.Fact("", nil, func(T) bool { return true })

	_, ok := comp.Get("ledger.core#0")
	assert.True(t, ok)
	_, ok = comp.Get("ledger.core#2")
	assert.True(t, ok, "a failed registration still consumes its ordinal")
}
