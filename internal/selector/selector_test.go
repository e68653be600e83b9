package selector

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factual/internal/compendium"
	"factual/internal/fact"
)

func mkFact(ns, name string, ordinal int, meta fact.Metadata) *fact.Fact {
	if meta == nil {
		meta = fact.Metadata{}
	}
	return &fact.Fact{
		ID:        fact.IdentityFor(ns, name, ordinal),
		Namespace: ns,
		Name:      name,
		Meta:      meta,
		Body:      func(t fact.Check) bool { return true },
	}
}

func TestMatches(t *testing.T) {
	f := mkFact("pkg.x", "parses negative integers", 0, fact.Metadata{
		"slow":     true,
		"disabled": false,
		"owner":    "core",
		"retries":  0,
	})

	tests := []struct {
		name string
		sel  Selector
		want bool
	}{
		{"all matches", All{}, true},
		{"namespace match", Namespace{Name: "pkg.x"}, true},
		{"namespace mismatch", Namespace{Name: "pkg.y"}, false},
		{"truthy tag", Tag{Key: "slow"}, true},
		{"false tag is no match", Tag{Key: "disabled"}, false},
		{"absent tag is no match, not an error", Tag{Key: "missing"}, false},
		{"string-valued tag is truthy", Tag{Key: "owner"}, true},
		{"zero-valued tag is truthy", Tag{Key: "retries"}, true},
		{"substring hit", Substring{Text: "negative"}, true},
		{"substring is case-sensitive", Substring{Text: "Negative"}, false},
		{"pattern finds anywhere", Pattern{Re: regexp.MustCompile(`neg\w+ int`)}, true},
		{"pattern miss", Pattern{Re: regexp.MustCompile(`^integers`)}, false},
		{"predicate over metadata", Predicate{Fn: func(m fact.Metadata) bool { return m["owner"] == "core" }}, true},
		{"predicate false", Predicate{Fn: func(m fact.Metadata) bool { return false }}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.sel, f); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.sel, got, tt.want)
			}
		})
	}
}

func TestPredicatePanicPropagates(t *testing.T) {
	f := mkFact("pkg.x", "anything", 0, nil)
	sel := Predicate{Fn: func(fact.Metadata) bool { panic("broken predicate") }}

	defer func() {
		if recover() == nil {
			t.Fatal("predicate panic must propagate to the caller")
		}
	}()
	Matches(sel, f)
}

func TestFetchZeroArgsUsesCurrentNamespace(t *testing.T) {
	c := compendium.New()
	require.NoError(t, c.Register(mkFact("pkg.x", "first", 0, nil)))
	require.NoError(t, c.Register(mkFact("pkg.y", "other", 0, nil)))
	require.NoError(t, c.Register(mkFact("pkg.x", "second", 1, nil)))

	got := Fetch(c, "pkg.x")
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Name, "registration order within the namespace")
	assert.Equal(t, "second", got[1].Name)
}

func TestFetchAllHasNoDuplicates(t *testing.T) {
	c := compendium.New()
	require.NoError(t, c.Register(mkFact("pkg.x", "a", 0, fact.Metadata{"slow": true})))
	require.NoError(t, c.Register(mkFact("pkg.y", "b", 0, nil)))

	got := Fetch(c, "pkg.x", All{})
	assert.Len(t, got, 2, "a single :all yields each fact once")
}

func TestFetchUnionKeepsDuplicates(t *testing.T) {
	c := compendium.New()
	slow := mkFact("pkg.x", "a", 0, fact.Metadata{"slow": true})
	require.NoError(t, c.Register(slow))
	require.NoError(t, c.Register(mkFact("pkg.y", "b", 0, nil)))

	got := Fetch(c, "pkg.x", All{}, Tag{Key: "slow"})
	require.Len(t, got, 3, "a fact matched twice appears twice")
	assert.Same(t, slow, got[2], "matcher results follow :all results in argument order")
}

func TestFetchArgumentOrder(t *testing.T) {
	c := compendium.New()
	require.NoError(t, c.Register(mkFact("pkg.x", "x1", 0, nil)))
	require.NoError(t, c.Register(mkFact("pkg.y", "y1", 0, nil)))

	got := Fetch(c, "", Namespace{Name: "pkg.y"}, Namespace{Name: "pkg.x"})
	require.Len(t, got, 2)
	assert.Equal(t, "y1", got[0].Name)
	assert.Equal(t, "x1", got[1].Name)
}

func TestFetchEmptyCurrentNamespace(t *testing.T) {
	c := compendium.New()
	require.NoError(t, c.Register(mkFact("pkg.x", "a", 0, nil)))

	assert.Empty(t, Fetch(c, "pkg.unloaded"), "unknown namespace selects nothing")
}

func TestFetchForgetScenario(t *testing.T) {
	c := compendium.New()
	a := mkFact("pkg.x", "A", 0, fact.Metadata{"slow": true})
	b := mkFact("pkg.x", "B", 1, nil)
	cc := mkFact("pkg.y", "C", 0, nil)
	require.NoError(t, c.Register(a))
	require.NoError(t, c.Register(b))
	require.NoError(t, c.Register(cc))

	got := Fetch(c, "", Tag{Key: "slow"})
	require.Len(t, got, 1)
	assert.Same(t, a, got[0])

	got = Fetch(c, "", Namespace{Name: "pkg.x"})
	require.Len(t, got, 2)
	assert.Same(t, a, got[0])
	assert.Same(t, b, got[1])

	for _, f := range Fetch(c, "", Tag{Key: "slow"}) {
		c.Remove(f.ID)
	}
	got = Fetch(c, "", All{})
	require.Len(t, got, 2)
	assert.Same(t, b, got[0])
	assert.Same(t, cc, got[1])

	for _, f := range Fetch(c, "", All{}) {
		c.Remove(f.ID)
	}
	assert.Empty(t, c.AllFacts())
}

func TestParse(t *testing.T) {
	tests := []struct {
		token string
		want  Selector
	}{
		{":all", All{}},
		{":slow", Tag{Key: "slow"}},
		{"name:integration", Substring{Text: "integration"}},
		{"ns:pkg.x", Namespace{Name: "pkg.x"}},
		{"pkg.x", Namespace{Name: "pkg.x"}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := Parse(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("/re/", func(t *testing.T) {
		got, err := Parse("/neg.*int/")
		require.NoError(t, err)
		pat, ok := got.(Pattern)
		require.True(t, ok)
		assert.Equal(t, "neg.*int", pat.Re.String())
	})
}

func TestParseErrors(t *testing.T) {
	for _, token := range []string{"", ":", "name:", "ns:", "/[unclosed/"} {
		t.Run(token, func(t *testing.T) {
			_, err := Parse(token)
			assert.Error(t, err)
		})
	}
}

func TestSelectorStrings(t *testing.T) {
	tests := []struct {
		sel  Selector
		want string
	}{
		{All{}, ":all"},
		{Tag{Key: "slow"}, ":slow"},
		{Namespace{Name: "pkg.x"}, "pkg.x"},
		{Substring{Text: "neg"}, "name:neg"},
		{Pattern{Re: regexp.MustCompile("a+")}, "/a+/"},
		{Predicate{Fn: func(fact.Metadata) bool { return true }}, "<predicate>"},
	}
	for _, tt := range tests {
		if got := tt.sel.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
