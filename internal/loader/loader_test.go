package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factual/internal/checker"
	"factual/internal/compendium"
	"factual/internal/config"
	"factual/internal/report"
)

const scriptArithmetic = `package b

import "factual/pkg/facts"

func RegisterFacts(r *facts.Registrar) {
	r.Fact("adds", facts.Meta{"fast": true}, func(t facts.T) bool {
		return t.Equal(4, 2+2)
	})

	r.Fact("breaks", nil, func(t facts.T) bool {
		return t.Equal(5, 2+2)
	})
}
`

const scriptBrokenSyntax = `package c

func RegisterFacts( {
`

const scriptWrongSignature = `package d

func RegisterFacts(n int) {}
`

const scriptNoRegister = `package e

func Unrelated() {}
`

const scriptPanics = `package f

import "factual/pkg/facts"

func RegisterFacts(r *facts.Registrar) {
	r.Fact("pre", nil, func(t facts.T) bool {
		return t.Truthy(true)
	})
	panic("wiring exploded")
}
`

func writeScript(t *testing.T, root, rel, src string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newLoader(t *testing.T, roots ...string) (*Loader, *compendium.Compendium, *report.Recorder) {
	t.Helper()
	comp := compendium.New()
	rec := report.NewRecorder()
	ctl := checker.New(comp, rec, nil)
	cfg := config.DefaultConfig()
	cfg.SourceRoots = roots
	return New(comp, ctl, cfg, nil), comp, rec
}

func TestNamespaceMapping(t *testing.T) {
	root := filepath.Join("home", "scripts")
	cases := []struct {
		path string
		ns   string
		ok   bool
	}{
		{filepath.Join(root, "a", "b.facts.go"), "a.b", true},
		{filepath.Join(root, "top.facts.go"), "top", true},
		{filepath.Join(root, "a", "b", "c.facts.go"), "a.b.c", true},
		{filepath.Join(root, "a", "util.go"), "", false},
		{filepath.Join("elsewhere", "b.facts.go"), "", false},
		{filepath.Join(root, "a", "b.x.facts.go"), "", false},
	}
	for _, tc := range cases {
		ns, ok := NamespaceForFile(root, tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.ns, ns, tc.path)
	}

	assert.Equal(t, filepath.Join(root, "a", "b.facts.go"), FileForNamespace(root, "a.b"))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a/b.facts.go", "package b\n")
	writeScript(t, root, "a/c.facts.go", "package c\n")
	writeScript(t, root, "top.facts.go", "package top\n")
	writeScript(t, root, "a/util.go", "package a\n")
	writeScript(t, root, "_drafts/x.facts.go", "package x\n")
	writeScript(t, root, ".hidden/y.facts.go", "package y\n")
	writeScript(t, root, "_scratch.facts.go", "package scratch\n")

	l, _, _ := newLoader(t, root)
	nss, err := l.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b", "a.c", "top"}, nss)
}

func TestDiscoverMergesRoots(t *testing.T) {
	root1 := t.TempDir()
	root2 := t.TempDir()
	writeScript(t, root1, "a/b.facts.go", "package b\n")
	writeScript(t, root2, "a/b.facts.go", "package b\n")
	writeScript(t, root2, "z.facts.go", "package z\n")

	l, _, _ := newLoader(t, root1, root2, filepath.Join(root1, "does-not-exist"))
	nss, err := l.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b", "z"}, nss)
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a/b.facts.go", "package b\n")
	writeScript(t, root, "a/c.facts.go", "package c\n")
	writeScript(t, root, "top.facts.go", "package top\n")

	l, _, _ := newLoader(t, root)
	ctx := context.Background()

	all, err := l.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b", "a.c", "top"}, all)

	sub, err := l.Resolve(ctx, "a.*")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b", "a.c"}, sub)

	loose, err := l.Resolve(ctx, "a*")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b", "a.c"}, loose)

	literal, err := l.Resolve(ctx, "top", "top")
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "top"}, literal, "literal specs pass through unchanged")

	_, err = l.Resolve(ctx, "a.*.b")
	require.Error(t, err)
}

func TestLoadRegistersAndChecksImmediately(t *testing.T) {
	root := t.TempDir()
	path := writeScript(t, root, "a/b.facts.go", scriptArithmetic)

	l, comp, rec := newLoader(t, root)
	sum, err := l.Load(context.Background(), "a.b")
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Checked)
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, sum.Loads)
	assert.False(t, sum.AllPassed())

	require.Equal(t, 2, comp.Count())
	adds, ok := comp.Get("a.b/adds")
	require.True(t, ok)
	assert.Equal(t, true, adds.Meta["fast"])
	assert.Equal(t, path, adds.Source)

	assert.Equal(t, []string{"a.b"}, rec.NSChanges)
	require.Len(t, rec.Passes, 1)
	assert.Equal(t, "a.b/adds", rec.Passes[0].FactID)
	require.Len(t, rec.Fails, 1)
	assert.Equal(t, "a.b/breaks", rec.Fails[0].FactID)
	assert.Len(t, rec.Runs, 1, "load must be bracketed as one run")
	assert.Len(t, rec.Summaries, 1)
}

func TestLoadContainsScriptFailures(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a/b.facts.go", scriptArithmetic)
	writeScript(t, root, "a/c.facts.go", scriptBrokenSyntax)
	writeScript(t, root, "a/d.facts.go", scriptWrongSignature)
	writeScript(t, root, "a/e.facts.go", scriptNoRegister)
	writeScript(t, root, "a/f.facts.go", scriptPanics)

	l, comp, rec := newLoader(t, root)
	sum, err := l.Load(context.Background())
	require.NoError(t, err, "script failures must not abort the load")

	require.Len(t, sum.Loads, 4)
	byNS := map[string]string{}
	for _, lf := range sum.Loads {
		byNS[lf.Namespace] = lf.Err
	}
	assert.Contains(t, byNS, "a.c")
	assert.Contains(t, byNS, "a.d")
	assert.Contains(t, byNS, "a.e")
	assert.Contains(t, byNS["a.d"], "wrong signature")
	assert.Contains(t, byNS["a.f"], "panicked")

	assert.Len(t, rec.LoadFails, 4)

	assert.Len(t, comp.FactsInNamespace("a.b"), 2, "healthy namespaces still load")
	assert.Len(t, comp.FactsInNamespace("a.f"), 1, "facts registered before the panic stay")
	assert.Empty(t, comp.FactsInNamespace("a.c"))
}

func TestLoadMissingNamespace(t *testing.T) {
	l, _, rec := newLoader(t, t.TempDir())
	sum, err := l.Load(context.Background(), "ghost")
	require.NoError(t, err)
	require.Len(t, sum.Loads, 1)
	assert.Equal(t, "ghost", sum.Loads[0].Namespace)
	assert.Contains(t, sum.Loads[0].Err, "no fact script")
	assert.Equal(t, []string{"ghost"}, rec.NSChanges)
}

func TestLoadBadWildcardIsOrchestrationError(t *testing.T) {
	l, _, rec := newLoader(t, t.TempDir())
	_, err := l.Load(context.Background(), "x.*.y")
	require.Error(t, err)
	assert.Empty(t, rec.Runs, "a failed resolve must not open a run")
}

func TestQuietLoadRegistersWithoutChecking(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a/b.facts.go", scriptArithmetic)

	l, comp, rec := newLoader(t, root)
	l.SetCheckOnLoad(false)

	sum, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, comp.Count())
	assert.Zero(t, sum.Checked)
	assert.Empty(t, rec.Passes)
	assert.Empty(t, rec.Fails)
	_, ok := comp.LastChecked()
	assert.False(t, ok, "a quiet load must not touch the last-checked slot")
}

func TestReloadReplacesNamespace(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a/b.facts.go", scriptArithmetic)

	l, comp, _ := newLoader(t, root)
	ctx := context.Background()

	_, err := l.Load(ctx, "a.b")
	require.NoError(t, err)
	require.Len(t, comp.FactsInNamespace("a.b"), 2)

	writeScript(t, root, "a/b.facts.go", `package b

import "factual/pkg/facts"

func RegisterFacts(r *facts.Registrar) {
	r.Fact("only one now", nil, func(t facts.T) bool {
		return t.Truthy("kept")
	})
}
`)
	sum, err := l.Load(ctx, "a.b")
	require.NoError(t, err)

	left := comp.FactsInNamespace("a.b")
	require.Len(t, left, 1)
	assert.Equal(t, "only one now", left[0].Name)
	assert.Equal(t, 1, sum.Passed)
}
