// Package loader turns namespace specs into loaded, checked facts. It
// discovers *.facts.go scripts under the configured source roots, evaluates
// each in a fresh yaegi interpreter, and hands the script a Registrar so its
// facts register (and are checked) against the live compendium.
package loader

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"factual/internal/checker"
	"factual/internal/compendium"
	"factual/internal/config"
	"factual/internal/report"
	"factual/pkg/facts"
)

var packageRe = regexp.MustCompile(`(?m)^package\s+([A-Za-z_]\w*)`)

// Loader orchestrates namespace loading.
type Loader struct {
	comp        *compendium.Compendium
	ctl         *checker.Controller
	cfg         *config.Config
	logger      *zap.Logger
	checkOnLoad bool
}

// New creates a loader. A nil logger disables debug logging.
func New(comp *compendium.Compendium, ctl *checker.Controller, cfg *config.Config, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{comp: comp, ctl: ctl, cfg: cfg, logger: logger, checkOnLoad: true}
}

// SetCheckOnLoad controls whether facts are checked as they register.
// Loading checks by default; commands that run their own selection
// afterwards populate the registry quietly instead.
func (l *Loader) SetCheckOnLoad(on bool) {
	l.checkOnLoad = on
}

// Resolve expands namespace specs into concrete namespaces. No specs means
// every discoverable namespace. A spec ending in "*" expands over the
// discoverable namespaces sharing its prefix, so "pkg.*" selects strict
// sub-namespaces and "pkg*" includes pkg itself. Anything else passes
// through literally, duplicates and all.
func (l *Loader) Resolve(ctx context.Context, specs ...string) ([]string, error) {
	if len(specs) == 0 {
		return l.Discover(ctx)
	}

	var discovered []string
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		star := strings.IndexByte(spec, '*')
		if star < 0 {
			out = append(out, spec)
			continue
		}
		if star != len(spec)-1 {
			return nil, fmt.Errorf("namespace spec %q: wildcard is only allowed at the end", spec)
		}
		if discovered == nil {
			var err error
			if discovered, err = l.Discover(ctx); err != nil {
				return nil, err
			}
		}
		prefix := spec[:len(spec)-1]
		for _, ns := range discovered {
			if strings.HasPrefix(ns, prefix) {
				out = append(out, ns)
			}
		}
	}
	return out, nil
}

// Load resolves specs and loads each namespace in order, bracketed as a
// single run. Script failures are contained: they surface as load errors on
// the summary and loading continues. The returned error covers orchestration
// problems only.
func (l *Loader) Load(ctx context.Context, specs ...string) (report.Summary, error) {
	nss, err := l.Resolve(ctx, specs...)
	if err != nil {
		return report.Summary{}, err
	}

	l.ctl.BeginRun()
	for _, ns := range nss {
		if ctx.Err() != nil {
			l.logger.Warn("load cancelled", zap.Error(ctx.Err()))
			break
		}
		l.loadNamespace(ns)
	}
	return l.ctl.EndRun(), nil
}

// loadNamespace reloads one namespace: announce it, drop its previous
// facts, evaluate its script. Failure after the drop leaves the namespace
// empty, which is what a broken script deserves.
func (l *Loader) loadNamespace(ns string) {
	l.ctl.Emitter().NamespaceChanged(ns)
	removed := l.comp.RemoveNamespace(ns)
	if removed > 0 {
		l.logger.Debug("previous facts dropped",
			zap.String("namespace", ns),
			zap.Int("count", removed))
	}

	path, err := l.locate(ns)
	if err != nil {
		l.ctl.RecordLoadError(ns, err)
		return
	}
	src, err := os.ReadFile(path)
	if err != nil {
		l.ctl.RecordLoadError(ns, fmt.Errorf("reading %s: %w", path, err))
		return
	}

	count, err := l.evalScript(ns, path, string(src))
	if err != nil {
		l.ctl.RecordLoadError(ns, err)
		return
	}
	l.logger.Info("namespace loaded",
		zap.String("namespace", ns),
		zap.String("script", path),
		zap.Int("facts", count))
}

// locate finds the script for ns under the source roots, first root wins.
func (l *Loader) locate(ns string) (string, error) {
	if ns == "" {
		return "", fmt.Errorf("empty namespace")
	}
	if strings.ContainsAny(ns, `/\`) {
		return "", fmt.Errorf("namespace %q: path separators are not allowed", ns)
	}
	for _, root := range l.cfg.SourceRoots {
		path := FileForNamespace(root, ns)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no fact script for namespace %q under roots %v", ns, l.cfg.SourceRoots)
}

// evalScript runs one fact script in a fresh interpreter and returns how
// many facts it registered. A fresh interpreter per script keeps scripts
// from leaking symbols into each other across reloads.
func (l *Loader) evalScript(ns, path, src string) (int, error) {
	m := packageRe.FindStringSubmatch(src)
	if m == nil {
		return 0, fmt.Errorf("%s: no package clause", path)
	}
	pkg := m[1]

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return 0, fmt.Errorf("loading stdlib symbols: %w", err)
	}
	if err := i.Use(facts.Symbols()); err != nil {
		return 0, fmt.Errorf("loading facts symbols: %w", err)
	}

	if _, err := i.Eval(src); err != nil {
		return 0, fmt.Errorf("evaluating %s: %w", path, err)
	}

	v, err := i.Eval(pkg + ".RegisterFacts")
	if err != nil {
		return 0, fmt.Errorf("%s: RegisterFacts not found: %w", path, err)
	}
	register, ok := v.Interface().(func(*facts.Registrar))
	if !ok {
		return 0, fmt.Errorf("%s: RegisterFacts has the wrong signature, want func(*facts.Registrar)", path)
	}

	r := facts.NewRegistrar(l.comp, ns)
	if l.checkOnLoad {
		r.SetChecker(l.ctl)
	}
	r.SetLogger(l.logger)
	r.SetSource(path)
	if err := r.SetGenerations(l.cfg.Generations); err != nil {
		return 0, err
	}

	if err := invokeRegister(register, r); err != nil {
		return r.Count(), err
	}
	return r.Count(), r.Err()
}

// invokeRegister contains a panic unwinding out of RegisterFacts itself.
// Panics inside fact bodies never reach here; immediate checking already
// isolates those.
func invokeRegister(register func(*facts.Registrar), r *facts.Registrar) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("RegisterFacts panicked: %v", p)
		}
	}()
	register(r)
	return nil
}
