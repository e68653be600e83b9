// Package inspect answers datalog queries over the compendium. The registry
// is exported as an extensional database (fact/3, fact_tag/2, fact_meta/3,
// last_checked/1) and evaluated with the Mangle engine together with any
// caller-supplied rules, so "which slow facts were never tagged as owned"
// is one query instead of a hand-written loop.
package inspect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"go.uber.org/zap"

	"factual/internal/compendium"
	"factual/internal/fact"
)

// Engine evaluates queries against a compendium snapshot. Each Query
// re-exports the registry, so results always reflect the live state.
type Engine struct {
	comp   *compendium.Compendium
	logger *zap.Logger
}

// New creates an engine over comp. A nil logger disables debug logging.
func New(comp *compendium.Compendium, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{comp: comp, logger: logger}
}

// Result is one derived row.
type Result struct {
	Predicate string
	Args      []any
}

func (r Result) String() string {
	parts := make([]string, len(r.Args))
	for i, a := range r.Args {
		switch v := a.(type) {
		case string:
			parts[i] = strconv.Quote(v)
		default:
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%s(%s)", r.Predicate, strings.Join(parts, ", "))
}

// Query evaluates the exported registry plus the given rules to fixpoint
// and returns every derived atom of the named predicate, sorted for
// deterministic output.
func (e *Engine) Query(predicate string, rules ...string) ([]Result, error) {
	src := e.exportEDB()
	for _, rule := range rules {
		src += rule + "\n"
	}
	e.logger.Debug("evaluating query",
		zap.String("predicate", predicate),
		zap.Int("rules", len(rules)))

	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parsing query program: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyzing query program: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	if _, err := engine.EvalProgramWithStats(programInfo, store); err != nil {
		return nil, fmt.Errorf("evaluating query program: %w", err)
	}

	var pred ast.PredicateSym
	found := false
	for p := range programInfo.Decls {
		if p.Symbol == predicate {
			pred = p
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown predicate %q", predicate)
	}

	var results []Result
	err = store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
		args := make([]any, len(a.Args))
		for i, term := range a.Args {
			args[i] = termToValue(term)
		}
		results = append(results, Result{Predicate: a.Predicate.Symbol, Args: args})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].String() < results[j].String()
	})
	return results, nil
}

// Predicates lists the built-in EDB predicates, for the CLI help text.
func Predicates() []string {
	return []string{
		"fact(Id, Ns, Name)",
		"fact_tag(Id, Key)",
		"fact_meta(Id, Key, Value)",
		"last_checked(Id)",
	}
}

// exportEDB renders the registry as a datalog program. All constants are
// quoted strings; identifiers like "pkg.x/adds" are not valid mangle name
// constants, and metadata values of any type flatten to their string form.
func (e *Engine) exportEDB() string {
	var sb strings.Builder
	for _, f := range e.comp.AllFacts() {
		fmt.Fprintf(&sb, "fact(%s, %s, %s).\n",
			strconv.Quote(f.ID), strconv.Quote(f.Namespace), strconv.Quote(f.Name))

		keys := make([]string, 0, len(f.Meta))
		for k := range f.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := f.Meta[k]
			if fact.Truthy(v) {
				fmt.Fprintf(&sb, "fact_tag(%s, %s).\n",
					strconv.Quote(f.ID), strconv.Quote(k))
			}
			fmt.Fprintf(&sb, "fact_meta(%s, %s, %s).\n",
				strconv.Quote(f.ID), strconv.Quote(k), strconv.Quote(fmt.Sprintf("%v", v)))
		}
	}
	if last, ok := e.comp.LastChecked(); ok {
		fmt.Fprintf(&sb, "last_checked(%s).\n", strconv.Quote(last.ID))
	}
	return sb.String()
}

// termToValue converts a mangle term back to a Go value.
func termToValue(term ast.BaseTerm) any {
	switch t := term.(type) {
	case ast.Constant:
		switch t.Type {
		case ast.NameType:
			return t.Symbol
		case ast.StringType:
			return t.Symbol
		case ast.NumberType:
			return t.NumValue
		case ast.Float64Type:
			return t.Float64Value
		default:
			return t.String()
		}
	case ast.Variable:
		return "?" + t.Symbol
	default:
		return fmt.Sprintf("%v", term)
	}
}
