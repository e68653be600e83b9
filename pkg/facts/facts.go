// Package facts is the public definition surface of the framework. Fact
// scripts receive a *Registrar and record their facts through it; the same
// API serves Go callers embedding the framework directly.
//
// A minimal script:
//
//	package ledger
//
//	import "factual/pkg/facts"
//
//	func RegisterFacts(r *facts.Registrar) {
//		r.Fact("balances sum to zero", facts.Meta{"slow": true}, func(t facts.T) bool {
//			return t.Equal(0, Balance())
//		})
//	}
package facts

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"runtime"

	"go.uber.org/zap"

	"factual/internal/compendium"
	"factual/internal/config"
	"factual/internal/fact"
)

// Meta carries a fact's metadata. Tag-style keys map to true; only nil and
// false values fail tag selection.
type Meta = fact.Metadata

// T is the check context a fact body runs against.
type T = fact.Check

// Checker runs a fact as soon as it is registered. The execution
// controller satisfies it; registrars without one only register.
type Checker interface {
	CheckOne(f *fact.Fact) bool
}

// DefaultGenerations is how many cases a Formula generates when the
// registrar has no explicit setting.
const DefaultGenerations = 100

// Registrar records facts into a compendium on behalf of one namespace.
// The loader constructs one per script evaluation; Go callers construct
// their own. Not safe for concurrent use.
type Registrar struct {
	comp        *compendium.Compendium
	ns          string
	checker     Checker
	generations int
	logger      *zap.Logger
	source      string
	ordinal     int
	count       int
	errs        []error
}

// NewRegistrar creates a registrar that records facts under namespace ns.
func NewRegistrar(comp *compendium.Compendium, ns string) *Registrar {
	return &Registrar{
		comp:        comp,
		ns:          ns,
		generations: DefaultGenerations,
		logger:      zap.NewNop(),
	}
}

// SetChecker attaches a checker; every subsequently registered fact is
// checked immediately, so failures surface against the namespace that is
// loading.
func (r *Registrar) SetChecker(c Checker) {
	r.checker = c
}

// SetGenerations changes how many cases each Formula generates. Zero and
// negative counts are rejected and leave the registrar untouched.
func (r *Registrar) SetGenerations(n int) error {
	if n <= 0 {
		return &config.ValidationError{
			Field:  "generations",
			Value:  n,
			Reason: "must be a positive integer",
		}
	}
	r.generations = n
	return nil
}

// SetLogger attaches a logger for registration debug events.
func (r *Registrar) SetLogger(logger *zap.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetSource overrides the registration site recorded on facts. The loader
// sets the script path here; interpreted code has no usable Go caller.
func (r *Registrar) SetSource(source string) {
	r.source = source
}

// Namespace returns the namespace this registrar records under.
func (r *Registrar) Namespace() string {
	return r.ns
}

// Count returns how many facts this registrar has recorded.
func (r *Registrar) Count() int {
	return r.count
}

// Err returns the accumulated registration errors, nil when every
// registration succeeded.
func (r *Registrar) Err() error {
	return errors.Join(r.errs...)
}

// Fact registers a named fact. An empty name makes the fact anonymous; its
// identity then keys on the registration ordinal, which is stable across
// reloads of an unchanged script.
func (r *Registrar) Fact(name string, meta Meta, body func(T) bool) {
	r.register("", name, meta, body)
}

// FactAs registers a fact under an explicit identity, pinning it across
// renames. Rarely needed; Fact's derived identity serves most scripts.
func (r *Registrar) FactAs(id, name string, meta Meta, body func(T) bool) {
	r.register(id, name, meta, body)
}

func (r *Registrar) register(id, name string, meta Meta, body func(T) bool) {
	ordinal := r.ordinal
	r.ordinal++

	if body == nil {
		r.errs = append(r.errs, fmt.Errorf("fact %q: body must not be nil", name))
		return
	}
	if id == "" {
		id = fact.IdentityFor(r.ns, name, ordinal)
	}
	if meta == nil {
		meta = Meta{}
	}

	f := &fact.Fact{
		ID:        id,
		Namespace: r.ns,
		Name:      name,
		Meta:      meta,
		Body:      fact.Body(body),
		Source:    r.callSite(),
	}

	if err := r.comp.Register(f); err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.count++
	r.logger.Debug("fact registered",
		zap.String("fact", f.ID),
		zap.String("namespace", r.ns))

	if r.checker != nil {
		r.checker.CheckOne(f)
	}
}

// Formula registers a generative fact: its body runs once per generation
// with a deterministically seeded random source, and holds only when every
// generation holds. The first failing generation is reported with its
// index; later generations are not attempted.
func (r *Registrar) Formula(name string, meta Meta, body func(T, *rand.Rand) bool) {
	if body == nil {
		r.ordinal++
		r.errs = append(r.errs, fmt.Errorf("formula %q: body must not be nil", name))
		return
	}

	gens := r.generations
	seed := seedFor(fact.IdentityFor(r.ns, name, r.ordinal))

	r.register("", name, meta, func(t T) bool {
		for i := 0; i < gens; i++ {
			rng := rand.New(rand.NewSource(seed + int64(i)))
			ok := t.Fact(fmt.Sprintf("generation %d", i), nil, func(t T) bool {
				return body(t, rng)
			})
			if !ok {
				return false
			}
		}
		return true
	})
}

// seedFor derives a stable per-fact seed, so formula failures reproduce
// across runs and reloads.
func seedFor(id string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return int64(h.Sum64())
}

// callSite locates the registering caller. Script-driven registrars carry
// an explicit source instead, since the Go caller is interpreter plumbing.
func (r *Registrar) callSite() string {
	if r.source != "" {
		return r.source
	}
	// Skip callSite, register, and the exported wrapper.
	if _, file, line, ok := runtime.Caller(3); ok {
		return fmt.Sprintf("%s:%d", file, line)
	}
	return ""
}
