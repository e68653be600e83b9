package fact

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
)

// Metadata holds the key/value pairs attached to a fact at definition time.
// Keys are arbitrary strings; values are arbitrary. Tag-style keys map to
// boolean true.
type Metadata map[string]any

// Truthy reports whether a metadata value selects its fact. Only nil and
// false are falsy; every other value (zero numbers and empty strings
// included) is truthy.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// Check is the assertion surface handed to a fact body while it runs. The
// concrete implementation records failures and reports them; a body's
// overall outcome is its return value AND the absence of recorded failures.
type Check interface {
	// Equal records a failure with a diff when expected and actual differ.
	Equal(expected, actual any, opts ...cmp.Option) bool
	// Truthy records a failure unless got is truthy (nil/false are falsy).
	Truthy(got any) bool
	// Falsey records a failure unless got is nil or false.
	Falsey(got any) bool
	// NoError records a failure when err is non-nil.
	NoError(err error) bool
	// Failf records an explicit failure.
	Failf(format string, args ...any)
	// Logf emits a note visible at verbose print levels.
	Logf(format string, args ...any)
	// Fact runs a nested fact inline. Nested facts are not registered and
	// do not touch last-checked state; their outcome folds into the parent.
	Fact(name string, meta Metadata, body Body) bool
}

// Body is the executable part of a fact. It performs its checks against the
// supplied Check context and returns whether the fact held.
type Body func(t Check) bool

// Fact is a single registered, checkable statement about the system.
type Fact struct {
	// ID is the registry identity. Registering a fact whose ID is already
	// present replaces the existing entry.
	ID string
	// Namespace is the dotted name of the owning namespace.
	Namespace string
	// Name is the optional human-readable description. Anonymous facts
	// leave it empty.
	Name string
	// Meta carries the fact's metadata, consulted by selectors.
	Meta Metadata
	// Body performs the fact's checks.
	Body Body
	// Source locates the registration site, for reporting.
	Source string
}

// String returns the fact's display label: its name when it has one,
// otherwise its identity.
func (f *Fact) String() string {
	if f.Name != "" {
		return fmt.Sprintf("%s: %s", f.Namespace, f.Name)
	}
	return f.ID
}

// HasTag reports whether key is present and truthy in the fact's metadata.
func (f *Fact) HasTag(key string) bool {
	return Truthy(f.Meta[key])
}

// IdentityFor derives a registry identity. Named facts key on namespace and
// name, so edits to a body replace the old entry. Anonymous facts key on
// their registration ordinal within the namespace, which is stable across
// reloads of an unchanged file.
func IdentityFor(namespace, name string, ordinal int) string {
	if name != "" {
		return namespace + "/" + name
	}
	return fmt.Sprintf("%s#%d", namespace, ordinal)
}
