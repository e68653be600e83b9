// Package selector defines the ways callers pick facts out of the registry:
// everything, a namespace, or metadata matchers (tag, name substring, name
// regexp, arbitrary predicate). Selectors form a closed set; the
// caller-facing layers construct them, either directly or through Parse.
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"factual/internal/fact"
)

// Selector picks facts. The set of implementations is closed: All,
// Namespace, Tag, Substring, Pattern and Predicate.
type Selector interface {
	fmt.Stringer
	isSelector()
}

// All selects every registered fact.
type All struct{}

// Namespace selects the facts owned by one namespace, verbatim. It is not a
// metadata matcher; resolution pulls the namespace's facts directly.
type Namespace struct {
	Name string
}

// Tag selects facts whose metadata has a truthy value under Key. Facts
// lacking the key simply do not match.
type Tag struct {
	Key string
}

// Substring selects named facts whose name contains Text (case-sensitive).
type Substring struct {
	Text string
}

// Pattern selects facts whose name matches Re anywhere.
type Pattern struct {
	Re *regexp.Regexp
}

// Predicate selects facts for which Fn returns true given the fact's
// metadata. A panicking predicate propagates to the caller; it is a design
// error in the predicate, not a non-match. Predicate selectors are
// constructible only through the Go API.
type Predicate struct {
	Fn func(fact.Metadata) bool
}

func (All) isSelector()       {}
func (Namespace) isSelector() {}
func (Tag) isSelector()       {}
func (Substring) isSelector() {}
func (Pattern) isSelector()   {}
func (Predicate) isSelector() {}

func (All) String() string         { return ":all" }
func (s Namespace) String() string { return s.Name }
func (s Tag) String() string       { return ":" + s.Key }
func (s Substring) String() string { return "name:" + s.Text }
func (s Pattern) String() string   { return "/" + s.Re.String() + "/" }
func (Predicate) String() string   { return "<predicate>" }

// Matches reports whether sel selects f. All matches everything and
// Namespace compares the owning namespace; the remaining kinds consult the
// fact's metadata or name.
func Matches(sel Selector, f *fact.Fact) bool {
	switch s := sel.(type) {
	case All:
		return true
	case Namespace:
		return f.Namespace == s.Name
	case Tag:
		return f.HasTag(s.Key)
	case Substring:
		return strings.Contains(f.Name, s.Text)
	case Pattern:
		return s.Re.MatchString(f.Name)
	case Predicate:
		return s.Fn(f.Meta)
	default:
		return false
	}
}

// Registry is the read surface Fetch needs from the fact registry.
type Registry interface {
	AllFacts() []*fact.Fact
	FactsInNamespace(ns string) []*fact.Fact
}

// Fetch resolves selectors against reg. With no selectors it returns the
// facts of currentNS, the caller's ambient namespace. With selectors it
// resolves each argument independently (:all first, namespace references
// as verbatim pulls, metadata matchers over the whole registry) and
// concatenates the results in argument order.
//
// Duplicates are NOT removed: a fact matched by two selector arguments
// appears twice and will be checked twice. A single :all cannot produce
// duplicates; mixing :all with other selectors can.
func Fetch(reg Registry, currentNS string, sels ...Selector) []*fact.Fact {
	if len(sels) == 0 {
		return reg.FactsInNamespace(currentNS)
	}

	var out []*fact.Fact
	for _, sel := range sels {
		switch s := sel.(type) {
		case All:
			out = append(out, reg.AllFacts()...)
		case Namespace:
			out = append(out, reg.FactsInNamespace(s.Name)...)
		default:
			for _, f := range reg.AllFacts() {
				if Matches(sel, f) {
					out = append(out, f)
				}
			}
		}
	}
	return out
}

// Parse turns one command-line token into a selector:
//
//	:all        every fact
//	:slow       facts tagged "slow"
//	/re/        facts whose name matches the regexp
//	name:text   facts whose name contains text
//	ns:pkg.x    facts of namespace pkg.x
//	pkg.x       bare tokens are namespace references
//
// Predicate selectors have no string form.
func Parse(token string) (Selector, error) {
	switch {
	case token == "":
		return nil, fmt.Errorf("selector must not be empty")
	case token == ":all":
		return All{}, nil
	case strings.HasPrefix(token, ":"):
		key := token[1:]
		if key == "" {
			return nil, fmt.Errorf("selector %q: missing tag name", token)
		}
		return Tag{Key: key}, nil
	case len(token) >= 2 && strings.HasPrefix(token, "/") && strings.HasSuffix(token, "/"):
		re, err := regexp.Compile(token[1 : len(token)-1])
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", token, err)
		}
		return Pattern{Re: re}, nil
	case strings.HasPrefix(token, "name:"):
		text := strings.TrimPrefix(token, "name:")
		if text == "" {
			return nil, fmt.Errorf("selector %q: missing name text", token)
		}
		return Substring{Text: text}, nil
	case strings.HasPrefix(token, "ns:"):
		ns := strings.TrimPrefix(token, "ns:")
		if ns == "" {
			return nil, fmt.Errorf("selector %q: missing namespace", token)
		}
		return Namespace{Name: ns}, nil
	default:
		return Namespace{Name: token}, nil
	}
}

// ParseAll parses each token with Parse, preserving order.
func ParseAll(tokens []string) ([]Selector, error) {
	sels := make([]Selector, 0, len(tokens))
	for _, tok := range tokens {
		sel, err := Parse(tok)
		if err != nil {
			return nil, err
		}
		sels = append(sels, sel)
	}
	return sels, nil
}
