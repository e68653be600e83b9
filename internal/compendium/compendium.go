// Package compendium holds the process-wide registry of facts. The registry
// is an explicit object handed to collaborators, never package-level state,
// so multiple independent registries can coexist (one per REPL session, one
// per test).
package compendium

import (
	"fmt"
	"sort"
	"sync"

	"factual/internal/fact"
)

// Compendium is the authoritative collection of registered facts. At most
// one entry exists per identity; re-registration replaces. Iteration order
// is registration order, with replaced facts moving to the end.
//
// A single RWMutex guards all access. Fact bodies never run under the lock;
// callers snapshot what they need and release.
type Compendium struct {
	mu          sync.RWMutex
	order       []*fact.Fact
	byID        map[string]*fact.Fact
	lastChecked *fact.Fact
}

// New creates an empty compendium.
func New() *Compendium {
	return &Compendium{
		byID: make(map[string]*fact.Fact),
	}
}

// Register adds f to the registry. If a fact with the same identity already
// exists it is removed first, so the new version lands at the end of
// iteration order. The last-checked slot is untouched; only checking writes
// it.
func (c *Compendium) Register(f *fact.Fact) error {
	if f == nil {
		return fmt.Errorf("register: fact must not be nil")
	}
	if f.ID == "" {
		return fmt.Errorf("register: fact identity must not be empty")
	}
	if f.Namespace == "" {
		return fmt.Errorf("register %q: namespace must not be empty", f.ID)
	}
	if f.Body == nil {
		return fmt.Errorf("register %q: body must not be nil", f.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[f.ID]; exists {
		c.removeLocked(f.ID)
	}
	c.byID[f.ID] = f
	c.order = append(c.order, f)
	return nil
}

// Remove deletes the fact with the given identity. Removing an absent
// identity is a no-op.
func (c *Compendium) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Compendium) removeLocked(id string) bool {
	if _, exists := c.byID[id]; !exists {
		return false
	}
	delete(c.byID, id)
	for i, f := range c.order {
		if f.ID == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveNamespace deletes every fact owned by ns and reports how many were
// removed. An unknown namespace is a no-op.
func (c *Compendium) RemoveNamespace(ns string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	removed := 0
	for _, f := range c.order {
		if f.Namespace == ns {
			delete(c.byID, f.ID)
			removed++
			continue
		}
		kept = append(kept, f)
	}
	c.order = kept
	return removed
}

// Reset empties the registry. The last-checked slot survives; rechecking a
// forgotten fact is permitted.
func (c *Compendium) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.byID = make(map[string]*fact.Fact)
}

// AllFacts returns every registered fact in registration order.
func (c *Compendium) AllFacts() []*fact.Fact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*fact.Fact, len(c.order))
	copy(out, c.order)
	return out
}

// FactsInNamespace returns the facts owned by ns, in registration order.
func (c *Compendium) FactsInNamespace(ns string) []*fact.Fact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*fact.Fact
	for _, f := range c.order {
		if f.Namespace == ns {
			out = append(out, f)
		}
	}
	return out
}

// Get looks up a fact by identity.
func (c *Compendium) Get(id string) (*fact.Fact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.byID[id]
	return f, ok
}

// Namespaces returns the sorted set of namespaces that currently own facts.
func (c *Compendium) Namespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, f := range c.order {
		if !seen[f.Namespace] {
			seen[f.Namespace] = true
			out = append(out, f.Namespace)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered facts.
func (c *Compendium) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// SetLastChecked records f as the most recently checked fact. Every
// top-level check overwrites the slot, whatever its outcome.
func (c *Compendium) SetLastChecked(f *fact.Fact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastChecked = f
}

// LastChecked returns the most recently checked fact. Before any check has
// run it returns (nil, false).
func (c *Compendium) LastChecked() (*fact.Fact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastChecked == nil {
		return nil, false
	}
	return c.lastChecked, true
}
