package query

import (
	"fmt"
	"sort"
	"sync"

	"github.com/perry-go/perry/internal/orm/ormerr"
)

// ScopeRegistry holds the named scopes declared on a model
type ScopeRegistry struct {
	mu     sync.RWMutex
	scopes map[string]ScopeFunc
}

// NewScopeRegistry creates a new scope registry
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{
		scopes: make(map[string]ScopeFunc),
	}
}

// Register registers a scope, replacing any scope with the same name
func (sr *ScopeRegistry) Register(name string, fn ScopeFunc) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.scopes[name] = fn
}

// Get retrieves a scope by name
func (sr *ScopeRegistry) Get(name string) (ScopeFunc, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	fn, ok := sr.scopes[name]
	return fn, ok
}

// List returns all registered scope names, sorted
func (sr *ScopeRegistry) List() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	names := make([]string, 0, len(sr.scopes))
	for name := range sr.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OptionsScope returns a scope applying static finder options
func OptionsScope(opts FinderOptions) ScopeFunc {
	return func(r *Relation, _ ...interface{}) (*Relation, error) {
		return r.ApplyFinderOptions(opts), nil
	}
}

// LambdaScope returns a scope whose finder options depend on its arguments
func LambdaScope(fn func(args ...interface{}) FinderOptions) ScopeFunc {
	return func(r *Relation, args ...interface{}) (*Relation, error) {
		return r.ApplyFinderOptions(fn(args...)), nil
	}
}

// Scope applies a named scope declared on the relation's target
func (r *Relation) Scope(name string, args ...interface{}) (*Relation, error) {
	if r.source == nil {
		return nil, fmt.Errorf("%w: %s", ormerr.ErrNoSuchQueryMethod, name)
	}
	fn, ok := r.source.NamedScope(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ormerr.ErrNoSuchQueryMethod, name, r.source.Name())
	}
	return fn(r, args...)
}

// Condition applies a dynamic <field>_<condition> method, e.g.
// r.Condition("age_gt", 5) adds the fragment {"age_greater_than": 5}
func (r *Relation) Condition(method string, value interface{}) (*Relation, error) {
	if r.source == nil {
		return nil, fmt.Errorf("%w: %s", ormerr.ErrNoSuchQueryMethod, method)
	}
	key, err := r.source.Conditions().Lookup(method)
	if err != nil {
		return nil, err
	}
	return r.Where(map[string]interface{}{key: value}), nil
}

// Search applies every known condition method in conditions. Unknown names
// are skipped.
func (r *Relation) Search(conditions map[string]interface{}) *Relation {
	c := r.Clone()
	if r.source == nil {
		return c
	}
	table := r.source.Conditions()
	for _, method := range sortedKeys(conditions) {
		key, err := table.Lookup(method)
		if err != nil {
			continue
		}
		c = c.Where(map[string]interface{}{key: conditions[method]})
	}
	return c
}

// ResetCache asks the caching middleware to clear its store before running
// the query
func (r *Relation) ResetCache() *Relation {
	return r.Modifiers(map[string]interface{}{ModifierResetCache: true})
}

// Noop asks the caching middleware to skip dispatch entirely
func (r *Relation) Noop() *Relation {
	return r.Modifiers(map[string]interface{}{ModifierNoop: true})
}
