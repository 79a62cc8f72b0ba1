package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps model names to models and tracks which models extend which.
// It is what polymorphic discriminators and association class names are
// resolved against.
type Registry struct {
	models     map[string]*Model
	extensions map[string][]string
	mu         sync.RWMutex
}

var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		models:     make(map[string]*Model),
		extensions: make(map[string][]string),
	}
}

// Default returns the process-wide registry used by models that were never
// registered explicitly
func Default() *Registry {
	return defaultRegistry
}

// Define creates a model and registers it
func (r *Registry) Define(name string, fields ...string) (*Model, error) {
	m := NewModel(name, fields...)
	if err := r.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Register adds a model. A model derived with Subtype whose base name matches
// its parent's is recorded as the parent's latest extension.
func (r *Registry) Register(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.name]; exists {
		return fmt.Errorf("model %s is already registered", m.name)
	}

	m.mu.Lock()
	m.registry = r
	m.mu.Unlock()

	r.models[m.name] = m
	if m.parent != nil && m.parent.BaseName() == m.BaseName() {
		r.extensions[m.parent.name] = append(r.extensions[m.parent.name], m.name)
	}
	return nil
}

// Get retrieves a model by name
func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	return m, ok
}

// List returns the registered model names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns the names of the models registered as extensions of
// name, oldest first
func (r *Registry) Extensions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.extensions[name]...)
}

// ResolveLeaf follows the extension map from m to its most recently
// registered extension
func (r *Registry) ResolveLeaf(m *Model) *Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for !seen[m.name] {
		seen[m.name] = true
		exts := r.extensions[m.name]
		if len(exts) == 0 {
			break
		}
		next, ok := r.models[exts[len(exts)-1]]
		if !ok {
			break
		}
		m = next
	}
	return m
}

// Reset removes every model and extension
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]*Model)
	r.extensions = make(map[string][]string)
}
