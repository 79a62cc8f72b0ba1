// Package schema provides model descriptors for records backed by remote
// services: declared fields, associations, scopes and the read and write
// adapters a model dispatches through.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
)

// DefaultPrimaryKey is the identity field used unless SetPrimaryKey is called
const DefaultPrimaryKey = "id"

// AdapterNone removes an adapter when passed to ReadWith or WriteWith
const AdapterNone = "none"

// Model describes one entity type. It implements query.Source so relations
// can be built directly on it.
type Model struct {
	name       string
	fields     []string
	fieldSet   map[string]bool
	primaryKey string
	conditions query.ConditionTable

	mu           sync.RWMutex
	associations map[string]*Association
	assocOrder   []string
	scopes       *query.ScopeRegistry
	defaults     []query.FinderOptions

	readAdapter  *adapter.Adapter
	writeAdapter *adapter.Adapter

	registry *Registry
	parent   *Model
}

// NewModel creates an unregistered model. Names may be qualified with dots,
// e.g. "blog.Article"; the last segment is the base name.
func NewModel(name string, fields ...string) *Model {
	m := &Model{
		name:         name,
		primaryKey:   DefaultPrimaryKey,
		associations: make(map[string]*Association),
		scopes:       query.NewScopeRegistry(),
	}
	m.setFields(fields)
	return m
}

func (m *Model) setFields(fields []string) {
	m.fields = make([]string, 0, len(fields))
	m.fieldSet = make(map[string]bool, len(fields))
	for _, f := range fields {
		if m.fieldSet[f] {
			continue
		}
		m.fieldSet[f] = true
		m.fields = append(m.fields, f)
	}
	m.conditions = query.BuildConditionTable(m.fields)
}

// Name returns the qualified model name
func (m *Model) Name() string {
	return m.name
}

// BaseName returns the last segment of the model name
func (m *Model) BaseName() string {
	return baseName(m.name)
}

func baseName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// PrimaryKey returns the identity field
func (m *Model) PrimaryKey() string {
	return m.primaryKey
}

// SetPrimaryKey changes the identity field. The field must be declared.
func (m *Model) SetPrimaryKey(field string) error {
	if !m.fieldSet[field] {
		return ormerr.NewConfigurationError(m.name, fmt.Sprintf("cannot set primary key to undeclared field %q", field))
	}
	m.primaryKey = field
	return nil
}

// HasField reports whether the field is declared
func (m *Model) HasField(name string) bool {
	return m.fieldSet[name]
}

// Fields returns the declared fields in declaration order
func (m *Model) Fields() []string {
	out := make([]string, len(m.fields))
	copy(out, m.fields)
	return out
}

// Conditions returns the dynamic condition table for the declared fields
func (m *Model) Conditions() query.ConditionTable {
	return m.conditions
}

// Parent returns the model this one was derived from with Subtype, or nil
func (m *Model) Parent() *Model {
	return m.parent
}

// Registry returns the registry the model was registered in, or the default
// registry for unregistered models
func (m *Model) Registry() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.registry == nil {
		return defaultRegistry
	}
	return m.registry
}

// New builds a new unsaved record of this model
func (m *Model) New(attributes map[string]interface{}) *record.Record {
	return record.New(m, attributes)
}

// Adapters

// ReadWith sets the read adapter. When the model already has one of the same
// transport type the new contexts extend it; AdapterNone clears it.
func (m *Model) ReadWith(transport string, contexts ...adapter.Context) error {
	a, err := m.setupAdapter(m.ReadAdapter(), transport, contexts)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.readAdapter = a
	m.mu.Unlock()
	return nil
}

// WriteWith sets the write adapter, see ReadWith
func (m *Model) WriteWith(transport string, contexts ...adapter.Context) error {
	a, err := m.setupAdapter(m.WriteAdapter(), transport, contexts)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.writeAdapter = a
	m.mu.Unlock()
	return nil
}

// ConfigureRead layers configuration contexts onto the read adapter
func (m *Model) ConfigureRead(contexts ...adapter.Context) error {
	current := m.ReadAdapter()
	if current == nil {
		return ormerr.NewConfigurationError(m.name, "define a read adapter with ReadWith before configuring it")
	}
	a, err := current.Extend(contexts...)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.readAdapter = a
	m.mu.Unlock()
	return nil
}

// ConfigureWrite layers configuration contexts onto the write adapter
func (m *Model) ConfigureWrite(contexts ...adapter.Context) error {
	current := m.WriteAdapter()
	if current == nil {
		return ormerr.NewConfigurationError(m.name, "define a write adapter with WriteWith before configuring it")
	}
	a, err := current.Extend(contexts...)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.writeAdapter = a
	m.mu.Unlock()
	return nil
}

func (m *Model) setupAdapter(current *adapter.Adapter, transport string, contexts []adapter.Context) (*adapter.Adapter, error) {
	if transport == AdapterNone {
		return nil, nil
	}

	all := append([]adapter.Context{adapter.Config{Type: transport}}, contexts...)
	if current != nil && current.Config().Type == transport {
		return current.Extend(all...)
	}
	return adapter.New(all...)
}

// ReadAdapter returns the read adapter, nil when none is configured
func (m *Model) ReadAdapter() *adapter.Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readAdapter
}

// WriteAdapter returns the write adapter, nil when none is configured
func (m *Model) WriteAdapter() *adapter.Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writeAdapter
}

// Fetch dispatches a read for the relation through the read adapter
func (m *Model) Fetch(ctx context.Context, r *query.Relation) ([]*record.Record, error) {
	a := m.ReadAdapter()
	if a == nil {
		return nil, ormerr.NewConfigurationError(m.name, "no read adapter configured")
	}
	return a.Read(ctx, r)
}

// Reload refreshes a record's attributes from the read adapter. It does
// nothing for models without a read adapter.
func (m *Model) Reload(ctx context.Context, rec *record.Record) error {
	if m.ReadAdapter() == nil {
		return nil
	}

	fresh, err := m.Scoped().Where(map[string]interface{}{m.primaryKey: rec.ID()}).First(ctx)
	if err != nil {
		return err
	}
	if fresh == nil {
		return ormerr.NotFound(m.name, "with %s = %v", m.primaryKey, rec.ID())
	}
	return rec.SetAttributes(fresh.Attributes())
}

// Scopes

// Scope declares a named scope
func (m *Model) Scope(name string, fn query.ScopeFunc) *Model {
	m.scopes.Register(name, fn)
	return m
}

// ScopeOptions declares a named scope from static finder options
func (m *Model) ScopeOptions(name string, opts query.FinderOptions) *Model {
	return m.Scope(name, query.OptionsScope(opts))
}

// NamedScope looks up a declared scope
func (m *Model) NamedScope(name string) (query.ScopeFunc, bool) {
	return m.scopes.Get(name)
}

// ScopeNames returns the declared scope names
func (m *Model) ScopeNames() []string {
	return m.scopes.List()
}

// DefaultScope adds finder options applied by Scoped
func (m *Model) DefaultScope(opts query.FinderOptions) *Model {
	m.mu.Lock()
	m.defaults = append(m.defaults, opts)
	m.mu.Unlock()
	return m
}

// Scoped returns a relation with the default scopes applied
func (m *Model) Scoped() *query.Relation {
	m.mu.RLock()
	defaults := append([]query.FinderOptions(nil), m.defaults...)
	m.mu.RUnlock()

	r := query.New(m)
	for _, opts := range defaults {
		r = r.ApplyFinderOptions(opts)
	}
	return r
}

// Unscoped returns a bare relation ignoring default scopes
func (m *Model) Unscoped() *query.Relation {
	return query.New(m)
}

// Where starts a scoped relation with where fragments
func (m *Model) Where(fragments ...interface{}) *query.Relation {
	return m.Scoped().Where(fragments...)
}

// Includes starts a scoped relation with eager loaded associations
func (m *Model) Includes(specs ...interface{}) *query.Relation {
	return m.Scoped().Includes(specs...)
}

// All fetches every record in the default scope
func (m *Model) All(ctx context.Context) ([]*record.Record, error) {
	return m.Scoped().All(ctx)
}

// First fetches the first record in the default scope
func (m *Model) First(ctx context.Context) (*record.Record, error) {
	return m.Scoped().First(ctx)
}

// Find fetches one record by primary key
func (m *Model) Find(ctx context.Context, id interface{}) (*record.Record, error) {
	return m.Scoped().Find(ctx, id)
}

// FindMany fetches records by primary key, failing unless all are found
func (m *Model) FindMany(ctx context.Context, ids ...interface{}) ([]*record.Record, error) {
	return m.Scoped().FindMany(ctx, ids...)
}

// Subtype derives a model that inherits fields, associations, scopes and
// adapters, and registers it in the receiver's registry. When both share a
// base name the subtype becomes the receiver's latest extension.
func (m *Model) Subtype(name string) (*Model, error) {
	m.mu.RLock()
	child := &Model{
		name:         name,
		primaryKey:   m.primaryKey,
		associations: make(map[string]*Association, len(m.associations)),
		scopes:       query.NewScopeRegistry(),
		defaults:     append([]query.FinderOptions(nil), m.defaults...),
		readAdapter:  m.readAdapter,
		writeAdapter: m.writeAdapter,
		parent:       m,
	}
	child.setFields(m.fields)
	for _, assocName := range m.assocOrder {
		child.addAssociation(m.associations[assocName].kind, assocName, m.associations[assocName].options)
	}
	m.mu.RUnlock()

	for _, scopeName := range m.scopes.List() {
		fn, _ := m.scopes.Get(scopeName)
		child.scopes.Register(scopeName, fn)
	}

	if err := m.Registry().Register(child); err != nil {
		return nil, err
	}
	return child, nil
}

// String returns the model name
func (m *Model) String() string {
	return m.name
}
