// Package query provides the Relation, an immutable query builder that
// serializes to a transport payload and lazily materializes its records
package query

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/perry-go/perry/internal/orm/record"
)

// Source is the entity type a Relation fetches from. It is implemented by
// schema.Model and avoids an import cycle between query and schema.
type Source interface {
	record.Model

	// Fetch dispatches a read for the relation through the type's adapter
	Fetch(ctx context.Context, r *Relation) ([]*record.Record, error)

	// Conditions returns the dynamic condition table built at registration
	Conditions() ConditionTable

	// NamedScope looks up a scope declared on the type
	NamedScope(name string) (ScopeFunc, bool)
}

// ScopeFunc applies a named scope to a relation
type ScopeFunc func(r *Relation, args ...interface{}) (*Relation, error)

// Deferred is a where fragment evaluated when the relation is serialized. It
// receives the relation's folded modifiers so nested fetches can honour them.
type Deferred func(ctx context.Context, modifiers map[string]interface{}) (interface{}, error)

// ModifierFunc is a modifier fragment evaluated when modifiers are folded
type ModifierFunc func() map[string]interface{}

// Modifier keys understood by the pipeline stages
const (
	ModifierFresh      = "fresh"
	ModifierResetCache = "reset_cache"
	ModifierNoop       = "noop"
)

// Relation is an immutable query descriptor plus its lazily materialized
// records. Every query method returns a new Relation.
type Relation struct {
	source Source

	selectValues []string
	groupValues  []string
	orderValues  []string
	joinsValues  []string
	whereValues  []interface{}
	havingValues []interface{}
	includes     *Includes

	limit  *int
	offset *int
	from   string
	rawSQL string
	fresh  *bool

	modifiers []interface{}

	mu      sync.Mutex
	payload Payload
	records []*record.Record
	loaded  bool
}

// New creates an empty relation on the given source
func New(source Source) *Relation {
	return &Relation{
		source:   source,
		includes: NewIncludes(),
	}
}

// Target returns the entity type the relation fetches
func (r *Relation) Target() Source {
	return r.source
}

// Clone creates a copy of the relation's clauses. Materialized records and
// the memoized payload are not carried over.
func (r *Relation) Clone() *Relation {
	clone := &Relation{
		source:       r.source,
		selectValues: make([]string, len(r.selectValues)),
		groupValues:  make([]string, len(r.groupValues)),
		orderValues:  make([]string, len(r.orderValues)),
		joinsValues:  make([]string, len(r.joinsValues)),
		whereValues:  make([]interface{}, len(r.whereValues)),
		havingValues: make([]interface{}, len(r.havingValues)),
		includes:     r.includes.Clone(),
		modifiers:    make([]interface{}, len(r.modifiers)),
		from:         r.from,
		rawSQL:       r.rawSQL,
	}

	copy(clone.selectValues, r.selectValues)
	copy(clone.groupValues, r.groupValues)
	copy(clone.orderValues, r.orderValues)
	copy(clone.joinsValues, r.joinsValues)
	copy(clone.whereValues, r.whereValues)
	copy(clone.havingValues, r.havingValues)
	copy(clone.modifiers, r.modifiers)

	if r.limit != nil {
		limit := *r.limit
		clone.limit = &limit
	}

	if r.offset != nil {
		offset := *r.offset
		clone.offset = &offset
	}

	if r.fresh != nil {
		fresh := *r.fresh
		clone.fresh = &fresh
	}

	return clone
}

// Select adds fields to the select list
func (r *Relation) Select(fields ...string) *Relation {
	c := r.Clone()
	c.selectValues = append(c.selectValues, fields...)
	return c
}

// Group adds group terms
func (r *Relation) Group(terms ...string) *Relation {
	c := r.Clone()
	c.groupValues = append(c.groupValues, terms...)
	return c
}

// Order adds order terms, e.g. "created_at DESC"
func (r *Relation) Order(terms ...string) *Relation {
	c := r.Clone()
	c.orderValues = append(c.orderValues, terms...)
	return c
}

// Joins adds join terms
func (r *Relation) Joins(terms ...string) *Relation {
	c := r.Clone()
	c.joinsValues = append(c.joinsValues, terms...)
	return c
}

// Having adds having fragments
func (r *Relation) Having(fragments ...interface{}) *Relation {
	c := r.Clone()
	for _, f := range fragments {
		if present(f) {
			c.havingValues = append(c.havingValues, f)
		}
	}
	return c
}

// Where adds condition fragments. A fragment is a map of field to value, an
// opaque string expression or a Deferred fragment. Nil and empty fragments
// are dropped.
func (r *Relation) Where(fragments ...interface{}) *Relation {
	c := r.Clone()
	for _, f := range fragments {
		if fn, ok := f.(func(context.Context, map[string]interface{}) (interface{}, error)); ok {
			f = Deferred(fn)
		}
		if present(f) {
			c.whereValues = append(c.whereValues, f)
		}
	}
	return c
}

// Limit replaces the limit
func (r *Relation) Limit(n int) *Relation {
	c := r.Clone()
	c.limit = &n
	return c
}

// Offset replaces the offset
func (r *Relation) Offset(n int) *Relation {
	c := r.Clone()
	c.offset = &n
	return c
}

// From replaces the from value
func (r *Relation) From(source string) *Relation {
	c := r.Clone()
	c.from = source
	return c
}

// SQL sets a raw query override. When set it alone determines the payload.
func (r *Relation) SQL(raw string) *Relation {
	c := r.Clone()
	c.rawSQL = raw
	return c
}

// Includes deep-merges association names into the eager load tree
func (r *Relation) Includes(specs ...interface{}) *Relation {
	c := r.Clone()
	c.includes = c.includes.Merge(NewIncludes(specs...))
	return c
}

// Modifiers pushes a modifier fragment: a map or a ModifierFunc. Passing nil
// clears every modifier.
func (r *Relation) Modifiers(fragment interface{}) *Relation {
	c := r.Clone()
	switch f := fragment.(type) {
	case nil:
		c.modifiers = nil
	case func() map[string]interface{}:
		c.modifiers = append(c.modifiers, ModifierFunc(f))
	default:
		c.modifiers = append(c.modifiers, f)
	}
	return c
}

// ClearModifiers removes every modifier fragment
func (r *Relation) ClearModifiers() *Relation {
	return r.Modifiers(nil)
}

// ModifiersValue folds the modifier fragments left to right into one map
func (r *Relation) ModifiersValue() map[string]interface{} {
	out := make(map[string]interface{})
	for _, fragment := range r.modifiers {
		var m map[string]interface{}
		switch f := fragment.(type) {
		case ModifierFunc:
			m = f()
		case map[string]interface{}:
			m = f
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Fresh marks the relation to bypass cached results. With no argument it
// marks the relation fresh.
func (r *Relation) Fresh(v ...bool) *Relation {
	val := true
	if len(v) > 0 {
		val = v[0]
	}
	c := r.Modifiers(map[string]interface{}{ModifierFresh: val})
	c.fresh = &val
	return c
}

// IsFresh reports whether the relation bypasses cached results
func (r *Relation) IsFresh() bool {
	if r.fresh != nil {
		return *r.fresh
	}
	return truthy(r.ModifiersValue()[ModifierFresh])
}

// Merge combines two relations. Single values of other win when set,
// multi-value clauses are concatenated and includes are deep-merged.
func (r *Relation) Merge(other *Relation) *Relation {
	c := r.Clone()
	if other == nil {
		return c
	}

	if other.limit != nil {
		limit := *other.limit
		c.limit = &limit
	}
	if other.offset != nil {
		offset := *other.offset
		c.offset = &offset
	}
	if other.from != "" {
		c.from = other.from
	}
	if other.rawSQL != "" {
		c.rawSQL = other.rawSQL
	}
	if other.fresh != nil {
		fresh := *other.fresh
		c.fresh = &fresh
	}

	c.selectValues = append(c.selectValues, other.selectValues...)
	c.groupValues = append(c.groupValues, other.groupValues...)
	c.orderValues = append(c.orderValues, other.orderValues...)
	c.joinsValues = append(c.joinsValues, other.joinsValues...)
	c.whereValues = append(c.whereValues, other.whereValues...)
	c.havingValues = append(c.havingValues, other.havingValues...)
	c.includes = c.includes.Merge(other.includes)
	c.modifiers = append(c.modifiers, other.modifiers...)

	return c
}

// IncludesValue returns the eager load tree
func (r *Relation) IncludesValue() *Includes {
	return r.includes
}

// WhereValues returns the raw where fragments, deferred ones unevaluated
func (r *Relation) WhereValues() []interface{} {
	out := make([]interface{}, len(r.whereValues))
	copy(out, r.whereValues)
	return out
}

// ToHash serializes the relation into its canonical payload. The result is
// memoized; deferred where fragments are evaluated on the first call.
func (r *Relation) ToHash(ctx context.Context) (Payload, error) {
	r.mu.Lock()
	if r.payload != nil {
		p := r.payload
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	p, err := r.buildPayload(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.payload == nil {
		r.payload = p
	}
	return r.payload, nil
}

func (r *Relation) buildPayload(ctx context.Context) (Payload, error) {
	if r.rawSQL != "" {
		return Payload{KeySQL: r.rawSQL}, nil
	}

	p := make(Payload)

	if len(r.selectValues) > 0 && !selectsEverything(r.selectValues) {
		p[KeySelect] = uniqStrings(r.selectValues)
	}
	if len(r.groupValues) > 0 {
		p[KeyGroup] = uniqStrings(r.groupValues)
	}
	if len(r.orderValues) > 0 {
		p[KeyOrder] = uniqStrings(r.orderValues)
	}
	if len(r.joinsValues) > 0 {
		p[KeyJoins] = uniqStrings(r.joinsValues)
	}

	where := make([]interface{}, 0, len(r.whereValues))
	for _, fragment := range r.whereValues {
		if d, ok := fragment.(Deferred); ok {
			v, err := d(ctx, r.ModifiersValue())
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate where fragment: %w", err)
			}
			if !present(v) {
				continue
			}
			fragment = v
		}
		where = append(where, fragment)
	}
	if len(where) > 0 {
		p[KeyWhere] = uniqValues(where)
	}

	if len(r.havingValues) > 0 {
		p[KeyHaving] = uniqValues(r.havingValues)
	}
	if r.limit != nil {
		p[KeyLimit] = *r.limit
	}
	if r.offset != nil {
		p[KeyOffset] = *r.offset
	}
	if r.from != "" {
		p[KeyFrom] = r.from
	}
	if !r.includes.IsEmpty() {
		p[KeyIncludes] = r.includes.Value()
	}

	return p, nil
}

// All materializes the relation. The first call dispatches one read through
// the target's adapter; later calls return the memoized records.
func (r *Relation) All(ctx context.Context) ([]*record.Record, error) {
	r.mu.Lock()
	if r.loaded {
		records := r.records
		r.mu.Unlock()
		return records, nil
	}
	r.mu.Unlock()

	records, err := r.source.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = records
	r.loaded = true
	return records, nil
}

// First returns the first matching record, or nil if there is none
func (r *Relation) First(ctx context.Context) (*record.Record, error) {
	records, err := r.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// SetRecords pre-seeds the materialized records so All skips dispatch. The
// assignment is ignored on a fresh relation.
func (r *Relation) SetRecords(records []*record.Record) {
	if r.IsFresh() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = records
	r.loaded = true
}

// IsLoaded reports whether the records are materialized
func (r *Relation) IsLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// String implements fmt.Stringer
func (r *Relation) String() string {
	name := "<nil>"
	if r.source != nil {
		name = r.source.Name()
	}
	if r.rawSQL != "" {
		return fmt.Sprintf("#<Relation %s sql: %q>", name, r.rawSQL)
	}
	parts := make([]string, 0, 4)
	if len(r.whereValues) > 0 {
		parts = append(parts, fmt.Sprintf("where: %d", len(r.whereValues)))
	}
	if r.limit != nil {
		parts = append(parts, fmt.Sprintf("limit: %d", *r.limit))
	}
	if r.offset != nil {
		parts = append(parts, fmt.Sprintf("offset: %d", *r.offset))
	}
	if !r.includes.IsEmpty() {
		parts = append(parts, "includes: "+r.includes.String())
	}
	return fmt.Sprintf("#<Relation %s {%s}>", name, strings.Join(parts, ", "))
}

func selectsEverything(fields []string) bool {
	for _, f := range fields {
		if strings.HasSuffix(f, "*") {
			return true
		}
	}
	return false
}

// present reports whether a fragment carries a constraint
func present(v interface{}) bool {
	switch f := v.(type) {
	case nil:
		return false
	case string:
		return f != ""
	case map[string]interface{}:
		return len(f) > 0
	case []interface{}:
		return len(f) > 0
	case Deferred:
		return f != nil
	default:
		return true
	}
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	default:
		return true
	}
}
