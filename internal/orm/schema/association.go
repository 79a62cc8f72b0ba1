package schema

import (
	"fmt"
	"regexp"

	"github.com/go-openapi/inflect"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
)

// Kind is the type of an association
type Kind int

const (
	KindBelongsTo Kind = iota
	KindHasOne
	KindHasMany
	KindHasManyThrough
)

// String returns the declaration name of the kind
func (k Kind) String() string {
	switch k {
	case KindBelongsTo:
		return "belongs_to"
	case KindHasOne:
		return "has_one"
	case KindHasMany:
		return "has_many"
	case KindHasManyThrough:
		return "has_many_through"
	default:
		return "unknown"
	}
}

// AssociationOptions configures an association declaration
type AssociationOptions struct {
	// ClassName is the registered name of the target model
	ClassName string

	// ForeignKey overrides the conventional foreign key
	ForeignKey string
	// PrimaryKey overrides the key the foreign key points at
	PrimaryKey string

	// Polymorphic marks a belongs_to whose target type is read from
	// <name>_type on the record
	Polymorphic bool
	// PolymorphicNamespace is prefixed to discriminator values before lookup
	PolymorphicNamespace string

	// As names the polymorphic interface a has_one or has_many fills
	As string

	// Through names the proxy association of a has_many through
	Through string
	// Source names the association on the proxy's target when it differs
	// from the association name
	Source string
	// SourceType picks the target type of a polymorphic source association
	SourceType string

	// Finder adds static constraints to the association's scope
	Finder query.FinderOptions
	// FinderFunc adds constraints computed from the owning record. An
	// association with a FinderFunc cannot be eager loaded.
	FinderFunc func(rec *record.Record) query.FinderOptions
}

// Association is an immutable relationship declaration owned by a model
type Association struct {
	kind    Kind
	name    string
	source  *Model
	options AssociationOptions
}

// BelongsTo declares that records of m carry a foreign key to a target
func (m *Model) BelongsTo(name string, opts AssociationOptions) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addAssociation(KindBelongsTo, name, opts)
	return m
}

// HasOne declares a singular association whose target carries the foreign key
func (m *Model) HasOne(name string, opts AssociationOptions) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addAssociation(KindHasOne, name, opts)
	return m
}

// HasMany declares a collection association. Setting Through makes it a
// has_many through another association.
func (m *Model) HasMany(name string, opts AssociationOptions) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind := KindHasMany
	if opts.Through != "" {
		kind = KindHasManyThrough
	}
	m.addAssociation(kind, name, opts)
	return m
}

func (m *Model) addAssociation(kind Kind, name string, opts AssociationOptions) {
	if _, exists := m.associations[name]; !exists {
		m.assocOrder = append(m.assocOrder, name)
	}
	m.associations[name] = &Association{kind: kind, name: name, source: m, options: opts}
}

// Association looks up a declared association
func (m *Model) Association(name string) (*Association, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.associations[name]
	return a, ok
}

// Associations returns the declared associations in declaration order
func (m *Model) Associations() []*Association {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Association, 0, len(m.assocOrder))
	for _, name := range m.assocOrder {
		out = append(out, m.associations[name])
	}
	return out
}

// Kind returns the association kind
func (a *Association) Kind() Kind { return a.kind }

// Name returns the association name
func (a *Association) Name() string { return a.name }

// Source returns the model the association is declared on
func (a *Association) Source() *Model { return a.source }

// Options returns the declaration options
func (a *Association) Options() AssociationOptions { return a.options }

// IsCollection reports whether the association yields many records
func (a *Association) IsCollection() bool {
	return a.kind == KindHasMany || a.kind == KindHasManyThrough
}

// IsHas reports whether the target carries the foreign key
func (a *Association) IsHas() bool {
	return a.kind != KindBelongsTo
}

// IsPolymorphic reports whether the association crosses several target types
func (a *Association) IsPolymorphic() bool {
	switch a.kind {
	case KindBelongsTo:
		return a.options.Polymorphic
	case KindHasManyThrough:
		return false
	default:
		return a.options.As != ""
	}
}

// EagerLoadable reports whether the association can be loaded for a batch
// of records in one dispatch
func (a *Association) EagerLoadable() bool {
	if a.options.FinderFunc != nil {
		return false
	}
	return !(a.kind == KindBelongsTo && a.options.Polymorphic)
}

// ForeignKey returns the foreign key field. belongs_to uses <name>_id, has
// associations use <as>_id or the underscored source base name.
func (a *Association) ForeignKey() string {
	if a.options.ForeignKey != "" {
		return a.options.ForeignKey
	}
	switch {
	case a.kind == KindBelongsTo:
		return a.name + "_id"
	case a.options.As != "":
		return a.options.As + "_id"
	default:
		return inflect.Underscore(a.source.BaseName()) + "_id"
	}
}

// PolymorphicType returns the discriminator field
func (a *Association) PolymorphicType() string {
	if a.kind == KindBelongsTo {
		return a.name + "_type"
	}
	return a.options.As + "_type"
}

// PrimaryKey returns the key the foreign key points at: the target's
// primary key for belongs_to, the source's for has associations
func (a *Association) PrimaryKey(rec *record.Record) (string, error) {
	if a.options.PrimaryKey != "" {
		return a.options.PrimaryKey, nil
	}
	if a.IsHas() {
		return a.source.PrimaryKey(), nil
	}
	target, err := a.TargetModel(rec)
	if err != nil {
		return "", err
	}
	return target.PrimaryKey(), nil
}

// PrimaryKeyForType is PrimaryKey with the polymorphic type given directly
func (a *Association) PrimaryKeyForType(discriminator string) (string, error) {
	if a.options.PrimaryKey != "" {
		return a.options.PrimaryKey, nil
	}
	if a.IsHas() {
		return a.source.PrimaryKey(), nil
	}
	target, err := a.TargetModelOfType(discriminator)
	if err != nil {
		return "", err
	}
	return target.PrimaryKey(), nil
}

// TargetModel resolves the model the association returns for rec. A
// polymorphic belongs_to reads the discriminator from rec; rec may be nil
// for every other association.
func (a *Association) TargetModel(rec *record.Record) (*Model, error) {
	if a.kind == KindHasManyThrough {
		return a.throughTarget()
	}

	if a.options.Polymorphic && rec != nil {
		raw := rec.Get(a.PolymorphicType())
		if raw == nil || fmt.Sprint(raw) == "" {
			return nil, fmt.Errorf("%w: %s.%s has no %s", ormerr.ErrPolymorphicTypeMissing,
				a.source.Name(), a.name, a.PolymorphicType())
		}
		return a.TargetModelOfType(fmt.Sprint(raw))
	}

	return a.TargetModelOfType("")
}

var typeIdentifier = regexp.MustCompile(`^[a-zA-Z]\w*`)

// TargetModelOfType resolves the target model, using discriminator as the
// polymorphic type when it is not empty. The discriminator is reduced to its
// leading identifier before lookup.
func (a *Association) TargetModelOfType(discriminator string) (*Model, error) {
	if a.kind == KindHasManyThrough {
		return a.throughTarget()
	}

	reg := a.source.Registry()

	if discriminator != "" {
		typeName := typeIdentifier.FindString(discriminator)
		if a.options.PolymorphicNamespace != "" {
			typeName = a.options.PolymorphicNamespace + "." + typeName
		}
		target, ok := reg.Get(typeName)
		if !ok {
			return nil, fmt.Errorf("%w: %q for %s.%s", ormerr.ErrPolymorphicAssociationType,
				typeName, a.source.Name(), a.name)
		}
		return reg.ResolveLeaf(target), nil
	}

	if a.options.ClassName == "" {
		return nil, ormerr.NewConfigurationError(a.source.Name()+"."+a.name, "class name required for association declaration")
	}
	target, ok := reg.Get(a.options.ClassName)
	if !ok {
		return nil, ormerr.NewConfigurationError(a.source.Name()+"."+a.name,
			fmt.Sprintf("class %q is not registered", a.options.ClassName))
	}
	return reg.ResolveLeaf(target), nil
}

// ProxyAssociation returns the association a has_many through travels first
func (a *Association) ProxyAssociation() (*Association, error) {
	if a.kind != KindHasManyThrough {
		return nil, fmt.Errorf("%w: %s.%s is not a through association", ormerr.ErrAssociationNotFound, a.source.Name(), a.name)
	}
	proxy, ok := a.source.Association(a.options.Through)
	if !ok {
		return nil, fmt.Errorf("%w: has_many through %q is not an association on %s",
			ormerr.ErrAssociationNotFound, a.options.Through, a.source.Name())
	}
	return proxy, nil
}

// TargetAssociation returns the association on the proxy's target that a
// has_many through ends with
func (a *Association) TargetAssociation() (*Association, error) {
	proxy, err := a.ProxyAssociation()
	if err != nil {
		return nil, err
	}
	proxyTarget, err := proxy.TargetModel(nil)
	if err != nil {
		return nil, err
	}
	if target, ok := proxyTarget.Association(a.name); ok {
		return target, nil
	}
	if a.options.Source != "" {
		if target, ok := proxyTarget.Association(a.options.Source); ok {
			return target, nil
		}
	}

	missing := a.options.Source
	if missing == "" {
		missing = a.name
	}
	return nil, fmt.Errorf("%w: has_many through %q is not an association on %s",
		ormerr.ErrAssociationNotFound, missing, proxyTarget.Name())
}

func (a *Association) throughTarget() (*Model, error) {
	target, err := a.TargetAssociation()
	if err != nil {
		return nil, err
	}
	return target.TargetModelOfType(a.options.SourceType)
}

// FinderOptions returns the static finder options merged with those computed
// from rec
func (a *Association) FinderOptions(rec *record.Record) query.FinderOptions {
	opts := a.options.Finder
	if a.options.FinderFunc != nil && rec != nil {
		opts = mergeFinderOptions(opts, a.options.FinderFunc(rec))
	}
	return opts
}

// BaseScope returns the target's scoped relation with the association's
// finder options applied
func (a *Association) BaseScope(rec *record.Record) (*query.Relation, error) {
	target, err := a.TargetModel(rec)
	if err != nil {
		return nil, err
	}
	return target.Scoped().ApplyFinderOptions(a.FinderOptions(rec)), nil
}

// String returns a short description of the association
func (a *Association) String() string {
	return fmt.Sprintf("%s %s.%s", a.kind, a.source.Name(), a.name)
}

func mergeFinderOptions(base, over query.FinderOptions) query.FinderOptions {
	out := base
	out.Select = append(append([]string(nil), base.Select...), over.Select...)
	out.Group = append(append([]string(nil), base.Group...), over.Group...)
	out.Order = append(append([]string(nil), base.Order...), over.Order...)
	out.Joins = append(append([]string(nil), base.Joins...), over.Joins...)
	out.Where = append(append([]interface{}(nil), base.Where...), over.Where...)
	out.Having = append(append([]interface{}(nil), base.Having...), over.Having...)
	if over.Conditions != nil {
		out.Conditions = over.Conditions
	}
	if over.Limit != nil {
		out.Limit = over.Limit
	}
	if over.Offset != nil {
		out.Offset = over.Offset
	}
	if over.From != "" {
		out.From = over.From
	}
	if over.Includes != nil {
		out.Includes = over.Includes
	}
	if over.Search != nil {
		out.Search = over.Search
	}
	if over.SQL != "" {
		out.SQL = over.SQL
	}
	if over.Modifiers != nil {
		out.Modifiers = over.Modifiers
	}
	if over.Fresh != nil {
		out.Fresh = over.Fresh
	}
	return out
}
