// Package record provides the entity type that carries a remote record's
// field values, identity and persistence state.
package record

import (
	"fmt"

	"github.com/perry-go/perry/internal/orm/ormerr"
)

// Model describes the entity type a record belongs to. It is implemented by
// schema.Model; record only needs the identity and field allow-list.
type Model interface {
	// Name is the registered type name, e.g. "blog.Article"
	Name() string
	// BaseName is the last segment of the type's own name, e.g. "Comment"
	// for "blog.Comment"
	BaseName() string
	// PrimaryKey is the name of the identity field
	PrimaryKey() string
	// HasField reports whether the field is declared on the type
	HasField(name string) bool
}

// Record holds the field values of one remote record
type Record struct {
	model      Model
	attributes map[string]interface{}

	newRecord bool
	saved     bool
	frozen    bool

	errors       map[string]interface{}
	associations map[string]interface{}

	// WriteOptions carries per-record transport options (e.g. default_options
	// merged into a REST post body)
	WriteOptions map[string]interface{}
}

// New creates a new, unsaved record. Undeclared attributes are dropped.
func New(model Model, attributes map[string]interface{}) *Record {
	r := &Record{
		model:        model,
		attributes:   make(map[string]interface{}),
		newRecord:    true,
		errors:       make(map[string]interface{}),
		associations: make(map[string]interface{}),
	}
	r.assign(attributes, false)
	return r
}

// FromStore creates a record from data returned by a transport. The record
// is marked as not new. A nil map yields a nil record.
func FromStore(model Model, attributes map[string]interface{}) *Record {
	if attributes == nil {
		return nil
	}
	r := New(model, attributes)
	r.newRecord = false
	return r
}

// Model returns the record's type descriptor
func (r *Record) Model() Model {
	return r.model
}

// Get returns the value of a field, or nil if unset
func (r *Record) Get(field string) interface{} {
	return r.attributes[field]
}

// Has reports whether the field is set on the record
func (r *Record) Has(field string) bool {
	_, ok := r.attributes[field]
	return ok
}

// Set assigns a declared field. Undeclared fields are ignored.
func (r *Record) Set(field string, value interface{}) error {
	return r.SetAttributes(map[string]interface{}{field: value})
}

// SetForce assigns a field even if it is not declared on the model
func (r *Record) SetForce(field string, value interface{}) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot set %s on %s", ormerr.ErrFrozenRecord, field, r.modelName())
	}
	r.attributes[field] = value
	return nil
}

// SetAttributes assigns several declared fields at once
func (r *Record) SetAttributes(attributes map[string]interface{}) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot modify %s", ormerr.ErrFrozenRecord, r.modelName())
	}
	r.assign(attributes, false)
	return nil
}

// ReplaceAttributes discards the current values and assigns new ones, used
// when reloading a record from its read adapter
func (r *Record) ReplaceAttributes(attributes map[string]interface{}) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot reload %s", ormerr.ErrFrozenRecord, r.modelName())
	}
	r.attributes = make(map[string]interface{}, len(attributes))
	r.assign(attributes, false)
	return nil
}

func (r *Record) assign(attributes map[string]interface{}, force bool) {
	for k, v := range attributes {
		if force || r.model == nil || r.model.HasField(k) {
			r.attributes[k] = v
		}
	}
}

// Attributes returns a copy of the record's field values
func (r *Record) Attributes() map[string]interface{} {
	out := make(map[string]interface{}, len(r.attributes))
	for k, v := range r.attributes {
		out[k] = v
	}
	return out
}

// PrimaryKey returns the name of the identity field
func (r *Record) PrimaryKey() string {
	if r.model == nil {
		return "id"
	}
	return r.model.PrimaryKey()
}

// ID returns the primary key value
func (r *Record) ID() interface{} {
	return r.attributes[r.PrimaryKey()]
}

// SetID assigns the primary key value regardless of the allow-list
func (r *Record) SetID(id interface{}) error {
	return r.SetForce(r.PrimaryKey(), id)
}

// IsNew reports whether the record has not been persisted yet
func (r *Record) IsNew() bool {
	return r.newRecord
}

// SetNew sets the new-record flag
func (r *Record) SetNew(v bool) {
	r.newRecord = v
}

// IsSaved reports whether the last write succeeded
func (r *Record) IsSaved() bool {
	return r.saved
}

// SetSaved sets the saved flag
func (r *Record) SetSaved(v bool) {
	r.saved = v
}

// Errors returns the record's error map. The map is live.
func (r *Record) Errors() map[string]interface{} {
	return r.errors
}

// AddErrors merges errors into the record's error map
func (r *Record) AddErrors(errs map[string]interface{}) {
	for k, v := range errs {
		r.errors[k] = v
	}
}

// ClearErrors empties the error map
func (r *Record) ClearErrors() {
	r.errors = make(map[string]interface{})
}

// Freeze prevents any further mutation or persistence of the record
func (r *Record) Freeze() {
	r.frozen = true
}

// IsFrozen reports whether Freeze was called
func (r *Record) IsFrozen() bool {
	return r.frozen
}

// Association returns a previously assigned association value
func (r *Record) Association(name string) (interface{}, bool) {
	v, ok := r.associations[name]
	return v, ok
}

// SetAssociation assigns an association value, e.g. from eager loading
func (r *Record) SetAssociation(name string, value interface{}) {
	r.associations[name] = value
}

// ClearAssociations drops every memoized association value
func (r *Record) ClearAssociations() {
	r.associations = make(map[string]interface{})
}

// String implements fmt.Stringer
func (r *Record) String() string {
	return fmt.Sprintf("#<%s %v>", r.modelName(), r.attributes)
}

func (r *Record) modelName() string {
	if r.model == nil {
		return "Record"
	}
	return r.model.Name()
}
