package relationships

import (
	"context"
	"fmt"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/schema"
)

// Lookup finds a declared association on the record's model
func Lookup(rec *record.Record, name string) (*schema.Association, error) {
	model, ok := rec.Model().(*schema.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no association declarations", ormerr.ErrAssociationNotFound, rec)
	}
	assoc, ok := model.Association(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ormerr.ErrAssociationNotFound, name, model.Name())
	}
	return assoc, nil
}

// Load returns the value of rec's association: a *query.Relation for
// collections, a *record.Record (possibly nil) otherwise. The value is
// memoized on the record, so eager loaded values are returned without a
// dispatch.
func Load(ctx context.Context, rec *record.Record, name string) (interface{}, error) {
	if v, ok := rec.Association(name); ok {
		return v, nil
	}

	assoc, err := Lookup(rec, name)
	if err != nil {
		return nil, err
	}

	scoped, err := Scope(assoc, rec)
	if err != nil {
		return nil, err
	}

	var value interface{}
	if scoped != nil && len(scoped.WhereValues()) > 0 {
		if assoc.IsCollection() {
			value = scoped
		} else {
			first, err := scoped.First(ctx)
			if err != nil {
				return nil, err
			}
			if first != nil {
				value = first
			}
		}
	}

	rec.SetAssociation(name, value)
	return value, nil
}

// LoadMany returns a collection association's relation. It is nil when the
// record has no key to query by.
func LoadMany(ctx context.Context, rec *record.Record, name string) (*query.Relation, error) {
	v, err := Load(ctx, rec, name)
	if err != nil || v == nil {
		return nil, err
	}
	r, ok := v.(*query.Relation)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a collection association", ormerr.ErrAssociation, name)
	}
	return r, nil
}

// LoadOne returns a singular association's record or nil
func LoadOne(ctx context.Context, rec *record.Record, name string) (*record.Record, error) {
	v, err := Load(ctx, rec, name)
	if err != nil || v == nil {
		return nil, err
	}
	r, ok := v.(*record.Record)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a collection association", ormerr.ErrAssociation, name)
	}
	return r, nil
}

// Assign stores an association value on the record, replacing any memoized one
func Assign(rec *record.Record, name string, value interface{}) {
	rec.SetAssociation(name, value)
}
