// Package relationships derives the relations behind declared associations
// and loads them, either lazily per record or eagerly for a whole batch of
// records in one dispatch per association.
package relationships

import (
	"context"
	"fmt"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/schema"
)

// Scope returns the relation holding rec's associated records. A nil
// relation means the record carries no key to query by.
func Scope(assoc *schema.Association, rec *record.Record) (*query.Relation, error) {
	if rec == nil {
		return nil, nil
	}
	return scope(assoc, []*record.Record{rec}, false)
}

// ScopeBatch returns one relation holding the associated records of every
// record in recs, constrained by the distinct key values across the batch
func ScopeBatch(assoc *schema.Association, recs []*record.Record) (*query.Relation, error) {
	recs = compact(recs)
	if len(recs) == 0 {
		return nil, nil
	}
	return scope(assoc, recs, true)
}

func scope(assoc *schema.Association, recs []*record.Record, batch bool) (*query.Relation, error) {
	switch assoc.Kind() {
	case schema.KindBelongsTo:
		return belongsToScope(assoc, recs, batch)
	case schema.KindHasOne, schema.KindHasMany:
		return hasScope(assoc, recs, batch)
	case schema.KindHasManyThrough:
		return throughScope(assoc, recs, batch)
	default:
		return nil, fmt.Errorf("%w: unsupported association kind %s", ormerr.ErrAssociation, assoc.Kind())
	}
}

// belongs_to: where(target primary key => source foreign key values)
func belongsToScope(assoc *schema.Association, recs []*record.Record, batch bool) (*query.Relation, error) {
	keys, ok := keyValues(recs, assoc.ForeignKey(), batch)
	if !ok {
		return nil, nil
	}

	owner := scopeOwner(recs, batch)
	base, err := assoc.BaseScope(owner)
	if err != nil {
		return nil, err
	}
	pk, err := assoc.PrimaryKey(owner)
	if err != nil {
		return nil, err
	}
	return base.Where(map[string]interface{}{pk: keys}), nil
}

// has_one, has_many: where(target foreign key => source primary key values),
// plus the discriminator for polymorphic associations
func hasScope(assoc *schema.Association, recs []*record.Record, batch bool) (*query.Relation, error) {
	pk, err := assoc.PrimaryKey(nil)
	if err != nil {
		return nil, err
	}
	keys, ok := keyValues(recs, pk, batch)
	if !ok {
		return nil, nil
	}

	base, err := assoc.BaseScope(scopeOwner(recs, batch))
	if err != nil {
		return nil, err
	}
	r := base.Where(map[string]interface{}{assoc.ForeignKey(): keys})
	if assoc.IsPolymorphic() {
		r = r.Where(map[string]interface{}{assoc.PolymorphicType(): ownerBaseName(recs[0], assoc)})
	}
	return r, nil
}

// has_many through: the proxy association's key values are fetched when the
// target relation is serialized, then used against the target association's
// own key
func throughScope(assoc *schema.Association, recs []*record.Record, batch bool) (*query.Relation, error) {
	proxy, err := assoc.ProxyAssociation()
	if err != nil {
		return nil, err
	}
	target, err := assoc.TargetAssociation()
	if err != nil {
		return nil, err
	}
	targetModel, err := assoc.TargetModel(nil)
	if err != nil {
		return nil, err
	}

	// the key read from proxy records
	var proxyKey string
	if target.IsHas() {
		if proxyKey, err = target.PrimaryKey(nil); err != nil {
			return nil, err
		}
	} else {
		proxyKey = target.ForeignKey()
	}

	// the key the proxy values are matched against on the target
	var targetKey string
	if target.IsHas() {
		targetKey = target.ForeignKey()
	} else if targetKey, err = target.PrimaryKeyForType(assoc.Options().SourceType); err != nil {
		return nil, err
	}

	proxyIDs := query.Deferred(func(ctx context.Context, modifiers map[string]interface{}) (interface{}, error) {
		proxyScope, err := scope(proxy, recs, batch)
		if err != nil {
			return nil, err
		}
		ids := make([]interface{}, 0)
		if proxyScope != nil {
			proxyRecords, err := proxyScope.Select(proxyKey).Modifiers(modifiers).All(ctx)
			if err != nil {
				return nil, err
			}
			ids = distinctValues(proxyRecords, proxyKey)
		}
		return map[string]interface{}{targetKey: ids}, nil
	})

	r := targetModel.Scoped().ApplyFinderOptions(assoc.FinderOptions(scopeOwner(recs, batch))).Where(proxyIDs)

	if target.IsPolymorphic() && target.IsHas() {
		proxyModel, err := proxy.TargetModel(scopeOwner(recs, batch))
		if err != nil {
			return nil, err
		}
		r = r.Where(map[string]interface{}{target.PolymorphicType(): proxyModel.BaseName()})
	}
	return r, nil
}

// keyValues returns the scalar key of a single record, or the distinct
// non-nil keys of a batch. ok is false when there is nothing to query by.
func keyValues(recs []*record.Record, field string, batch bool) (interface{}, bool) {
	if !batch {
		v := recs[0].Get(field)
		return v, v != nil
	}
	values := distinctValues(recs, field)
	return values, len(values) > 0
}

func distinctValues(recs []*record.Record, field string) []interface{} {
	seen := make(map[string]bool, len(recs))
	values := make([]interface{}, 0, len(recs))
	for _, rec := range recs {
		v := rec.Get(field)
		if v == nil {
			continue
		}
		k := keyString(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		values = append(values, v)
	}
	return values
}

// scopeOwner is the record instance-dependent finder options are computed
// from; batches have none
func scopeOwner(recs []*record.Record, batch bool) *record.Record {
	if batch {
		return nil
	}
	return recs[0]
}

func ownerBaseName(rec *record.Record, assoc *schema.Association) string {
	if rec.Model() != nil {
		return rec.Model().BaseName()
	}
	return assoc.Source().BaseName()
}

// keyString normalizes key values so 7, int64(7), float64(7) and "7" compare equal
func keyString(v interface{}) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	if f, ok := v.(float32); ok && f == float32(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	return fmt.Sprint(v)
}

func compact(recs []*record.Record) []*record.Record {
	out := make([]*record.Record, 0, len(recs))
	for _, rec := range recs {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}
