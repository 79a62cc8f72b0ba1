package relationships

import (
	"context"
	"fmt"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/schema"
)

// Preload eager loads every association named in rel's includes onto
// records, in include order. Each association costs one dispatch for the
// whole batch (two for has_many through: proxies, then targets). Nested
// includes travel with the secondary relation and the original relation's
// modifiers are carried over so freshness propagates.
func Preload(ctx context.Context, records []*record.Record, rel *query.Relation) error {
	includes := rel.IncludesValue()
	if includes.IsEmpty() {
		return nil
	}

	model, ok := rel.Target().(*schema.Model)
	if !ok {
		return fmt.Errorf("%w: %s has no association declarations", ormerr.ErrAssociationNotFound, rel.Target().Name())
	}

	records = compact(records)
	modifiers := rel.ModifiersValue()

	for _, name := range includes.Names() {
		assoc, ok := model.Association(name)
		if !ok {
			return fmt.Errorf("%w: unknown association %s on %s", ormerr.ErrAssociationNotFound, name, model.Name())
		}
		if !assoc.EagerLoadable() {
			return fmt.Errorf("%w: %s depends on instance data", ormerr.ErrAssociationPreloadNotSupported, assoc)
		}
		if len(records) == 0 {
			continue
		}

		var err error
		if assoc.Kind() == schema.KindHasManyThrough {
			err = preloadThrough(ctx, records, assoc, includes.Child(name), modifiers)
		} else {
			err = preloadDirect(ctx, records, assoc, includes.Child(name), modifiers)
		}
		if err != nil {
			return fmt.Errorf("failed to preload %s: %w", name, err)
		}
	}
	return nil
}

func preloadDirect(ctx context.Context, records []*record.Record, assoc *schema.Association, nested *query.Includes, modifiers map[string]interface{}) error {
	fetched, err := fetchBatch(ctx, assoc, records, nested, modifiers)
	if err != nil {
		return err
	}

	for _, rec := range records {
		match, err := matcher(assoc, rec)
		if err != nil {
			return err
		}
		related := filter(fetched, match)
		if err := assign(assoc, rec, related, nested); err != nil {
			return err
		}
	}
	return nil
}

func preloadThrough(ctx context.Context, records []*record.Record, assoc *schema.Association, nested *query.Includes, modifiers map[string]interface{}) error {
	proxy, err := assoc.ProxyAssociation()
	if err != nil {
		return err
	}
	target, err := assoc.TargetAssociation()
	if err != nil {
		return err
	}
	if !proxy.EagerLoadable() || !target.EagerLoadable() {
		return fmt.Errorf("%w: %s travels through an association that depends on instance data",
			ormerr.ErrAssociationPreloadNotSupported, assoc)
	}

	proxies, err := fetchBatch(ctx, proxy, records, nil, modifiers)
	if err != nil {
		return err
	}
	targets, err := fetchBatch(ctx, target, proxies, nested, modifiers)
	if err != nil {
		return err
	}

	for _, rec := range records {
		proxyMatch, err := matcher(proxy, rec)
		if err != nil {
			return err
		}

		seen := make(map[*record.Record]bool)
		related := make([]*record.Record, 0)
		for _, p := range filter(proxies, proxyMatch) {
			targetMatch, err := matcher(target, p)
			if err != nil {
				return err
			}
			for _, t := range filter(targets, targetMatch) {
				if !seen[t] {
					seen[t] = true
					related = append(related, t)
				}
			}
		}
		if err := assign(assoc, rec, related, nested); err != nil {
			return err
		}
	}
	return nil
}

// fetchBatch issues the single dispatch for an association across a batch
func fetchBatch(ctx context.Context, assoc *schema.Association, owners []*record.Record, nested *query.Includes, modifiers map[string]interface{}) ([]*record.Record, error) {
	batch, err := ScopeBatch(assoc, owners)
	if err != nil || batch == nil {
		return nil, err
	}
	if !nested.IsEmpty() {
		batch = batch.Includes(nested)
	}
	if len(modifiers) > 0 {
		batch = batch.Modifiers(modifiers)
	}
	return batch.All(ctx)
}

// matcher returns a predicate selecting the fetched records that belong to owner
func matcher(assoc *schema.Association, owner *record.Record) (func(*record.Record) bool, error) {
	if assoc.IsHas() {
		pk, err := assoc.PrimaryKey(nil)
		if err != nil {
			return nil, err
		}
		ownerKey := owner.Get(pk)
		fk := assoc.ForeignKey()
		return func(candidate *record.Record) bool {
			return ownerKey != nil && keyString(candidate.Get(fk)) == keyString(ownerKey)
		}, nil
	}

	pk, err := assoc.PrimaryKey(nil)
	if err != nil {
		return nil, err
	}
	ownerKey := owner.Get(assoc.ForeignKey())
	return func(candidate *record.Record) bool {
		return ownerKey != nil && keyString(candidate.Get(pk)) == keyString(ownerKey)
	}, nil
}

func filter(records []*record.Record, match func(*record.Record) bool) []*record.Record {
	out := make([]*record.Record, 0)
	for _, r := range records {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

// assign stores the partitioned records on the owner: a pre-seeded relation
// for collections, the first match or nil otherwise
func assign(assoc *schema.Association, owner *record.Record, related []*record.Record, nested *query.Includes) error {
	if !assoc.IsCollection() {
		if len(related) == 0 {
			owner.SetAssociation(assoc.Name(), nil)
			return nil
		}
		owner.SetAssociation(assoc.Name(), related[0])
		return nil
	}

	scoped, err := Scope(assoc, owner)
	if err != nil {
		return err
	}
	if scoped == nil {
		owner.SetAssociation(assoc.Name(), nil)
		return nil
	}
	if !nested.IsEmpty() {
		scoped = scoped.Includes(nested)
	}
	scoped.SetRecords(related)
	owner.SetAssociation(assoc.Name(), scoped)
	return nil
}
