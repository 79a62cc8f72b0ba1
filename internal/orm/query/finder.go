package query

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/record"
)

// FinderOptions is the option form of the query methods, used by named
// scopes, association declarations and finder calls
type FinderOptions struct {
	Select []string
	Group  []string
	Order  []string
	Joins  []string
	Where  []interface{}
	Having []interface{}

	// Conditions is an extra where fragment
	Conditions map[string]interface{}

	Limit  *int
	Offset *int
	From   string

	// Includes accepts anything Relation.Includes accepts
	Includes interface{}

	// Search applies dynamic condition methods; unknown names are skipped
	Search map[string]interface{}

	SQL       string
	Modifiers map[string]interface{}
	Fresh     *bool
}

// IsZero reports whether no option is set
func (o FinderOptions) IsZero() bool {
	return reflect.ValueOf(o).IsZero()
}

// ApplyFinderOptions returns a relation with every set option applied
func (r *Relation) ApplyFinderOptions(opts FinderOptions) *Relation {
	c := r.Clone()

	if len(opts.Select) > 0 {
		c = c.Select(opts.Select...)
	}
	if len(opts.Group) > 0 {
		c = c.Group(opts.Group...)
	}
	if len(opts.Order) > 0 {
		c = c.Order(opts.Order...)
	}
	if len(opts.Joins) > 0 {
		c = c.Joins(opts.Joins...)
	}
	if len(opts.Having) > 0 {
		c = c.Having(opts.Having...)
	}
	if opts.Limit != nil {
		c = c.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		c = c.Offset(*opts.Offset)
	}
	if opts.From != "" {
		c = c.From(opts.From)
	}
	if opts.Fresh != nil {
		c = c.Fresh(*opts.Fresh)
	}
	if len(opts.Conditions) > 0 {
		c = c.Where(opts.Conditions)
	}
	if len(opts.Where) > 0 {
		c = c.Where(opts.Where...)
	}
	if opts.Includes != nil {
		c = c.Includes(opts.Includes)
	}
	if len(opts.Search) > 0 {
		c = c.Search(opts.Search)
	}
	if opts.SQL != "" {
		c = c.SQL(opts.SQL)
	}
	if opts.Modifiers != nil {
		c = c.Modifiers(opts.Modifiers)
	}

	return c
}

// Find looks up one record by primary key. Numeric strings are converted to
// integers. A miss returns ErrRecordNotFound.
func (r *Relation) Find(ctx context.Context, id interface{}) (*record.Record, error) {
	switch id.(type) {
	case int, int32, int64, uint, uint32, uint64, string:
	default:
		return nil, fmt.Errorf("unknown argument %v (%T) for find", id, id)
	}
	id = normalizeID(id)

	rec, err := r.Where(map[string]interface{}{r.primaryKey(): id}).First(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ormerr.NotFound(r.sourceName(), "with %s = %v", r.primaryKey(), id)
	}
	return rec, nil
}

// FindMany looks up records by a list of primary keys and fails with
// ErrRecordNotFound unless every id matched
func (r *Relation) FindMany(ctx context.Context, ids ...interface{}) ([]*record.Record, error) {
	normalized := make([]interface{}, len(ids))
	strs := make([]string, len(ids))
	for i, id := range ids {
		normalized[i] = normalizeID(id)
		strs[i] = fmt.Sprint(id)
	}

	records, err := r.Where(map[string]interface{}{r.primaryKey(): normalized}).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) != len(ids) {
		return nil, ormerr.NotFound(r.sourceName(), "with ids (%s) (expected %d records but got %d)",
			strings.Join(strs, ","), len(ids), len(records))
	}
	return records, nil
}

// FindBy returns the first record whose field equals value
func (r *Relation) FindBy(ctx context.Context, field string, value interface{}) (*record.Record, error) {
	if err := r.checkField("find_by", field); err != nil {
		return nil, err
	}
	return r.Where(map[string]interface{}{field: value}).First(ctx)
}

// FindAllBy returns every record whose field equals value
func (r *Relation) FindAllBy(ctx context.Context, field string, value interface{}) ([]*record.Record, error) {
	if err := r.checkField("find_all_by", field); err != nil {
		return nil, err
	}
	return r.Where(map[string]interface{}{field: value}).All(ctx)
}

func (r *Relation) checkField(finder, field string) error {
	if r.source == nil || !r.source.HasField(field) {
		return fmt.Errorf("%w: %s_%s", ormerr.ErrNoSuchQueryMethod, finder, field)
	}
	return nil
}

func (r *Relation) primaryKey() string {
	if r.source == nil {
		return "id"
	}
	return r.source.PrimaryKey()
}

func (r *Relation) sourceName() string {
	if r.source == nil {
		return "record"
	}
	return r.source.Name()
}

func normalizeID(id interface{}) interface{} {
	if s, ok := id.(string); ok {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return id
}
