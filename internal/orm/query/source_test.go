package query

import (
	"context"
	"fmt"

	"github.com/perry-go/perry/internal/orm/record"
)

// fakeSource is an in-memory Source that records every dispatch
type fakeSource struct {
	fields   []string
	table    ConditionTable
	scopes   *ScopeRegistry
	rows     []map[string]interface{}
	calls    int
	payloads []Payload
	err      error
}

func newFakeSource(rows ...map[string]interface{}) *fakeSource {
	fields := []string{"id", "name", "age", "site_id"}
	return &fakeSource{
		fields: fields,
		table:  BuildConditionTable(fields),
		scopes: NewScopeRegistry(),
		rows:   rows,
	}
}

func (s *fakeSource) Name() string       { return "blog.Person" }
func (s *fakeSource) BaseName() string   { return "Person" }
func (s *fakeSource) PrimaryKey() string { return "id" }

func (s *fakeSource) HasField(name string) bool {
	for _, f := range s.fields {
		if f == name {
			return true
		}
	}
	return false
}

func (s *fakeSource) Conditions() ConditionTable { return s.table }

func (s *fakeSource) NamedScope(name string) (ScopeFunc, bool) {
	return s.scopes.Get(name)
}

func (s *fakeSource) Fetch(ctx context.Context, r *Relation) ([]*record.Record, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	p, err := r.ToHash(ctx)
	if err != nil {
		return nil, err
	}
	s.payloads = append(s.payloads, p)

	out := make([]*record.Record, 0)
	for _, row := range s.rows {
		if matches(row, p.Where()) {
			out = append(out, record.FromStore(s, row))
		}
	}
	if limit, ok := p.Limit(); ok && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(row map[string]interface{}, where []interface{}) bool {
	for _, fragment := range where {
		m, ok := fragment.(map[string]interface{})
		if !ok {
			continue
		}
		for field, want := range m {
			got := fmt.Sprint(row[field])
			switch w := want.(type) {
			case []interface{}:
				found := false
				for _, v := range w {
					if fmt.Sprint(v) == got {
						found = true
					}
				}
				if !found {
					return false
				}
			default:
				if fmt.Sprint(w) != got {
					return false
				}
			}
		}
	}
	return true
}

func people() *fakeSource {
	return newFakeSource(
		map[string]interface{}{"id": 1, "name": "Ada", "age": 36},
		map[string]interface{}{"id": 2, "name": "Grace", "age": 45},
		map[string]interface{}{"id": 3, "name": "Linus", "age": 28},
	)
}
