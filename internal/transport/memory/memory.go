// Package memory provides an in-process transport backed by fixture rows.
// It evaluates where fragments, order, offset, limit and select locally and
// records every call, which makes it the transport of choice for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/query"
)

// TypeName is the adapter type the transport registers under
const TypeName = "memory"

// ExtraStore is the adapter Extra key holding the *Store to use
const ExtraStore = "memory_store"

func init() {
	adapter.Register(TypeName, func(cfg adapter.Config) (adapter.Transport, error) {
		store := defaultStore
		if v, ok := cfg.Extra[ExtraStore]; ok {
			s, ok := v.(*Store)
			if !ok {
				return nil, fmt.Errorf("%s must be a *memory.Store, got %T", ExtraStore, v)
			}
			store = s
		}
		return &Transport{store: store, service: cfg.Service}, nil
	})
}

// Call is one recorded dispatch
type Call struct {
	Mode       adapter.Mode
	Collection string
	Payload    query.Payload
	Record     map[string]interface{}
}

// Validator inspects a row about to be written and returns field errors to
// reject it
type Validator func(row adapter.Row) map[string]interface{}

// Store holds fixture rows per collection. Collections are named after the
// adapter's service or, when none is configured, the model name.
type Store struct {
	mu          sync.Mutex
	collections map[string][]adapter.Row
	nextID      map[string]int
	validators  map[string]Validator
	calls       []Call
	failure     error
}

var defaultStore = NewStore()

// Default returns the store used by adapters that do not configure one
func Default() *Store {
	return defaultStore
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		collections: make(map[string][]adapter.Row),
		nextID:      make(map[string]int),
		validators:  make(map[string]Validator),
	}
}

// Context returns an adapter context that points an adapter at the store
func (s *Store) Context() adapter.Context {
	return adapter.Config{Type: TypeName, Extra: map[string]interface{}{ExtraStore: s}}
}

// Seed appends rows to a collection. Rows without an id get the next one.
func (s *Store) Seed(collection string, rows ...adapter.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		r := copyRow(row)
		if id, ok := r["id"]; ok {
			if n, ok := toFloat(id); ok && int(n) > s.nextID[collection] {
				s.nextID[collection] = int(n)
			}
		} else {
			s.nextID[collection]++
			r["id"] = s.nextID[collection]
		}
		s.collections[collection] = append(s.collections[collection], r)
	}
}

// Rows returns copies of the rows in a collection
func (s *Store) Rows(collection string) []adapter.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]adapter.Row, 0, len(s.collections[collection]))
	for _, row := range s.collections[collection] {
		out = append(out, copyRow(row))
	}
	return out
}

// Collections returns the sorted names of the seeded collections
func (s *Store) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate installs a validator for writes to a collection
func (s *Store) Validate(collection string, v Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[collection] = v
}

// Fail makes every following call return err until Fail(nil) is called
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Calls returns the recorded calls
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many calls of the given mode were recorded
func (s *Store) CallCount(mode adapter.Mode) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c.Mode == mode {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Clear removes all rows, validators and recorded calls
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string][]adapter.Row)
	s.nextID = make(map[string]int)
	s.validators = make(map[string]Validator)
	s.calls = nil
	s.failure = nil
}

// Transport serves adapter requests from a Store
type Transport struct {
	store   *Store
	service string
}

func (t *Transport) collection(req *adapter.Request) string {
	if t.service != "" {
		return t.service
	}
	if req.Relation != nil {
		return req.Relation.Target().Name()
	}
	if req.Record != nil && req.Record.Model() != nil {
		return req.Record.Model().Name()
	}
	return ""
}

// Read implements adapter.Transport
func (t *Transport) Read(ctx context.Context, req *adapter.Request) ([]adapter.Row, error) {
	if req.Relation == nil {
		return nil, fmt.Errorf("memory transport: read request without a relation")
	}
	payload, err := req.Relation.ToHash(ctx)
	if err != nil {
		return nil, err
	}
	collection := t.collection(req)

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Mode: adapter.ModeRead, Collection: collection, Payload: payload})
	if s.failure != nil {
		return nil, s.failure
	}
	return s.query(collection, payload, req.Relation.Target().HasField)
}

// Write implements adapter.Transport. New records are inserted with the
// next id, persisted ones replace the stored row's fields.
func (t *Transport) Write(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	rec := req.Record
	if rec == nil {
		return nil, fmt.Errorf("memory transport: write request without a record")
	}
	collection := t.collection(req)
	attrs := rec.Attributes()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Mode: adapter.ModeWrite, Collection: collection, Record: attrs})
	if s.failure != nil {
		return nil, s.failure
	}

	if rec.IsNew() || rec.ID() == nil {
		return s.insert(collection, rec.PrimaryKey(), attrs), nil
	}
	return s.update(collection, rec.PrimaryKey(), rec.ID(), attrs), nil
}

// Delete implements adapter.Transport
func (t *Transport) Delete(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	rec := req.Record
	if rec == nil {
		return nil, fmt.Errorf("memory transport: delete request without a record")
	}
	collection := t.collection(req)

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Mode: adapter.ModeDelete, Collection: collection, Record: rec.Attributes()})
	if s.failure != nil {
		return nil, s.failure
	}
	return s.remove(collection, rec.PrimaryKey(), rec.ID()), nil
}

// Query evaluates a payload against a collection without recording a
// call. Where keys match plain fields when some stored row carries them.
func (s *Store) Query(collection string, payload query.Payload) ([]adapter.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]bool)
	for _, row := range s.collections[collection] {
		for k := range row {
			fields[k] = true
		}
	}
	return s.query(collection, payload, func(key string) bool { return fields[key] })
}

// Insert validates and stores a new row, assigning the next id to pk
func (s *Store) Insert(collection, pk string, attrs map[string]interface{}) *adapter.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(collection, pk, attrs)
}

// Update validates attrs and merges them into the row whose pk equals id
func (s *Store) Update(collection, pk string, id interface{}, attrs map[string]interface{}) *adapter.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(collection, pk, id, attrs)
}

// Remove deletes the row whose pk equals id
func (s *Store) Remove(collection, pk string, id interface{}) *adapter.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(collection, pk, id)
}

func (s *Store) query(collection string, payload query.Payload, isField fieldChecker) ([]adapter.Row, error) {
	if _, ok := payload[query.KeySQL]; ok {
		return nil, fmt.Errorf("memory transport cannot run raw queries")
	}

	matched := make([]adapter.Row, 0)
	for _, row := range s.collections[collection] {
		ok, err := matchWhere(row, payload.Where(), isField)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, copyRow(row))
		}
	}

	if terms, ok := payload[query.KeyOrder].([]string); ok {
		sortRows(matched, terms)
	}
	if offset, ok := payload.Offset(); ok {
		if offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[offset:]
		}
	}
	if limit, ok := payload.Limit(); ok && limit < len(matched) {
		matched = matched[:limit]
	}
	if fields, ok := payload[query.KeySelect].([]string); ok {
		for i := range matched {
			matched[i] = project(matched[i], fields)
		}
	}
	return matched, nil
}

func (s *Store) insert(collection, pk string, attrs map[string]interface{}) *adapter.Response {
	if v := s.validators[collection]; v != nil {
		if errs := v(attrs); len(errs) > 0 {
			return adapter.NewParsedResponse(false, errs)
		}
	}
	s.nextID[collection]++
	id := s.nextID[collection]
	row := copyRow(attrs)
	row[pk] = id
	s.collections[collection] = append(s.collections[collection], row)
	return adapter.NewParsedResponse(true, map[string]interface{}{pk: id})
}

func (s *Store) update(collection, pk string, id interface{}, attrs map[string]interface{}) *adapter.Response {
	if v := s.validators[collection]; v != nil {
		if errs := v(attrs); len(errs) > 0 {
			return adapter.NewParsedResponse(false, errs)
		}
	}
	i := s.indexOf(collection, pk, id)
	if i < 0 {
		return adapter.NewParsedResponse(false, map[string]interface{}{"base": "record not found"})
	}
	for k, v := range attrs {
		if k == pk {
			continue
		}
		s.collections[collection][i][k] = v
	}
	return adapter.NewParsedResponse(true, copyRow(s.collections[collection][i]))
}

func (s *Store) remove(collection, pk string, id interface{}) *adapter.Response {
	i := s.indexOf(collection, pk, id)
	if i < 0 {
		return adapter.NewParsedResponse(false, map[string]interface{}{"base": "record not found"})
	}
	rows := s.collections[collection]
	s.collections[collection] = append(rows[:i:i], rows[i+1:]...)
	return &adapter.Response{Success: true}
}

func (s *Store) indexOf(collection, pk string, id interface{}) int {
	for i, row := range s.collections[collection] {
		if equalValues(row[pk], id) {
			return i
		}
	}
	return -1
}

func copyRow(row adapter.Row) adapter.Row {
	out := make(adapter.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
