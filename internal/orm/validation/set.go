// Package validation checks record attributes against per-field rules
// before they are written. A Set plugs into crud as its validator and into
// the fixture store as a collection validator, so local writes are
// rejected the way the service would reject them.
package validation

import (
	"context"

	"github.com/perry-go/perry/internal/orm/crud"
	"github.com/perry-go/perry/internal/orm/record"
)

// Set holds the rules of one model, keyed by field
type Set struct {
	fields []string
	rules  map[string][]Rule
}

// NewSet creates an empty rule set
func NewSet() *Set {
	return &Set{rules: make(map[string][]Rule)}
}

// Add appends rules for field. Fields are checked in the order they were
// first added.
func (s *Set) Add(field string, rules ...Rule) *Set {
	if _, ok := s.rules[field]; !ok {
		s.fields = append(s.fields, field)
	}
	s.rules[field] = append(s.rules[field], rules...)
	return s
}

// Fields returns the fields that have rules
func (s *Set) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Check runs every rule against attrs. A field's rules stop at its first
// failure.
func (s *Set) Check(attrs map[string]interface{}) *ValidationErrors {
	errs := NewValidationErrors()
	for _, field := range s.fields {
		for _, rule := range s.rules[field] {
			if err := rule.Validate(attrs[field]); err != nil {
				errs.Add(field, err.Error())
				break
			}
		}
	}
	return errs
}

// Validate implements crud.Validator. Destroys are never validated.
func (s *Set) Validate(ctx context.Context, rec *record.Record, op crud.Operation) map[string]interface{} {
	if op != crud.OperationSave {
		return nil
	}
	return s.Check(rec.Attributes()).Map()
}

// Row validates a raw row, matching the memory store's validator signature
func (s *Set) Row(row map[string]interface{}) map[string]interface{} {
	return s.Check(row).Map()
}
