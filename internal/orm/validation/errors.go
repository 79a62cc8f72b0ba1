package validation

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors collects messages per field
type ValidationErrors struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Fields: make(map[string][]string)}
}

// Add adds a validation error for a specific field
func (ve *ValidationErrors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Fields) > 0
}

// Count returns the total number of messages across all fields
func (ve *ValidationErrors) Count() int {
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Map returns the errors in the shape records carry them: field to a list
// of messages
func (ve *ValidationErrors) Map() map[string]interface{} {
	if !ve.HasErrors() {
		return nil
	}
	out := make(map[string]interface{}, len(ve.Fields))
	for field, messages := range ve.Fields {
		out[field] = append([]string(nil), messages...)
	}
	return out
}

// Error implements the error interface. Fields are listed in sorted order.
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(ve.Fields))
	for field := range ve.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range ve.Fields[field] {
			messages = append(messages, fmt.Sprintf("%s %s", field, msg))
		}
	}
	return "validation failed: " + strings.Join(messages, ", ")
}
