package validation

import (
	"encoding/json"
	"testing"
)

func TestValidationErrors_Add(t *testing.T) {
	errors := NewValidationErrors()

	errors.Add("name", "can't be blank")
	errors.Add("email", "must be a valid email address")
	errors.Add("name", "must be at least 2 characters")

	if len(errors.Fields) != 2 {
		t.Errorf("expected 2 fields with errors, got %d", len(errors.Fields))
	}
	if len(errors.Fields["name"]) != 2 {
		t.Errorf("expected 2 errors for name, got %d", len(errors.Fields["name"]))
	}
	if errors.Count() != 3 {
		t.Errorf("expected 3 errors, got %d", errors.Count())
	}
}

func TestValidationErrors_ZeroValue(t *testing.T) {
	var errors ValidationErrors
	if errors.HasErrors() {
		t.Error("expected zero value to have no errors")
	}
	errors.Add("age", "must be a number")
	if !errors.HasErrors() {
		t.Error("expected HasErrors after Add")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errors := NewValidationErrors()
	if got := errors.Error(); got != "validation failed" {
		t.Errorf("unexpected message %q", got)
	}

	errors.Add("name", "can't be blank")
	errors.Add("age", "must be at least 0")
	want := "validation failed: age must be at least 0, name can't be blank"
	if got := errors.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Map(t *testing.T) {
	errors := NewValidationErrors()
	if errors.Map() != nil {
		t.Error("expected nil map without errors")
	}

	errors.Add("name", "can't be blank")
	m := errors.Map()
	messages, ok := m["name"].([]string)
	if !ok || len(messages) != 1 || messages[0] != "can't be blank" {
		t.Errorf("unexpected map %v", m)
	}

	messages[0] = "changed"
	if errors.Fields["name"][0] != "can't be blank" {
		t.Error("Map must copy messages")
	}
}

func TestValidationErrors_JSON(t *testing.T) {
	errors := NewValidationErrors()
	errors.Add("email", "must be a valid email address")

	data, err := json.Marshal(errors)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"fields":{"email":["must be a valid email address"]}}` {
		t.Errorf("unexpected JSON %s", data)
	}
}
