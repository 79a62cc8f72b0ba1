package validation

import (
	"regexp"
	"testing"
)

func TestPresenceRule(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"whitespace", "   ", true},
		{"empty list", []interface{}{}, true},
		{"empty map", map[string]interface{}{}, true},
		{"string", "Ada", false},
		{"zero", 0, false},
		{"false", false, false},
		{"list", []interface{}{1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PresenceRule{}.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("PresenceRule.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMinMaxRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		value   interface{}
		wantErr bool
	}{
		{"int above min", MinRule{Min: 5}, 10, false},
		{"int below min", MinRule{Min: 5}, 3, true},
		{"equal to min", MinRule{Min: 5}, 5, false},
		{"float below min", MinRule{Min: 5.5}, 5.2, true},
		{"int64 above min", MinRule{Min: 5}, int64(6), false},
		{"nil min", MinRule{Min: 5}, nil, false},
		{"string min", MinRule{Min: 5}, "10", true},
		{"int below max", MaxRule{Max: 100}, 99, false},
		{"float above max", MaxRule{Max: 100}, 100.5, true},
		{"equal to max", MaxRule{Max: 100}, float32(100), false},
		{"nil max", MaxRule{Max: 1}, nil, false},
		{"bool max", MaxRule{Max: 1}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestLengthRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    LengthRule
		value   interface{}
		wantErr string
	}{
		{"within bounds", LengthRule{Min: 2, Max: 5}, "abc", ""},
		{"too short", LengthRule{Min: 2}, "a", "must be at least 2 characters"},
		{"too long", LengthRule{Max: 3}, "abcd", "must be at most 3 characters"},
		{"counts characters not bytes", LengthRule{Max: 3}, "äöü", ""},
		{"unbounded max", LengthRule{Min: 1}, "a very long string indeed", ""},
		{"list too long", LengthRule{Max: 1}, []interface{}{1, 2}, "must be at most 1 items"},
		{"nil", LengthRule{Min: 1}, nil, ""},
		{"number", LengthRule{Min: 1}, 12, "must be a string or a list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate(tt.value)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("expected error %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPatternRule(t *testing.T) {
	rule := PatternRule{Pattern: regexp.MustCompile(`^[A-Z]{3}-\d+$`)}

	if err := rule.Validate("ABC-123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := rule.Validate("abc-123"); err == nil {
		t.Error("expected mismatch error")
	}
	if err := rule.Validate(123); err == nil {
		t.Error("expected error for non-string value")
	}
	if err := rule.Validate(nil); err != nil {
		t.Errorf("nil should pass, got %v", err)
	}
}

func TestEmailRule(t *testing.T) {
	tests := []struct {
		value   interface{}
		wantErr bool
	}{
		{"ada@example.com", false},
		{"ada.lovelace+crm@mail.example.org", false},
		{"Ada <ada@example.com>", true},
		{"not-an-email", true},
		{"", true},
		{42, true},
		{nil, false},
	}

	for _, tt := range tests {
		err := EmailRule{}.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("EmailRule.Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestURLRule(t *testing.T) {
	tests := []struct {
		value   interface{}
		wantErr bool
	}{
		{"https://example.com/people", false},
		{"http://localhost:8080", false},
		{"example.com", true},
		{"/relative/path", true},
		{"://broken", true},
		{nil, false},
	}

	for _, tt := range tests {
		err := URLRule{}.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("URLRule.Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestInclusionRule(t *testing.T) {
	rule := InclusionRule{In: []interface{}{"active", "archived", 1}}

	for _, ok := range []interface{}{"active", "archived", 1, 1.0, int64(1), nil} {
		if err := rule.Validate(ok); err != nil {
			t.Errorf("Validate(%v) unexpected error: %v", ok, err)
		}
	}
	for _, bad := range []interface{}{"deleted", 2, "1x"} {
		if err := rule.Validate(bad); err == nil {
			t.Errorf("Validate(%v) expected error", bad)
		}
	}
}
