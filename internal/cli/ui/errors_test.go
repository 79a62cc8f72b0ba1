package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
		excludes []string
	}{
		{
			name: "context and problem",
			opts: ErrorOptions{Context: "model not found", Problem: "Cannot find model 'X'.", NoColor: true},
			contains: []string{"❌ MODEL NOT FOUND\n", "   Cannot find model 'X'.\n"},
			excludes: []string{"Did you mean"},
		},
		{
			name:     "problem only",
			opts:     ErrorOptions{Level: ErrorLevelInfo, Problem: "serving", NoColor: true},
			contains: []string{"ℹ️ serving\n"},
		},
		{
			name: "suggestions and help",
			opts: ErrorOptions{
				Problem:      "bad",
				Suggestions:  []string{"a", "b"},
				HelpCommands: []string{"perry models"},
				NoColor:      true,
			},
			contains: []string{"Did you mean: a, b?", "→ perry models"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatError(tt.opts)
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(out, unwanted) {
					t.Errorf("expected output not to contain %q, got:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestModelNotFoundError(t *testing.T) {
	out := ModelNotFoundError("Persn", []string{"crm.Person", "crm.Team"}, true)

	if !strings.Contains(out, "Cannot find model 'Persn'.") {
		t.Errorf("expected the missing name in output, got:\n%s", out)
	}
	if !strings.Contains(out, "Did you mean: crm.Person?") {
		t.Errorf("expected a suggestion, got:\n%s", out)
	}
	if !strings.Contains(out, "perry models") {
		t.Errorf("expected a help command, got:\n%s", out)
	}
}

func TestConfigError(t *testing.T) {
	out := ConfigError(errors.New("caching.store must be memory or redis"), true)

	if !strings.Contains(out, "CONFIGURATION ERROR") || !strings.Contains(out, "caching.store") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestWriteError(t *testing.T) {
	var buf bytes.Buffer
	WriteError(&buf, ErrorOptions{Problem: "boom", NoColor: true})

	if buf.String() != "❌ boom\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "saved", true)

	if buf.String() != "✓ saved\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWarning(t *testing.T) {
	out := Warning("cache disabled", true)
	if !strings.HasPrefix(out, "⚠️ cache disabled") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRecordNotSavedError(t *testing.T) {
	out := RecordNotSavedError("crm.Person", map[string]interface{}{
		"name":  []string{"can't be blank"},
		"email": "is taken",
		"age":   []interface{}{"must be a number", "must be at least 0"},
	}, true)

	want := "❌ RECORD NOT SAVED\n" +
		"   The service rejected the crm.Person record.\n" +
		"   age must be a number\n" +
		"   age must be at least 0\n" +
		"   email is taken\n" +
		"   name can't be blank\n"
	if out != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", out, want)
	}
}
