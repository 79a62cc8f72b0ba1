package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and
// help commands
//
//	❌ MODEL NOT FOUND: Persn
//	   Cannot find model 'Persn'.
//
//	   Did you mean: crm.Person?
//
//	   → See all models: perry models
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}
	hint := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		for _, c := range []*color.Color{headerColor, bodyColor, hint, cyan} {
			c.DisableColor()
		}
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		hint.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// WriteSuccess writes a green check line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	green.Fprintf(w, "✓ %s\n", message)
}

// ModelNotFoundError reports an unknown model name with the closest
// configured names
func ModelNotFoundError(name string, known []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     "model not found",
		Problem:     fmt.Sprintf("Cannot find model '%s'.", name),
		Suggestions: FindSimilar(name, known, nil),
		HelpCommands: []string{
			"See all models: perry models",
		},
		NoColor: noColor,
	})
}

// ConfigError reports a configuration that could not be loaded or built
func ConfigError(err error, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: err.Error(),
		HelpCommands: []string{
			"View config: cat perry.yaml",
			"Get help: perry --help",
		},
		NoColor: noColor,
	})
}

// RecordNotSavedError reports the errors a rejected write left on a record,
// one field per line
func RecordNotSavedError(name string, errs map[string]interface{}, noColor bool) string {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	lines := []string{fmt.Sprintf("The service rejected the %s record.", name)}
	for _, field := range fields {
		for _, msg := range messages(errs[field]) {
			lines = append(lines, fmt.Sprintf("%s %s", field, msg))
		}
	}
	return FormatError(ErrorOptions{
		Context: "record not saved",
		Problem: strings.Join(lines, "\n   "),
		NoColor: noColor,
	})
}

func messages(v interface{}) []string {
	switch m := v.(type) {
	case []string:
		return m
	case []interface{}:
		out := make([]string, len(m))
		for i, x := range m {
			out[i] = fmt.Sprint(x)
		}
		return out
	default:
		return []string{fmt.Sprint(m)}
	}
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}
