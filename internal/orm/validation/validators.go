package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rule checks one attribute value. Every rule except PresenceRule accepts
// nil, so optional attributes only need presence when they are required.
type Rule interface {
	Validate(value interface{}) error
}

// PresenceRule rejects nil, blank strings and empty lists
type PresenceRule struct{}

// Validate implements the Rule interface
func (PresenceRule) Validate(value interface{}) error {
	if value == nil {
		return fmt.Errorf("can't be blank")
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return fmt.Errorf("can't be blank")
	}
	if n, ok := length(value); ok && n == 0 {
		return fmt.Errorf("can't be blank")
	}
	return nil
}

// MinRule validates a numeric lower bound
type MinRule struct {
	Min float64
}

// Validate implements the Rule interface
func (r MinRule) Validate(value interface{}) error {
	if value == nil {
		return nil
	}
	n, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("must be a number")
	}
	if n < r.Min {
		return fmt.Errorf("must be at least %v", r.Min)
	}
	return nil
}

// MaxRule validates a numeric upper bound
type MaxRule struct {
	Max float64
}

// Validate implements the Rule interface
func (r MaxRule) Validate(value interface{}) error {
	if value == nil {
		return nil
	}
	n, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("must be a number")
	}
	if n > r.Max {
		return fmt.Errorf("must be at most %v", r.Max)
	}
	return nil
}

// LengthRule bounds the length of a string (in characters) or a list. A
// zero Max is unbounded.
type LengthRule struct {
	Min int
	Max int
}

// Validate implements the Rule interface
func (r LengthRule) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	unit := "items"
	var n int
	if s, ok := value.(string); ok {
		n, unit = utf8.RuneCountInString(s), "characters"
	} else if l, ok := length(value); ok {
		n = l
	} else {
		return fmt.Errorf("must be a string or a list")
	}

	if n < r.Min {
		return fmt.Errorf("must be at least %d %s", r.Min, unit)
	}
	if r.Max > 0 && n > r.Max {
		return fmt.Errorf("must be at most %d %s", r.Max, unit)
	}
	return nil
}

// PatternRule validates string values against a regex pattern
type PatternRule struct {
	Pattern *regexp.Regexp
}

// Validate implements the Rule interface
func (r PatternRule) Validate(value interface{}) error {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a string")
	}
	if !r.Pattern.MatchString(s) {
		return fmt.Errorf("does not match required pattern")
	}
	return nil
}

// EmailRule validates email addresses
type EmailRule struct{}

// Validate implements the Rule interface
func (EmailRule) Validate(value interface{}) error {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fmt.Errorf("must be a valid email address")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("must be a valid email address")
	}
	return nil
}

// URLRule validates absolute URLs
type URLRule struct{}

// Validate implements the Rule interface
func (URLRule) Validate(value interface{}) error {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a valid URL")
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a valid URL")
	}
	return nil
}

// InclusionRule requires the value to be one of In. Values compare by
// their printed form, so 1 and 1.0 decoded from different wire formats
// match.
type InclusionRule struct {
	In []interface{}
}

// Validate implements the Rule interface
func (r InclusionRule) Validate(value interface{}) error {
	if value == nil {
		return nil
	}
	got := printed(value)
	for _, allowed := range r.In {
		if printed(allowed) == got {
			return nil
		}
	}
	return fmt.Errorf("is not included in the list")
}

func printed(v interface{}) string {
	if f, ok := toFloat64(v); ok {
		return fmt.Sprint(f)
	}
	return fmt.Sprint(v)
}

// length reports the length of slices, arrays and maps
func length(value interface{}) (int, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len(), true
	}
	return 0, false
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
