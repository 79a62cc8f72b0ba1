package memory

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/query"
)

// fieldChecker reports whether a where key names a plain field
type fieldChecker func(key string) bool

// matchWhere reports whether row satisfies every map fragment. String
// fragments cannot be evaluated in memory and are rejected.
func matchWhere(row adapter.Row, where []interface{}, isField fieldChecker) (bool, error) {
	for _, fragment := range where {
		switch f := fragment.(type) {
		case map[string]interface{}:
			for key, want := range f {
				ok, err := matchKey(row, key, want, isField)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
		default:
			return false, fmt.Errorf("memory transport cannot evaluate where fragment %v", fragment)
		}
	}
	return true, nil
}

func matchKey(row adapter.Row, key string, want interface{}, isField fieldChecker) (bool, error) {
	if isField(key) {
		return matchEquals(row[key], want), nil
	}

	field, condition, ok := query.SplitCondition(key)
	if !ok {
		// unknown keys compare as plain fields so rows without them never match
		return matchEquals(row[key], want), nil
	}

	got := row[field]
	switch {
	case strings.HasSuffix(condition, "_any"):
		cmp := strings.TrimSuffix(condition, "_any")
		for _, v := range listOf(want) {
			if compare(cmp, got, v) {
				return true, nil
			}
		}
		return false, nil
	case strings.HasSuffix(condition, "_all"):
		cmp := strings.TrimSuffix(condition, "_all")
		for _, v := range listOf(want) {
			if !compare(cmp, got, v) {
				return false, nil
			}
		}
		return true, nil
	default:
		return compare(condition, got, want), nil
	}
}

// matchEquals treats list values as membership
func matchEquals(got, want interface{}) bool {
	if isList(want) {
		for _, v := range listOf(want) {
			if equalValues(got, v) {
				return true
			}
		}
		return false
	}
	return equalValues(got, want)
}

func compare(condition string, got, want interface{}) bool {
	switch condition {
	case "equals":
		return equalValues(got, want)
	case "does_not_equal":
		return !equalValues(got, want)
	case "less_than":
		return order(got, want) < 0
	case "less_than_or_equal_to":
		return order(got, want) <= 0
	case "greater_than":
		return order(got, want) > 0
	case "greater_than_or_equal_to":
		return order(got, want) >= 0
	case "like":
		return likePattern(want).MatchString(fmt.Sprint(got))
	case "not_like":
		return !likePattern(want).MatchString(fmt.Sprint(got))
	case "begins_with":
		return strings.HasPrefix(fmt.Sprint(got), fmt.Sprint(want))
	case "not_begin_with":
		return !strings.HasPrefix(fmt.Sprint(got), fmt.Sprint(want))
	case "ends_with":
		return strings.HasSuffix(fmt.Sprint(got), fmt.Sprint(want))
	case "not_end_with":
		return !strings.HasSuffix(fmt.Sprint(got), fmt.Sprint(want))
	default:
		return false
	}
}

// likePattern turns a SQL style pattern into a regexp. A pattern without
// wildcards matches as a substring.
func likePattern(want interface{}) *regexp.Regexp {
	pattern := fmt.Sprint(want)
	if !strings.ContainsAny(pattern, "%_") {
		return regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func equalValues(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// order compares numerically when both values are numbers
func order(a, b interface{}) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isList(v interface{}) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func listOf(v interface{}) []interface{} {
	if !isList(v) {
		return []interface{}{v}
	}
	rv := reflect.ValueOf(v)
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// sortRows applies order terms such as "name" or "age desc"
func sortRows(rows []adapter.Row, terms []string) {
	if len(terms) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range terms {
			parts := strings.Fields(term)
			if len(parts) == 0 {
				continue
			}
			c := order(rows[i][parts[0]], rows[j][parts[0]])
			if c == 0 {
				continue
			}
			if len(parts) > 1 && strings.EqualFold(parts[1], "desc") {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// project keeps only the selected fields
func project(row adapter.Row, fields []string) adapter.Row {
	if len(fields) == 0 {
		return row
	}
	out := make(adapter.Row, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}
