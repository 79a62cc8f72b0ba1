package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/perry-go/perry/internal/orm/ormerr"
)

// Comparator represents a primary comparison condition
type Comparator int

const (
	CmpEquals Comparator = iota
	CmpDoesNotEqual
	CmpLessThan
	CmpLessThanOrEqualTo
	CmpGreaterThan
	CmpGreaterThanOrEqualTo
	CmpLike
	CmpNotLike
	CmpBeginsWith
	CmpNotBeginWith
	CmpEndsWith
	CmpNotEndWith
)

// String returns the primary name of the comparator
func (c Comparator) String() string {
	switch c {
	case CmpEquals:
		return "equals"
	case CmpDoesNotEqual:
		return "does_not_equal"
	case CmpLessThan:
		return "less_than"
	case CmpLessThanOrEqualTo:
		return "less_than_or_equal_to"
	case CmpGreaterThan:
		return "greater_than"
	case CmpGreaterThanOrEqualTo:
		return "greater_than_or_equal_to"
	case CmpLike:
		return "like"
	case CmpNotLike:
		return "not_like"
	case CmpBeginsWith:
		return "begins_with"
	case CmpNotBeginWith:
		return "not_begin_with"
	case CmpEndsWith:
		return "ends_with"
	case CmpNotEndWith:
		return "not_end_with"
	default:
		return "unknown"
	}
}

// Quantifier selects the plain, _any or _all variant of a comparator
type Quantifier int

const (
	QuantNone Quantifier = iota
	QuantAny
	QuantAll
)

func (q Quantifier) suffix() string {
	switch q {
	case QuantAny:
		return "_any"
	case QuantAll:
		return "_all"
	default:
		return ""
	}
}

var comparatorAliases = map[Comparator][]string{
	CmpEquals:               {"is", "eq"},
	CmpDoesNotEqual:         {"not_equal_to", "is_not", "not", "ne"},
	CmpLessThan:             {"lt", "before"},
	CmpLessThanOrEqualTo:    {"lte"},
	CmpGreaterThan:          {"gt", "after"},
	CmpGreaterThanOrEqualTo: {"gte"},
	CmpLike:                 {"contains", "includes"},
	CmpNotLike:              {"does_not_include"},
	CmpBeginsWith:           {"bw"},
	CmpNotBeginWith:         {"does_not_begin_with"},
	CmpEndsWith:             {"ew"},
	CmpNotEndWith:           {"does_not_end_with"},
}

// conditionNames maps every primary or alias condition suffix to its
// primary name, e.g. "gt_any" -> "greater_than_any"
var conditionNames = buildConditionNames()

func buildConditionNames() map[string]string {
	names := make(map[string]string)
	for cmp, aliases := range comparatorAliases {
		for _, q := range []Quantifier{QuantNone, QuantAny, QuantAll} {
			primary := cmp.String() + q.suffix()
			names[primary] = primary
			for _, alias := range aliases {
				names[alias+q.suffix()] = primary
			}
		}
	}
	names["in"] = CmpEquals.String() + QuantAny.suffix()
	names["not_in"] = CmpDoesNotEqual.String() + QuantAll.suffix()
	return names
}

// PrimaryCondition returns the primary name for a condition suffix or alias
func PrimaryCondition(name string) (string, bool) {
	primary, ok := conditionNames[name]
	return primary, ok
}

// ConditionTable maps dynamic condition method names (<field>_<condition>) to
// the where key they emit (<field>_<primary condition>). It is built once per
// model when the model is registered.
type ConditionTable map[string]string

// BuildConditionTable synthesizes the condition table for the given fields
func BuildConditionTable(fields []string) ConditionTable {
	table := make(ConditionTable, len(fields)*len(conditionNames))
	for _, field := range fields {
		for name, primary := range conditionNames {
			table[field+"_"+name] = field + "_" + primary
		}
	}
	return table
}

// Lookup returns the where key for a condition method
func (t ConditionTable) Lookup(method string) (string, error) {
	if key, ok := t[method]; ok {
		return key, nil
	}
	return "", fmt.Errorf("%w: %s", ormerr.ErrNoSuchQueryMethod, method)
}

// Methods returns every method name in the table, sorted
func (t ConditionTable) Methods() []string {
	methods := make([]string, 0, len(t))
	for m := range t {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// SplitCondition splits a where key such as "age_greater_than_any" into its
// field and primary condition. Longest suffix wins so "name_not_like" does not
// parse as a "like" condition on "name_not".
func SplitCondition(key string) (field, condition string, ok bool) {
	for name, primary := range conditionNames {
		if name != primary {
			continue
		}
		if strings.HasSuffix(key, "_"+name) && len(name) > len(condition) {
			field = strings.TrimSuffix(key, "_"+name)
			condition = name
			ok = field != ""
		}
	}
	return field, condition, ok
}
