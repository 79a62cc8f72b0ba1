package query

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Wire payload keys
const (
	KeySelect   = "select"
	KeyGroup    = "group"
	KeyOrder    = "order"
	KeyJoins    = "joins"
	KeyWhere    = "where"
	KeyHaving   = "having"
	KeyLimit    = "limit"
	KeyOffset   = "offset"
	KeyFrom     = "from"
	KeyIncludes = "includes"
	KeySQL      = "sql"
)

var payloadKeyOrder = []string{
	KeySelect, KeyGroup, KeyOrder, KeyJoins, KeyWhere, KeyHaving,
	KeyLimit, KeyOffset, KeyFrom, KeyIncludes, KeySQL,
}

// Payload is the serialized form of a Relation sent to transports. Absent
// keys mean unconstrained.
type Payload map[string]interface{}

// Keys returns the keys present in the payload in canonical wire order
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, k := range payloadKeyOrder {
		if _, ok := p[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Where returns the where fragments of the payload
func (p Payload) Where() []interface{} {
	w, _ := p[KeyWhere].([]interface{})
	return w
}

// Limit returns the limit and whether one is set
func (p Payload) Limit() (int, bool) {
	l, ok := p[KeyLimit].(int)
	return l, ok
}

// Offset returns the offset and whether one is set
func (p Payload) Offset() (int, bool) {
	o, ok := p[KeyOffset].(int)
	return o, ok
}

// DecodePayload restores the shapes ToHash produces from a payload that
// went through a generic decoder such as encoding/json: string lists become
// []string and numeric limit and offset become int.
func DecodePayload(m map[string]interface{}) Payload {
	p := make(Payload, len(m))
	for k, v := range m {
		switch k {
		case KeySelect, KeyGroup, KeyOrder, KeyJoins:
			p[k] = stringList(v)
		case KeyLimit, KeyOffset:
			if n, ok := intValue(v); ok {
				p[k] = n
			}
		case KeyWhere, KeyHaving:
			if list, ok := v.([]interface{}); ok {
				p[k] = list
			} else if v != nil {
				p[k] = []interface{}{v}
			}
		default:
			p[k] = v
		}
	}
	return p
}

func stringList(v interface{}) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, s := range l {
			out = append(out, fmt.Sprint(s))
		}
		return out
	case string:
		return []string{l}
	default:
		return nil
	}
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// Map returns the payload as a plain map
func (p Payload) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func uniqStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func uniqValues(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		dup := false
		for _, existing := range out {
			if reflect.DeepEqual(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringSliceKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
