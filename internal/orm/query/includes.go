package query

import (
	"strings"
)

// Includes is an ordered tree of association names to eager load. Each name
// maps to the includes of the association's own target.
type Includes struct {
	names    []string
	children map[string]*Includes
}

// NewIncludes builds an include tree from any mix of association names,
// dotted paths ("comments.author"), string slices, nested maps and trees
func NewIncludes(specs ...interface{}) *Includes {
	inc := &Includes{children: make(map[string]*Includes)}
	for _, spec := range specs {
		inc.add(spec)
	}
	return inc
}

func (inc *Includes) add(spec interface{}) {
	switch v := spec.(type) {
	case nil:
	case string:
		if v == "" {
			return
		}
		parts := strings.SplitN(v, ".", 2)
		child := inc.child(parts[0])
		if len(parts) == 2 {
			child.add(parts[1])
		}
	case []string:
		for _, s := range v {
			inc.add(s)
		}
	case []interface{}:
		for _, s := range v {
			inc.add(s)
		}
	case map[string]interface{}:
		for _, name := range sortedKeys(v) {
			inc.child(name).add(v[name])
		}
	case map[string][]string:
		for _, name := range sortedStringSliceKeys(v) {
			inc.child(name).add(v[name])
		}
	case *Includes:
		inc.merge(v)
	}
}

func (inc *Includes) child(name string) *Includes {
	if c, ok := inc.children[name]; ok {
		return c
	}
	c := &Includes{children: make(map[string]*Includes)}
	inc.names = append(inc.names, name)
	inc.children[name] = c
	return c
}

func (inc *Includes) merge(other *Includes) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		inc.child(name).merge(other.children[name])
	}
}

// Merge returns a new tree with other deep-merged into inc. Names already
// present keep their position; their subtrees merge.
func (inc *Includes) Merge(other *Includes) *Includes {
	out := inc.Clone()
	out.merge(other)
	return out
}

// Clone returns a deep copy of the tree
func (inc *Includes) Clone() *Includes {
	out := &Includes{children: make(map[string]*Includes)}
	out.merge(inc)
	return out
}

// Names returns the top level association names in declaration order
func (inc *Includes) Names() []string {
	if inc == nil {
		return nil
	}
	names := make([]string, len(inc.names))
	copy(names, inc.names)
	return names
}

// Child returns the nested includes for an association, or nil
func (inc *Includes) Child(name string) *Includes {
	if inc == nil {
		return nil
	}
	return inc.children[name]
}

// IsEmpty reports whether the tree names no associations
func (inc *Includes) IsEmpty() bool {
	return inc == nil || len(inc.names) == 0
}

// Value returns the wire form of the tree: a nested map of association name
// to its own includes
func (inc *Includes) Value() map[string]interface{} {
	out := make(map[string]interface{}, len(inc.names))
	for _, name := range inc.names {
		out[name] = inc.children[name].Value()
	}
	return out
}

// String renders the tree as dotted paths, e.g. "comments.author,site"
func (inc *Includes) String() string {
	if inc.IsEmpty() {
		return ""
	}
	paths := make([]string, 0, len(inc.names))
	for _, name := range inc.names {
		child := inc.children[name]
		if child.IsEmpty() {
			paths = append(paths, name)
			continue
		}
		for _, sub := range strings.Split(child.String(), ",") {
			paths = append(paths, name+"."+sub)
		}
	}
	return strings.Join(paths, ",")
}
