package config

import (
	"fmt"
	"slices"
)

// Node is a mapping from unique string keys to values. Keys keep their
// insertion order so a tree can be handed on with its original layout;
// equality ignores that order.
type Node struct {
	keys   []string
	values map[string]any
}

// NewNode creates an empty mapping.
func NewNode() *Node {
	return &Node{values: make(map[string]any)}
}

// Len returns the number of keys.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// Keys returns the keys in insertion order.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	return slices.Clone(n.keys)
}

// Has reports whether key is present, even with a nil value.
func (n *Node) Has(key string) bool {
	if n == nil {
		return false
	}
	_, ok := n.values[key]
	return ok
}

// Get returns the value stored under key.
func (n *Node) Get(key string) (any, bool) {
	if n == nil {
		return nil, false
	}
	v, ok := n.values[key]
	return v, ok
}

// Set stores a value, appending the key if it is new. The value is
// normalized; Set panics on types a configuration tree cannot hold, which is
// a programming error rather than bad input.
func (n *Node) Set(key string, value any) {
	norm, err := Normalize(value)
	if err != nil {
		panic(fmt.Sprintf("config: set %q: %v", key, err))
	}
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.values[key] = norm
}

// Delete removes a key and reports whether it was present.
func (n *Node) Delete(key string) bool {
	if _, ok := n.values[key]; !ok {
		return false
	}
	delete(n.values, key)
	n.keys = slices.DeleteFunc(n.keys, func(k string) bool { return k == key })
	return true
}

// Child returns the nested mapping under key, or nil if the key is missing
// or holds something else.
func (n *Node) Child(key string) *Node {
	v, _ := n.Get(key)
	child, _ := v.(*Node)
	return child
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		keys:   slices.Clone(n.keys),
		values: make(map[string]any, len(n.values)),
	}
	for k, v := range n.values {
		out.values[k] = CloneValue(v)
	}
	return out
}

// Equal reports deep, order-insensitive equality.
func (n *Node) Equal(other *Node) bool {
	if n.Len() != other.Len() {
		return false
	}
	for _, k := range n.Keys() {
		ov, ok := other.Get(k)
		if !ok {
			return false
		}
		v, _ := n.Get(k)
		if !ValueEqual(v, ov) {
			return false
		}
	}
	return true
}

// Map converts the tree into plain Go maps and slices.
func (n *Node) Map() map[string]any {
	if n == nil {
		return nil
	}
	out := make(map[string]any, len(n.keys))
	for _, k := range n.keys {
		out[k] = plain(n.values[k])
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Node:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
