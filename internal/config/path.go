package config

import (
	"errors"

	"github.com/vk/trainlaunch/internal/keypath"
)

// errKeyMissing marks a lookup that ran off the tree. Callers translate it
// into the kind that fits their context.
var errKeyMissing = errors.New("key not found")

// IsMissing reports whether a Lookup failure means the key does not exist,
// as opposed to the path traversing a non-mapping.
func IsMissing(err error) bool {
	return errors.Is(err, errKeyMissing)
}

// Step descends one segment from cur. A null parent counts as missing.
func Step(cur any, seg keypath.Segment) (any, error) {
	if cur == nil {
		return nil, errKeyMissing
	}
	node, ok := cur.(*Node)
	if !ok {
		return nil, Errorf(ErrInvalidOverridePath, "", "cannot select '%s' from %s", seg.Name, KindName(cur))
	}
	v, ok := node.Get(seg.Name)
	if !ok {
		return nil, errKeyMissing
	}
	if !seg.HasIndex() {
		return v, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, Errorf(ErrInvalidOverridePath, "", "cannot index %s '%s'", KindName(v), seg.Name)
	}
	if seg.Index >= len(list) {
		return nil, errKeyMissing
	}
	return list[seg.Index], nil
}

// Lookup returns the value at path. A missing key yields an error for which
// IsMissing is true.
func (n *Node) Lookup(path keypath.Path) (any, error) {
	var cur any = n
	for i, seg := range path {
		next, err := Step(cur, seg)
		if err != nil {
			var cerr *Error
			if errors.As(err, &cerr) {
				c := *cerr
				c.Path = path[:i+1].String()
				return nil, &c
			}
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// LookupString is Lookup for a dotted string path.
func (n *Node) LookupString(raw string) (any, error) {
	path, err := keypath.Parse(raw)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidOverridePath, Path: raw, Err: err}
	}
	return n.Lookup(path)
}

// SetPath stores value at path. When create is true, missing intermediate
// mappings are created; otherwise a missing parent is an error. Traversing a
// scalar or list without an index always fails with ErrInvalidOverridePath.
func (n *Node) SetPath(path keypath.Path, value any, create bool) error {
	if len(path) == 0 {
		return Errorf(ErrInvalidOverridePath, "", "cannot replace the root mapping")
	}
	norm, err := Normalize(value)
	if err != nil {
		return &Error{Kind: ErrInvalidLiteral, Path: path.String(), Err: err}
	}

	cur := n
	for i, seg := range path[:len(path)-1] {
		next, err := descendForWrite(cur, seg, path[:i+1], create)
		if err != nil {
			return err
		}
		cur = next
	}
	last := path[len(path)-1]
	if !last.HasIndex() {
		cur.Set(last.Name, norm)
		return nil
	}
	list, err := indexable(cur, last, path)
	if err != nil {
		return err
	}
	list = CloneValue(list).([]any)
	list[last.Index] = norm
	cur.Set(last.Name, list)
	return nil
}

func descendForWrite(cur *Node, seg keypath.Segment, at keypath.Path, create bool) (*Node, error) {
	if seg.HasIndex() {
		list, err := indexable(cur, seg, at)
		if err != nil {
			return nil, err
		}
		child, ok := list[seg.Index].(*Node)
		if !ok {
			return nil, Errorf(ErrInvalidOverridePath, at.String(), "path traverses %s", KindName(list[seg.Index]))
		}
		return child, nil
	}
	v, ok := cur.Get(seg.Name)
	if !ok || v == nil {
		if !create {
			return nil, Errorf(ErrInvalidOverridePath, at.String(), "parent key does not exist")
		}
		child := NewNode()
		cur.Set(seg.Name, child)
		return child, nil
	}
	child, ok := v.(*Node)
	if !ok {
		return nil, Errorf(ErrInvalidOverridePath, at.String(), "path traverses %s", KindName(v))
	}
	return child, nil
}

func indexable(cur *Node, seg keypath.Segment, at keypath.Path) ([]any, error) {
	v, ok := cur.Get(seg.Name)
	if !ok {
		return nil, Errorf(ErrInvalidOverridePath, at.String(), "list '%s' does not exist", seg.Name)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, Errorf(ErrInvalidOverridePath, at.String(), "cannot index %s", KindName(v))
	}
	if seg.Index >= len(list) {
		return nil, Errorf(ErrInvalidOverridePath, at.String(), "index %d out of range (len %d)", seg.Index, len(list))
	}
	return list, nil
}

// DeletePath removes the value at path and reports whether it existed.
// List elements are removed by index.
func (n *Node) DeletePath(path keypath.Path) (bool, error) {
	if len(path) == 0 {
		return false, Errorf(ErrInvalidOverridePath, "", "cannot delete the root mapping")
	}
	parent, err := n.Lookup(path.Parent())
	if err != nil {
		if IsMissing(err) {
			return false, nil
		}
		return false, err
	}
	node, ok := parent.(*Node)
	if !ok {
		return false, Errorf(ErrInvalidOverridePath, path.String(), "path traverses %s", KindName(parent))
	}
	last := path[len(path)-1]
	if !last.HasIndex() {
		return node.Delete(last.Name), nil
	}
	v, ok := node.Get(last.Name)
	list, isList := v.([]any)
	if !ok || !isList || last.Index >= len(list) {
		return false, nil
	}
	out := make([]any, 0, len(list)-1)
	out = append(out, list[:last.Index]...)
	out = append(out, list[last.Index+1:]...)
	node.Set(last.Name, out)
	return true, nil
}

// Walk visits every mapping in the tree depth-first, parents before
// children, including mappings nested in lists.
func (n *Node) Walk(fn func(path keypath.Path, node *Node) error) error {
	return walk(nil, n, fn)
}

func walk(path keypath.Path, v any, fn func(keypath.Path, *Node) error) error {
	switch t := v.(type) {
	case *Node:
		if err := fn(path, t); err != nil {
			return err
		}
		for _, k := range t.keys {
			if err := walk(path.Child(k), t.values[k], fn); err != nil {
				return err
			}
		}
	case []any:
		for i, e := range t {
			if err := walk(path.Index(i), e, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// At wraps body so it sits at path inside an otherwise empty tree. The root
// path returns body itself.
func At(path keypath.Path, body *Node) *Node {
	if len(path) == 0 {
		return body
	}
	root := NewNode()
	cur := root
	for _, seg := range path[:len(path)-1] {
		next := NewNode()
		cur.Set(seg.Name, next)
		cur = next
	}
	cur.Set(path[len(path)-1].Name, body)
	return root
}
