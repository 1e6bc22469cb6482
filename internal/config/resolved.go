package config

import (
	"fmt"

	"github.com/vk/trainlaunch/internal/keypath"
)

// Resolved is a fully merged, overridden and interpolated configuration. It
// is read-only: accessors return copies, so the tree handed to the trainer
// can never be changed after it is produced.
type Resolved struct {
	root *Node
}

// NewResolved freezes a copy of tree.
func NewResolved(tree *Node) *Resolved {
	return &Resolved{root: tree.Clone()}
}

// Tree returns a deep copy of the resolved tree.
func (r *Resolved) Tree() *Node {
	return r.root.Clone()
}

// Get returns a copy of the value at a dotted path.
func (r *Resolved) Get(path string) (any, error) {
	v, err := r.root.LookupString(path)
	if err != nil {
		return nil, err
	}
	return CloneValue(v), nil
}

// Has reports whether a dotted path exists.
func (r *Resolved) Has(path string) bool {
	_, err := r.root.LookupString(path)
	return err == nil
}

// String returns the string at path, or an error if it is missing or not a
// string.
func (r *Resolved) String(path string) (string, error) {
	v, err := r.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("'%s' is %s, not string", path, KindName(v))
	}
	return s, nil
}

// Sub returns a copy of the mapping at path.
func (r *Resolved) Sub(path keypath.Path) (*Node, error) {
	v, err := r.root.Lookup(path)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*Node)
	if !ok {
		return nil, fmt.Errorf("'%s' is %s, not mapping", path, KindName(v))
	}
	return n.Clone(), nil
}

// YAML serializes the resolved tree.
func (r *Resolved) YAML() ([]byte, error) {
	return EncodeYAML(r.root)
}

// Equal compares two resolved configurations.
func (r *Resolved) Equal(other *Resolved) bool {
	return r.root.Equal(other.root)
}
