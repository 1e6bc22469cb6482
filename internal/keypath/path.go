// internal/keypath/path.go
package keypath

import (
	"slices"
	"strconv"
	"strings"
)

// String serializes the path into its canonical dotted representation.
func (p Path) String() string {
	var sb strings.Builder
	for i, segment := range p {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(segment.Name)
		if segment.HasIndex() {
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(segment.Index))
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// Equal reports whether two paths address the same key.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// Child returns a new path extended by a plain key.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, NewSegment(name))
}

// Index returns a new path whose last segment addresses list element i.
// Nested lists are not addressable; the innermost index wins.
func (p Path) Index(i int) Path {
	if len(p) == 0 {
		return p
	}
	out := slices.Clone(p)
	out[len(out)-1].Index = i
	return out
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && slices.Equal(p[:len(prefix)], prefix)
}
