// internal/keypath/parser.go
package keypath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// segmentRegex parses a single segment of a path, e.g. `name` or `name[1]`.
var segmentRegex = regexp.MustCompile(`^([a-zA-Z0-9_@-]+)(?:\[(\d+)\])?$`)

// isValidSegmentName checks for undesirable but technically matching names.
func isValidSegmentName(name string) bool {
	return name != "-" && name != "@"
}

// Parse creates a Path from its canonical string representation.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return nil, fmt.Errorf("key path cannot be empty")
	}

	var path Path
	for _, segmentStr := range strings.Split(raw, ".") {
		if segmentStr == "" {
			return nil, fmt.Errorf("key path %q contains empty segment", raw)
		}

		matches := segmentRegex.FindStringSubmatch(segmentStr)
		if matches == nil {
			return nil, fmt.Errorf("invalid key path segment %q in %q", segmentStr, raw)
		}

		name := matches[1]
		if !isValidSegmentName(name) {
			return nil, fmt.Errorf("invalid key name %q in %q", name, raw)
		}

		segment := NewSegment(name)
		if matches[2] != "" {
			index, err := strconv.Atoi(matches[2])
			if err != nil {
				return nil, fmt.Errorf("invalid index in %q: %w", segmentStr, err)
			}
			segment.Index = index
		}
		path = append(path, segment)
	}

	return path, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// constant paths in code.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Keys builds a path of plain (unindexed) segments.
func Keys(names ...string) Path {
	path := make(Path, 0, len(names))
	for _, name := range names {
		path = append(path, NewSegment(name))
	}
	return path
}
