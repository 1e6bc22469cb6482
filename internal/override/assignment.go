package override

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/keypath"
)

// Op is the operation an assignment performs.
type Op int

const (
	// OpSet replaces the value at an existing key: `key=value`.
	OpSet Op = iota
	// OpAdd adds a key that must not exist yet: `+key=value`.
	OpAdd
	// OpForce sets the value whether or not the key exists: `++key=value`.
	OpForce
	// OpDelete removes a key: `~key` or `~key=value`.
	OpDelete
)

func (o Op) prefix() string {
	switch o {
	case OpAdd:
		return "+"
	case OpForce:
		return "++"
	case OpDelete:
		return "~"
	}
	return ""
}

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpForce:
		return "force-add"
	case OpDelete:
		return "delete"
	}
	return "set"
}

var groupKey = regexp.MustCompile(`^[a-zA-Z0-9_-]+(/[a-zA-Z0-9_-]+)*$`)

// Assignment is one parsed override token.
type Assignment struct {
	Key      string       // key as written, e.g. "data.batch_size" or "logger/tb"
	Path     keypath.Path // nil when Key is only valid as a group name
	Op       Op
	Raw      string // value text as written
	Value    any    // parsed value; nil for `null`
	HasValue bool   // false for a bare `~key`
	Sweep    *Sweep // non-nil when the value lists alternatives
}

// Parse reads a single override token.
func Parse(token string) (Assignment, error) {
	var a Assignment
	rest := token
	switch {
	case strings.HasPrefix(rest, "++"):
		a.Op, rest = OpForce, rest[2:]
	case strings.HasPrefix(rest, "+"):
		a.Op, rest = OpAdd, rest[1:]
	case strings.HasPrefix(rest, "~"):
		a.Op, rest = OpDelete, rest[1:]
	}

	key, raw, found := strings.Cut(rest, "=")
	a.Key = strings.TrimSpace(key)
	if !found && a.Op != OpDelete {
		return Assignment{}, config.Errorf(config.ErrInvalidOverridePath, a.Key,
			"override '%s' has no '=': expected key=value", token)
	}

	if err := a.parseKey(); err != nil {
		return Assignment{}, err
	}
	if !found {
		return a, nil
	}

	a.Raw, a.HasValue = raw, true
	sweep, err := ParseSweep(raw)
	if err != nil {
		return Assignment{}, withPath(err, a.Key)
	}
	if sweep != nil {
		if a.Op == OpDelete {
			return Assignment{}, config.Errorf(config.ErrInvalidLiteral, a.Key, "cannot sweep a delete override")
		}
		a.Sweep = sweep
		return a, nil
	}
	a.Value, err = ParseValue(unescapeCommas(raw))
	if err != nil {
		return Assignment{}, withPath(err, a.Key)
	}
	return a, nil
}

// ParseAll parses tokens in order, stopping at the first failure.
func ParseAll(tokens []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(tokens))
	for _, tok := range tokens {
		a, err := Parse(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (a *Assignment) parseKey() error {
	if a.Key == "" {
		return config.Errorf(config.ErrInvalidOverridePath, "", "override key cannot be empty")
	}
	p, err := keypath.Parse(a.Key)
	if err == nil {
		a.Path = p
		return nil
	}
	if groupKey.MatchString(a.Key) {
		return nil
	}
	return &config.Error{Kind: config.ErrInvalidOverridePath, Path: a.Key, Err: err}
}

// IsSweep reports whether the assignment still carries alternatives.
func (a Assignment) IsSweep() bool {
	return a.Sweep != nil
}

// Choose returns a copy of the assignment fixed to the i-th sweep alternative.
func (a Assignment) Choose(i int) Assignment {
	if a.Sweep == nil {
		return a
	}
	out := a
	out.Value = config.CloneValue(a.Sweep.Values[i])
	out.Raw = a.Sweep.Raws[i]
	out.Sweep = nil
	return out
}

// String renders the assignment as a command-line token.
func (a Assignment) String() string {
	if !a.HasValue {
		return a.Op.prefix() + a.Key
	}
	return fmt.Sprintf("%s%s=%s", a.Op.prefix(), a.Key, a.Raw)
}

func withPath(err error, key string) error {
	if cerr, ok := err.(*config.Error); ok && cerr.Path == "" {
		c := *cerr
		c.Path = key
		return &c
	}
	return err
}
