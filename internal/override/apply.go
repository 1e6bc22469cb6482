package override

import (
	"context"
	"fmt"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/ctxlog"
)

// Policy controls how a plain `key=value` treats keys that do not exist.
type Policy int

const (
	// CreateIntermediate creates the key and any missing parent mappings.
	CreateIntermediate Policy = iota
	// Strict requires the key to exist already; use `+key` or `++key` to add.
	Strict
)

// ParsePolicy maps the CLI spelling of a policy to its value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "create":
		return CreateIntermediate, nil
	case "strict":
		return Strict, nil
	}
	return 0, fmt.Errorf("invalid override policy %q: must be 'create' or 'strict'", s)
}

// String implements fmt.Stringer.
func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "create"
}

// Applier applies parsed assignments to a tree.
type Applier struct {
	policy Policy
}

// NewApplier creates an applier with the given policy.
func NewApplier(policy Policy) *Applier {
	return &Applier{policy: policy}
}

// Apply applies the assignments to tree in order, mutating it. Assignments
// must be plain key assignments with their sweeps already expanded.
func (a *Applier) Apply(ctx context.Context, tree *config.Node, assignments []Assignment) error {
	logger := ctxlog.FromContext(ctx)
	for _, as := range assignments {
		if err := a.apply(tree, as); err != nil {
			return err
		}
		logger.Debug("Applied override.", "override", as.String(), "op", as.Op.String())
	}
	return nil
}

func (a *Applier) apply(tree *config.Node, as Assignment) error {
	if as.Sweep != nil {
		return config.Errorf(config.ErrInvalidLiteral, as.Key, "sweep '%s' must be expanded before it is applied", as.Sweep)
	}
	if as.Path == nil {
		return config.Errorf(config.ErrInvalidOverridePath, as.Key, "'%s' is not a key path", as.Key)
	}

	current, err := tree.Lookup(as.Path)
	exists := err == nil
	if err != nil && !config.IsMissing(err) {
		return err
	}

	switch as.Op {
	case OpSet:
		if !exists && a.policy == Strict {
			return config.Errorf(config.ErrInvalidOverridePath, as.Key,
				"key does not exist; to add it use +%s=%s", as.Key, as.Raw)
		}
		return tree.SetPath(as.Path, config.CloneValue(as.Value), a.policy == CreateIntermediate)

	case OpAdd:
		if exists {
			return config.Errorf(config.ErrInvalidOverridePath, as.Key,
				"key already exists; to override it use %s=%s or ++%s=%s", as.Key, as.Raw, as.Key, as.Raw)
		}
		return tree.SetPath(as.Path, config.CloneValue(as.Value), true)

	case OpForce:
		return tree.SetPath(as.Path, config.CloneValue(as.Value), true)

	case OpDelete:
		if !exists {
			return config.Errorf(config.ErrInvalidOverridePath, as.Key, "cannot delete a key that does not exist")
		}
		if as.HasValue && !config.ValueEqual(current, as.Value) {
			want, _ := config.FormatScalar(as.Value)
			return config.Errorf(config.ErrInvalidOverridePath, as.Key,
				"cannot delete: value %s does not match %s", describe(current), want)
		}
		_, err := tree.DeletePath(as.Path)
		return err
	}
	return fmt.Errorf("unknown override operation %d", as.Op)
}

func describe(v any) string {
	if s, err := config.FormatScalar(v); err == nil {
		return s
	}
	return config.KindName(v)
}
