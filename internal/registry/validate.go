package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/keypath"
)

// Check verifies that every registered target has a usable params struct:
// it implies an object type, its defaults convert, and its required and
// positional names exist.
func (r *Registry) Check(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var problems []Problem

	for _, name := range r.Names() {
		t := r.targets[name]
		ty, err := schema(t)
		if err != nil {
			problems = append(problems, Problem{Target: name, Err: err})
			continue
		}
		for _, key := range append(append([]string{}, t.Required...), t.Positional...) {
			if !ty.HasAttribute(key) {
				problems = append(problems, Problem{Target: name, Err: fmt.Errorf("declares argument '%s' which is not a params field", key)})
			}
		}
		if _, err := decode(t, nil, false); err != nil {
			problems = append(problems, Problem{Target: name, Err: fmt.Errorf("defaults do not decode: %w", err)})
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	logger.Debug("Registry check passed.", "targets", len(r.targets))
	return nil
}

// Validate checks every `_target_` subtree of tree. Unregistered targets are
// logged and skipped, or reported when strict is set. Cross checks run when
// every subtree passed. The tree is not modified.
func (r *Registry) Validate(ctx context.Context, tree *config.Node, strict bool) error {
	logger := ctxlog.FromContext(ctx)
	var problems []Problem
	checked := 0
	found := make(map[string][]any)

	err := tree.Walk(func(path keypath.Path, node *config.Node) error {
		raw, ok := node.Get(KeyTarget)
		if !ok {
			return nil
		}
		name, ok := raw.(string)
		if !ok || name == "" {
			problems = append(problems, Problem{Path: path.String(), Err: fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidTargetArgs, KeyTarget)})
			return nil
		}

		t, ok := r.Lookup(name)
		if !ok {
			if strict {
				problems = append(problems, Problem{Path: path.String(), Target: name, Err: ErrTargetNotRegistered})
			} else {
				logger.Warn("Unregistered target, skipping validation.", "path", path.String(), "target", name)
			}
			return nil
		}

		checked++
		p, err := r.prepare(t, node)
		if err != nil {
			problems = append(problems, Problem{Path: path.String(), Target: name, Err: err})
			return nil
		}
		if p.params != nil {
			found[t.name] = append(found[t.name], p.params)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(problems) == 0 {
		for _, c := range r.checks {
			if err := c.fn(found); err != nil {
				problems = append(problems, Problem{Err: fmt.Errorf("%w: %s: %w", ErrInvalidTargetArgs, c.name, err)})
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	logger.Debug("Validated targets.", "checked", checked)
	return nil
}

// Instantiate decodes a target subtree and builds it. A subtree marked
// `_partial_: true` yields a *Partial instead.
func (r *Registry) Instantiate(ctx context.Context, node *config.Node) (any, error) {
	raw, _ := node.Get(KeyTarget)
	name, ok := raw.(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidTargetArgs, KeyTarget)
	}
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrTargetNotRegistered, name)
	}

	prepared, err := r.prepare(t, node)
	if err != nil {
		return nil, fmt.Errorf("'%s': %w", name, err)
	}
	if prepared.partial != nil {
		return prepared.partial, nil
	}
	ctxlog.FromContext(ctx).Debug("Instantiating target.", "target", name)
	return build(ctx, t, prepared.params)
}

type prepared struct {
	params  any
	partial *Partial
}

func (r *Registry) prepare(t *Target, node *config.Node) (prepared, error) {
	partial, err := flag(node, KeyPartial)
	if err != nil {
		return prepared{}, err
	}
	if _, err := flag(node, KeyRecursive); err != nil {
		return prepared{}, err
	}

	args, err := arguments(t, node)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: %w", ErrInvalidTargetArgs, err)
	}

	params, err := decode(t, args, !partial)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: %w", ErrInvalidTargetArgs, err)
	}
	if partial {
		plain := make(map[string]any, len(args))
		for k, v := range args {
			plain[k] = config.CloneValue(v)
		}
		return prepared{partial: &Partial{target: t, args: plain}}, nil
	}
	return prepared{params: params}, nil
}

func flag(node *config.Node, key string) (bool, error) {
	v, ok := node.Get(key)
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %s", ErrInvalidTargetArgs, key, config.KindName(v))
	}
	return b, nil
}

// IsTarget reports whether err came from target validation.
func IsTarget(err error) bool {
	return errors.Is(err, ErrInvalidTargetArgs) || errors.Is(err, ErrTargetNotRegistered)
}
