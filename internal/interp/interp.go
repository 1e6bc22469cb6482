// Package interp resolves ${...} interpolations in a composed configuration
// tree. Resolution is an explicit pass over an immutable input: references are
// looked up in the input tree, resolved on demand and memoized, and a
// reference chain that revisits a key fails with config.ErrInterpolationCycle.
package interp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/keypath"
)

// Interpolator resolves interpolations against a fixed root tree.
type Interpolator struct {
	root      *config.Node
	resolvers map[string]Resolver
	env       func(string) (string, bool)
	now       time.Time

	memo     map[string]any
	visiting map[string]bool
}

// Option configures an Interpolator.
type Option func(*Interpolator)

// WithResolver registers or replaces a named resolver.
func WithResolver(name string, r Resolver) Option {
	return func(ip *Interpolator) { ip.resolvers[name] = r }
}

// WithEnv replaces the environment lookup used by oc.env.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(ip *Interpolator) { ip.env = lookup }
}

// WithNow freezes the time reported by the now resolver.
func WithNow(t time.Time) Option {
	return func(ip *Interpolator) { ip.now = t }
}

// New creates an interpolator over root. root is never modified.
func New(root *config.Node, opts ...Option) *Interpolator {
	ip := &Interpolator{
		root:      root,
		resolvers: make(map[string]Resolver),
		memo:      make(map[string]any),
		visiting:  make(map[string]bool),
	}
	ip.registerBuiltins()
	for _, opt := range opts {
		opt(ip)
	}
	if ip.now.IsZero() {
		ip.now = time.Now()
	}
	return ip
}

// Resolve returns a copy of tree with every interpolation substituted.
func Resolve(ctx context.Context, tree *config.Node, opts ...Option) (*config.Node, error) {
	ip := New(tree, opts...)
	out, err := ip.Tree()
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Resolved interpolations.", "keys", len(ip.memo))
	return out, nil
}

// Tree resolves the whole root tree.
func (ip *Interpolator) Tree() (*config.Node, error) {
	v, err := ip.value(nil, ip.root)
	if err != nil {
		return nil, err
	}
	return v.(*config.Node), nil
}

// Lookup resolves the value at path.
func (ip *Interpolator) Lookup(path keypath.Path) (any, error) {
	v, err := ip.resolvePath(path)
	if err != nil {
		return nil, err
	}
	return config.CloneValue(v), nil
}

// Expand resolves a free-standing string as if it were stored at the root.
func (ip *Interpolator) Expand(s string) (any, error) {
	return ip.str(nil, s)
}

func (ip *Interpolator) resolvePath(path keypath.Path) (any, error) {
	key := path.String()
	if v, ok := ip.memo[key]; ok {
		return v, nil
	}
	if ip.visiting[key] {
		return nil, config.Errorf(config.ErrInterpolationCycle, key, "reference chain revisits '%s'", key)
	}
	ip.visiting[key] = true
	defer delete(ip.visiting, key)

	raw, resolved, err := ip.rawLookup(path)
	if err != nil {
		return nil, err
	}
	v := raw
	if !resolved {
		if v, err = ip.value(path, raw); err != nil {
			return nil, err
		}
	}
	ip.memo[key] = v
	return v, nil
}

// rawLookup walks the input tree. An intermediate string that is itself an
// interpolation is resolved first so references can pass through aliases.
// Past such an alias the walk is inside resolved output, which is reported
// so it is not evaluated a second time.
func (ip *Interpolator) rawLookup(path keypath.Path) (any, bool, error) {
	var cur any = ip.root
	resolved := false
	for i, seg := range path {
		if s, ok := cur.(string); ok && !resolved && hasInterpolation(s) {
			v, err := ip.resolvePath(path[:i])
			if err != nil {
				return nil, false, err
			}
			cur, resolved = v, true
		}
		next, err := config.Step(cur, seg)
		if err != nil {
			if config.IsMissing(err) {
				return nil, false, config.Errorf(config.ErrInterpolationUnresolved, path.String(), "key not found")
			}
			var cerr *config.Error
			if errors.As(err, &cerr) {
				return nil, false, &config.Error{Kind: config.ErrInterpolationUnresolved, Path: path.String(), Detail: cerr.Detail}
			}
			return nil, false, err
		}
		cur = next
	}
	return cur, resolved, nil
}

func (ip *Interpolator) value(at keypath.Path, v any) (any, error) {
	switch t := v.(type) {
	case string:
		return ip.str(at, t)
	case *config.Node:
		out := config.NewNode()
		for _, k := range t.Keys() {
			child, err := ip.resolvePath(at.Child(k))
			if err != nil {
				return nil, err
			}
			out.Set(k, config.CloneValue(child))
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := ip.value(at.Index(i), e)
			if err != nil {
				return nil, err
			}
			out[i] = config.CloneValue(r)
		}
		return out, nil
	}
	return v, nil
}

func (ip *Interpolator) str(at keypath.Path, s string) (any, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	tpl, err := parseTemplate(s)
	if err != nil {
		return nil, located(err, at)
	}
	v, err := ip.eval(at, tpl)
	if err != nil {
		return nil, located(err, at)
	}
	return v, nil
}

func (ip *Interpolator) eval(at keypath.Path, tpl template) (any, error) {
	if tpl.isSingle() {
		return ip.evalExpr(at, tpl[0].expr)
	}
	var sb strings.Builder
	for _, p := range tpl {
		if p.expr == nil {
			sb.WriteString(p.lit)
			continue
		}
		v, err := ip.evalExpr(at, p.expr)
		if err != nil {
			return nil, err
		}
		s, err := config.FormatScalar(v)
		if err != nil {
			return nil, config.Errorf(config.ErrInterpolationUnresolved, "",
				"cannot embed %s from ${%s} in a string", config.KindName(v), p.expr.text)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func (ip *Interpolator) evalString(at keypath.Path, tpl template) (string, error) {
	v, err := ip.eval(at, tpl)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return config.FormatScalar(v)
}

func (ip *Interpolator) evalExpr(at keypath.Path, e *expr) (any, error) {
	if e.resolver != "" {
		r, ok := ip.resolvers[e.resolver]
		if !ok {
			return nil, config.Errorf(config.ErrInterpolationUnresolved, "", "unknown resolver '%s' in ${%s}", e.resolver, e.text)
		}
		args := make([]any, len(e.args))
		for i, a := range e.args {
			v, err := ip.eval(at, a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		v, err := r(args)
		if err != nil {
			if errors.Is(err, config.ErrInterpolationCycle) || errors.Is(err, config.ErrInterpolationUnresolved) {
				return nil, err
			}
			return nil, config.Errorf(config.ErrInterpolationUnresolved, "", "${%s}: %v", e.text, err)
		}
		return config.Normalize(v)
	}

	key, err := ip.evalString(at, e.key)
	if err != nil {
		return nil, err
	}
	path, err := ip.target(at, key)
	if err != nil {
		return nil, err
	}
	v, err := ip.resolvePath(path)
	if err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) && errors.Is(err, config.ErrInterpolationUnresolved) && cerr.Detail == "key not found" {
			return nil, config.Errorf(config.ErrInterpolationUnresolved, "", "${%s}: key '%s' not found", e.text, path)
		}
		return nil, err
	}
	return v, nil
}

// target turns a reference key into an absolute path. Leading dots make it
// relative: one dot names a sibling of the referencing key, each further dot
// climbs one level.
func (ip *Interpolator) target(at keypath.Path, key string) (keypath.Path, error) {
	dots := len(key) - len(strings.TrimLeft(key, "."))
	base := keypath.Path(nil)
	if dots > 0 {
		if dots > len(at) {
			return nil, config.Errorf(config.ErrInterpolationUnresolved, "", "relative reference '%s' climbs above the root", key)
		}
		base = at[:len(at)-dots]
		key = key[dots:]
	}
	rel, err := keypath.Parse(key)
	if err != nil {
		return nil, &config.Error{Kind: config.ErrInterpolationUnresolved, Detail: "invalid reference '" + key + "'", Err: err}
	}
	return append(append(keypath.Path{}, base...), rel...), nil
}

// located attributes an error to the key holding the interpolation, keeping
// the innermost location when one is already set.
func located(err error, at keypath.Path) error {
	var cerr *config.Error
	if !errors.As(err, &cerr) || cerr.Path != "" || len(at) == 0 {
		return err
	}
	c := *cerr
	c.Path = at.String()
	return &c
}
