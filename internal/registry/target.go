package registry

import (
	"context"
	"fmt"
)

// Reserved keys of a target subtree.
const (
	KeyTarget    = "_target_"
	KeyPartial   = "_partial_"
	KeyRecursive = "_recursive_"
	KeyConvert   = "_convert_"
	KeyArgs      = "_args_"
)

var reservedKeys = map[string]bool{
	KeyTarget:    true,
	KeyPartial:   true,
	KeyRecursive: true,
	KeyConvert:   true,
	KeyArgs:      true,
}

// IsReserved reports whether key is one of the reserved target keys.
func IsReserved(key string) bool {
	return reservedKeys[key]
}

// Target describes what a `_target_` accepts and, optionally, how to build it.
type Target struct {
	Description string
	Aliases     []string

	// NewParams returns a pointer to a struct with `cty` tags, pre-filled with
	// defaults. Fields of type cty.Value accept any value and must be
	// initialized to a null value.
	NewParams func() any

	// Required lists keys that must be present in the subtree.
	Required []string

	// Positional names the keys that `_args_` entries fill, in order.
	Positional []string

	// Validate checks cross-field constraints after decoding.
	Validate func(params any) error

	// Construct builds the object. Targets without it are schema-only and
	// instantiate to their decoded params.
	Construct func(ctx context.Context, params any) (any, error)

	name string
}

// Name returns the canonical name the target was registered under.
func (t *Target) Name() string {
	return t.name
}

// Partial is a target whose construction waits for late arguments.
type Partial struct {
	target *Target
	args   map[string]any
}

// Target returns the partially applied target.
func (p *Partial) Target() *Target {
	return p.target
}

// Call merges late arguments over the early ones and instantiates the target.
func (p *Partial) Call(ctx context.Context, late map[string]any) (any, error) {
	merged := make(map[string]any, len(p.args)+len(late))
	for k, v := range p.args {
		merged[k] = v
	}
	for k, v := range late {
		merged[k] = v
	}
	params, err := decode(p.target, merged, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTargetArgs, p.target.name, err)
	}
	return build(ctx, p.target, params)
}

func build(ctx context.Context, t *Target, params any) (any, error) {
	if t.Construct == nil {
		return params, nil
	}
	obj, err := t.Construct(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to construct '%s': %w", t.name, err)
	}
	return obj, nil
}
