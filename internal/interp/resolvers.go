package interp

import (
	"errors"
	"fmt"
	"os"

	"github.com/ncruces/go-strftime"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/keypath"
)

// Resolver computes the value of `${name:arg1,arg2}`. Arguments arrive with
// their own interpolations already resolved.
type Resolver func(args []any) (any, error)

func (ip *Interpolator) registerBuiltins() {
	ip.env = os.LookupEnv
	ip.resolvers["oc.env"] = ip.envResolver
	ip.resolvers["now"] = ip.nowResolver
	ip.resolvers["hydra"] = ip.hydraResolver
	ip.resolvers["oc.select"] = ip.selectResolver
}

// envResolver implements ${oc.env:VAR[,default]}. A default of null yields
// null; a missing variable without default is an error.
func (ip *Interpolator) envResolver(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("oc.env expects a variable name and an optional default")
	}
	name, ok := args[0].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("oc.env: variable name must be a string")
	}
	if v, ok := ip.env(name); ok {
		return v, nil
	}
	if len(args) == 2 {
		if s, ok := args[1].(string); ok && s == "null" {
			return nil, nil
		}
		return args[1], nil
	}
	return nil, fmt.Errorf("environment variable '%s' is not set", name)
}

// nowResolver implements ${now:FORMAT} with strftime directives.
func (ip *Interpolator) nowResolver(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("now expects exactly one format argument")
	}
	layout, err := config.FormatScalar(args[0])
	if err != nil {
		return nil, fmt.Errorf("now: %w", err)
	}
	return strftime.Format(layout, ip.now), nil
}

// hydraResolver implements ${hydra:key} as a reference to hydra.key.
func (ip *Interpolator) hydraResolver(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("hydra expects exactly one key")
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("hydra: key must be a string")
	}
	rel, err := keypath.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("hydra: %w", err)
	}
	return ip.resolvePath(append(keypath.Keys("hydra"), rel...))
}

// selectResolver implements ${oc.select:key[,default]}, which falls back to
// default when key is missing.
func (ip *Interpolator) selectResolver(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("oc.select expects a key and an optional default")
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("oc.select: key must be a string")
	}
	path, err := keypath.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("oc.select: %w", err)
	}
	v, err := ip.resolvePath(path)
	if err == nil {
		return v, nil
	}
	if len(args) == 2 {
		var cerr *config.Error
		if errors.As(err, &cerr) && cerr.Detail == "key not found" {
			if s, ok := args[1].(string); ok && s == "null" {
				return nil, nil
			}
			return args[1], nil
		}
	}
	return nil, err
}
