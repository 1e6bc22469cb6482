package registry

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// schema returns the object type implied by a target's params struct.
func schema(t *Target) (cty.Type, error) {
	ty, err := gocty.ImpliedType(t.NewParams())
	if err != nil {
		return cty.NilType, err
	}
	if !ty.IsObjectType() {
		return cty.NilType, fmt.Errorf("params must be a struct with cty tags, got %s", ty.FriendlyName())
	}
	return ty, nil
}

// Keys lists the argument names a target accepts, sorted.
func (t *Target) Keys() []string {
	ty, err := schema(t)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(ty.AttributeTypes()))
	for k := range ty.AttributeTypes() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decode converts the given arguments into a fresh params value. With
// complete set, required keys must be present and Validate runs.
func decode(t *Target, args map[string]any, complete bool) (any, error) {
	params := t.NewParams()
	ty, err := schema(t)
	if err != nil {
		return nil, err
	}
	defaults, err := gocty.ToCtyValue(params, ty)
	if err != nil {
		return nil, fmt.Errorf("params defaults: %w", err)
	}

	attrs := make(map[string]cty.Value, len(ty.AttributeTypes()))
	for name := range ty.AttributeTypes() {
		attrs[name] = defaults.GetAttr(name)
	}

	var errs []error
	for _, key := range sortedArgKeys(args) {
		attrTy, ok := ty.AttributeTypes()[key]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown argument '%s' (accepted: %s)", key, strings.Join(t.Keys(), ", ")))
			continue
		}
		v, err := toCty(args[key])
		if err != nil {
			errs = append(errs, fmt.Errorf("argument '%s': %w", key, err))
			continue
		}
		converted, err := convert.Convert(v, attrTy)
		if err != nil {
			errs = append(errs, fmt.Errorf("argument '%s': expected %s, got %s", key, attrTy.FriendlyName(), describe(args[key])))
			continue
		}
		attrs[key] = converted
	}
	if complete {
		for _, key := range t.Required {
			if _, ok := args[key]; !ok {
				errs = append(errs, fmt.Errorf("missing required argument '%s'", key))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := gocty.FromCtyValue(cty.ObjectVal(attrs), params); err != nil {
		return nil, err
	}
	if complete && t.Validate != nil {
		if err := t.Validate(params); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// arguments extracts the non-reserved keys of a subtree, expanding `_args_`
// onto the target's positional names.
func arguments(t *Target, node *config.Node) (map[string]any, error) {
	args := make(map[string]any, node.Len())
	for _, k := range node.Keys() {
		if IsReserved(k) {
			continue
		}
		v, _ := node.Get(k)
		args[k] = v
	}

	raw, ok := node.Get(KeyArgs)
	if !ok || raw == nil {
		return args, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %s", KeyArgs, config.KindName(raw))
	}
	if len(list) > len(t.Positional) {
		return nil, fmt.Errorf("%s has %d entries but the target takes %d positional arguments", KeyArgs, len(list), len(t.Positional))
	}
	for i, v := range list {
		name := t.Positional[i]
		if _, dup := args[name]; dup {
			return nil, fmt.Errorf("argument '%s' given both positionally and by name", name)
		}
		args[name] = v
	}
	return args, nil
}

// toCty converts a config value into a cty value. Lists become tuples and
// mappings become objects so convert.Convert can fit them to any field type.
func toCty(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return cty.NilVal, fmt.Errorf("%v cannot be represented", t)
		}
		return cty.NumberFloatVal(t), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			ev, err := toCty(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	case *config.Node:
		if t.Len() == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, t.Len())
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			cv, err := toCty(child)
			if err != nil {
				return cty.NilVal, fmt.Errorf("%s: %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported value of type %s", reflect.TypeOf(v))
}

func describe(v any) string {
	if s, err := config.FormatScalar(v); err == nil {
		return fmt.Sprintf("%s %s", config.KindName(v), s)
	}
	return config.KindName(v)
}

func sortedArgKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
