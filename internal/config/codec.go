package config

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Decode parses a document, choosing the format from the file extension.
// Unknown extensions are read as YAML.
func Decode(data []byte, source string) (*Node, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".toml":
		return DecodeTOML(data, source)
	default:
		return DecodeYAML(data, source)
	}
}

// DecodeYAML parses a YAML document into a Node, keeping key order. An empty
// document yields an empty Node; a top-level value other than a mapping is an
// error.
func DecodeYAML(data []byte, source string) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewNode(), nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return NewNode(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse %s: top level must be a mapping, got %s", source, yamlKindName(root))
	}
	v, err := fromYAML(root, source, "")
	if err != nil {
		return nil, err
	}
	return v.(*Node), nil
}

func fromYAML(y *yaml.Node, source, path string) (any, error) {
	switch y.Kind {
	case yaml.AliasNode:
		return fromYAML(y.Alias, source, path)
	case yaml.MappingNode:
		node := NewNode()
		explicit := make(map[string]bool, len(y.Content)/2)
		for i := 0; i+1 < len(y.Content); i += 2 {
			if !isMergeKey(y.Content[i]) {
				explicit[y.Content[i].Value] = true
			}
		}
		for i := 0; i+1 < len(y.Content); i += 2 {
			if isMergeKey(y.Content[i]) {
				if err := mergeYAML(node, y.Content[i+1], explicit, source, path); err != nil {
					return nil, err
				}
				continue
			}
			key := y.Content[i].Value
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if node.Has(key) {
				return nil, &Error{Kind: ErrConfigConflict, Path: childPath, Source: source,
					Detail: fmt.Sprintf("duplicate key on line %d", y.Content[i].Line)}
			}
			v, err := fromYAML(y.Content[i+1], source, childPath)
			if err != nil {
				return nil, err
			}
			node.Set(key, v)
		}
		return node, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(y.Content))
		for i, c := range y.Content {
			v, err := fromYAML(c, source, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := y.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode %s at '%s' (line %d): %w", source, path, y.Line, err)
		}
		return Normalize(v)
	}
	return nil, fmt.Errorf("unsupported YAML node at '%s' in %s", path, source)
}

func isMergeKey(k *yaml.Node) bool {
	return k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge"
}

// mergeYAML applies a `<<` entry: keys written in the mapping itself win,
// then earlier sources in a merge list win over later ones.
func mergeYAML(node *Node, src *yaml.Node, explicit map[string]bool, source, path string) error {
	sources := []*yaml.Node{src}
	if src.Kind == yaml.SequenceNode {
		sources = src.Content
	}
	for _, s := range sources {
		v, err := fromYAML(s, source, path)
		if err != nil {
			return err
		}
		m, ok := v.(*Node)
		if !ok {
			return &Error{Kind: ErrConfigConflict, Path: path, Source: source,
				Detail: fmt.Sprintf("merge key on line %d needs a mapping or a list of mappings, got %s", s.Line, KindName(v))}
		}
		for _, k := range m.Keys() {
			if explicit[k] || node.Has(k) {
				continue
			}
			mv, _ := m.Get(k)
			node.Set(k, mv)
		}
	}
	return nil
}

func yamlKindName(y *yaml.Node) string {
	switch y.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.MappingNode:
		return "mapping"
	}
	return "unknown"
}

// EncodeYAML serializes a Node as a YAML document. Floats always carry a
// decimal point so they decode back as floats.
func EncodeYAML(n *Node) ([]byte, error) {
	y, err := toYAML(n)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(y); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func toYAML(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Node:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range t.keys {
			key := &yaml.Node{}
			if err := key.Encode(k); err != nil {
				return nil, err
			}
			val, err := toYAML(t.values[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out.Content = append(out.Content, key, val)
		}
		return out, nil
	case []any:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(t) == 0 {
			out.Style = yaml.FlowStyle
		}
		for _, e := range t {
			val, err := toYAML(e)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, val)
		}
		return out, nil
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: yamlFloat(t)}, nil
	default:
		out := &yaml.Node{}
		if err := out.Encode(v); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func yamlFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	return formatFloat(f)
}

// DecodeTOML parses a TOML document. TOML tables carry no usable order, so
// keys are sorted.
func DecodeTOML(data []byte, source string) (*Node, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	v, err := fromTOML(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", source, err)
	}
	return v.(*Node), nil
}

func fromTOML(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		node := NewNode()
		for _, k := range keys {
			cv, err := fromTOML(t[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			node.Set(k, cv)
		}
		return node, nil
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			cv, err := fromTOML(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			cv, err := fromTOML(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	default:
		return Normalize(v)
	}
}
