package compose

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/keypath"
)

// Reserved package names.
const (
	PackageGlobal = "_global_"
	PackageGroup  = "_group_"
	selfEntry     = "_self_"
	defaultsKey   = "defaults"
)

var packageHeader = regexp.MustCompile(`^#\s*@package\s+(\S+)\s*$`)

// Document is a parsed config file: its defaults list and its own body.
type Document struct {
	Name     string // e.g. "paths/default"
	Group    string // e.g. "paths"; empty for primary configs
	Source   string // file the document was read from
	Package  string // from the header or the defaults entry; empty means _group_
	Defaults DefaultsList
	Body     *config.Node
}

// DefaultsEntry is one element of a defaults list.
type DefaultsEntry struct {
	Group    string // empty for _self_ and plain config names
	Option   string // option within Group, or a config name; empty when disabled
	Package  string // from `group@package: option`
	Self     bool
	Optional bool
	Override bool
}

// String renders the entry the way it is written in a defaults list.
func (e DefaultsEntry) String() string {
	if e.Self {
		return selfEntry
	}
	if e.Group == "" {
		return e.Option
	}
	var sb strings.Builder
	if e.Optional {
		sb.WriteString("optional ")
	}
	if e.Override {
		sb.WriteString("override ")
	}
	sb.WriteString(e.Group)
	if e.Package != "" {
		sb.WriteString("@" + e.Package)
	}
	sb.WriteString(": ")
	if e.Option == "" {
		sb.WriteString("null")
	} else {
		sb.WriteString(e.Option)
	}
	return sb.String()
}

// DefaultsList is the ordered list of fragments a document pulls in.
type DefaultsList []DefaultsEntry

// HasSelf reports whether the list mentions _self_.
func (l DefaultsList) HasSelf() bool {
	for _, e := range l {
		if e.Self {
			return true
		}
	}
	return false
}

// ParseDocument parses the raw bytes of a config file.
func ParseDocument(name, source string, data []byte) (*Document, error) {
	body, err := config.Decode(data, source)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Name:    name,
		Group:   groupOf(name),
		Source:  source,
		Package: headerPackage(data),
		Body:    body,
	}

	if raw, ok := body.Get(defaultsKey); ok {
		defaults, err := parseDefaults(raw, source)
		if err != nil {
			return nil, err
		}
		doc.Defaults = defaults
		body.Delete(defaultsKey)
	}
	return doc, nil
}

// PackagePath returns where the document's body merges in the final tree.
func (d *Document) PackagePath() (keypath.Path, error) {
	pkg := d.Package
	switch pkg {
	case PackageGlobal:
		return nil, nil
	case "", PackageGroup:
		if d.Group == "" {
			return nil, nil
		}
		return keypath.Keys(strings.Split(d.Group, "/")...), nil
	}
	pkg = strings.TrimPrefix(pkg, PackageGlobal+".")
	pkg = strings.ReplaceAll(pkg, PackageGroup, strings.ReplaceAll(d.Group, "/", "."))
	p, err := keypath.Parse(pkg)
	if err != nil {
		return nil, fmt.Errorf("invalid package %q in %s: %w", d.Package, d.Source, err)
	}
	return p, nil
}

func groupOf(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return ""
	}
	return dir
}

// headerPackage reads a `# @package` directive from the leading comment block.
func headerPackage(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		if m := packageHeader.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

func parseDefaults(raw any, source string) (DefaultsList, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: defaults must be a list, got %s", source, config.KindName(raw))
	}

	list := make(DefaultsList, 0, len(items))
	for i, item := range items {
		entry, err := parseEntry(item)
		if err != nil {
			return nil, fmt.Errorf("%s: defaults[%d]: %w", source, i, err)
		}
		list = append(list, entry)
	}
	return list, nil
}

func parseEntry(item any) (DefaultsEntry, error) {
	switch t := item.(type) {
	case string:
		if t == selfEntry {
			return DefaultsEntry{Self: true}, nil
		}
		if t == "" {
			return DefaultsEntry{}, fmt.Errorf("empty config name")
		}
		return DefaultsEntry{Option: t}, nil
	case *config.Node:
		if t.Len() != 1 {
			return DefaultsEntry{}, fmt.Errorf("entry must have exactly one key, got %d", t.Len())
		}
		key := t.Keys()[0]
		value, _ := t.Get(key)

		var entry DefaultsEntry
		for {
			switch {
			case strings.HasPrefix(key, "optional "):
				entry.Optional = true
				key = strings.TrimSpace(strings.TrimPrefix(key, "optional "))
				continue
			case strings.HasPrefix(key, "override "):
				entry.Override = true
				key = strings.TrimSpace(strings.TrimPrefix(key, "override "))
				continue
			}
			break
		}
		if group, pkg, found := strings.Cut(key, "@"); found {
			entry.Group, entry.Package = group, pkg
		} else {
			entry.Group = key
		}
		if entry.Group == "" {
			return DefaultsEntry{}, fmt.Errorf("empty group name")
		}

		switch v := value.(type) {
		case nil:
		case string:
			entry.Option = v
		case []any:
			return DefaultsEntry{}, fmt.Errorf("group '%s': selecting multiple options is not supported", entry.Group)
		default:
			s, err := config.FormatScalar(v)
			if err != nil {
				return DefaultsEntry{}, fmt.Errorf("group '%s': option must be a name, got %s", entry.Group, config.KindName(v))
			}
			entry.Option = s
		}
		return entry, nil
	}
	return DefaultsEntry{}, fmt.Errorf("entry must be a name or a single-key mapping, got %s", config.KindName(item))
}
