package compose

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/ctxlog"
)

// SelfPolicy decides where a document's own body merges when its defaults
// list does not mention _self_.
type SelfPolicy int

const (
	// SelfLast merges the body after every fragment.
	SelfLast SelfPolicy = iota
	// SelfFirst merges the body before every fragment.
	SelfFirst
	// SelfRequired rejects documents with a non-empty defaults list and no _self_.
	SelfRequired
)

// ErrSelfMissing is returned under SelfRequired.
var ErrSelfMissing = errors.New("defaults list does not mention _self_")

// ParseSelfPolicy maps the CLI spelling of a policy to its value.
func ParseSelfPolicy(s string) (SelfPolicy, error) {
	switch strings.ToLower(s) {
	case "", "last":
		return SelfLast, nil
	case "first":
		return SelfFirst, nil
	case "required":
		return SelfRequired, nil
	}
	return 0, fmt.Errorf("invalid self policy %q: must be 'last', 'first' or 'required'", s)
}

// String implements fmt.Stringer.
func (p SelfPolicy) String() string {
	switch p {
	case SelfFirst:
		return "first"
	case SelfRequired:
		return "required"
	default:
		return "last"
	}
}

// GroupOverride replaces, adds or removes a group choice, e.g. `data=xournal`,
// `+logger=csv` or `~logger`.
type GroupOverride struct {
	Group  string
	Option string
	Add    bool
	Delete bool
}

// Choice records the option selected for a group. An empty Option means the
// group was disabled.
type Choice struct {
	Group  string
	Option string
}

// Result is the outcome of a composition.
type Result struct {
	Tree    *config.Node
	Choices []Choice
	Sources []string
}

// ChoicesNode renders the group choices as a mapping, in selection order.
func (r *Result) ChoicesNode() *config.Node {
	n := config.NewNode()
	for _, c := range r.Choices {
		if c.Option == "" {
			n.Set(c.Group, nil)
			continue
		}
		n.Set(c.Group, c.Option)
	}
	return n
}

// Loader composes configuration trees from a Repository.
type Loader struct {
	repo *Repository
	self SelfPolicy
}

// Option configures a Loader.
type Option func(*Loader)

// WithSelfPolicy sets the policy for documents that omit _self_.
func WithSelfPolicy(p SelfPolicy) Option {
	return func(l *Loader) { l.self = p }
}

// NewLoader creates a loader over repo.
func NewLoader(repo *Repository, opts ...Option) *Loader {
	l := &Loader{repo: repo}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Repository returns the loader's repository.
func (l *Loader) Repository() *Repository {
	return l.repo
}

// Compose loads the primary config and its defaults chain and merges them
// into a single tree. Group overrides take precedence over choices written in
// defaults lists.
func (l *Loader) Compose(ctx context.Context, primary string, overrides ...GroupOverride) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Composing configuration.", "primary", primary, "search_path", l.repo.Dirs(), "self_policy", l.self.String())

	root, err := l.repo.Load(primary)
	if err != nil {
		return nil, err
	}

	c := &composer{
		loader:   l,
		ctx:      ctx,
		pending:  make(map[string]*pendingChoice),
		visiting: make(map[string]bool),
		chosen:   make(map[string]int),
	}

	// `override group: option` entries in the primary config act like
	// command-line group overrides with lower precedence.
	for _, e := range root.Defaults {
		if e.Override {
			c.pending[entryGroup(root, e)] = &pendingChoice{option: e.Option, fromDefaults: true}
		}
	}
	for _, o := range overrides {
		c.pending[o.Group] = &pendingChoice{option: o.Option, add: o.Add, remove: o.Delete}
	}
	if err := c.collectOverrides(root); err != nil {
		return nil, err
	}

	tree, err := c.compose(root)
	if err != nil {
		return nil, err
	}

	if err := c.applyUnused(tree); err != nil {
		return nil, err
	}

	logger.Debug("Composition finished.", "documents", len(c.result.Sources), "choices", len(c.result.Choices))
	c.result.Tree = tree
	return &c.result, nil
}

type pendingChoice struct {
	option       string
	add          bool
	remove       bool
	fromDefaults bool
	used         bool
}

type composer struct {
	loader   *Loader
	ctx      context.Context
	pending  map[string]*pendingChoice
	visiting map[string]bool
	chosen   map[string]int
	result   Result
}

func (c *composer) compose(doc *Document) (*config.Node, error) {
	if c.visiting[doc.Name] {
		return nil, config.Errorf(config.ErrConfigConflict, "", "defaults cycle through '%s'", doc.Name).WithSource(doc.Source)
	}
	c.visiting[doc.Name] = true
	defer delete(c.visiting, doc.Name)
	c.result.Sources = append(c.result.Sources, doc.Source)

	entries, err := c.ordered(doc)
	if err != nil {
		return nil, err
	}
	pkg, err := doc.PackagePath()
	if err != nil {
		return nil, err
	}

	tree := config.NewNode()
	for _, e := range entries {
		if e.Override {
			continue
		}
		if e.Self {
			if err := mergeFrom(tree, config.At(pkg, doc.Body.Clone()), doc.Source); err != nil {
				return nil, err
			}
			continue
		}

		name, ok := c.resolveEntry(doc, e)
		if !ok {
			continue
		}
		child, err := c.loadFragment(name, e.Optional)
		if err != nil {
			return nil, fmt.Errorf("loading defaults of %s: %w", doc.Source, err)
		}
		if child == nil {
			continue
		}
		if e.Package != "" {
			child.Package = e.Package
		}
		sub, err := c.compose(child)
		if err != nil {
			return nil, err
		}
		if err := mergeFrom(tree, sub, child.Source); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// ordered places _self_ according to the loader's policy.
func (c *composer) ordered(doc *Document) (DefaultsList, error) {
	if doc.Defaults.HasSelf() {
		return doc.Defaults, nil
	}
	self := DefaultsEntry{Self: true}
	switch c.loader.self {
	case SelfFirst:
		return append(DefaultsList{self}, doc.Defaults...), nil
	case SelfRequired:
		if len(doc.Defaults) > 0 {
			return nil, fmt.Errorf("%s: %w", doc.Source, ErrSelfMissing)
		}
	}
	return append(append(DefaultsList{}, doc.Defaults...), self), nil
}

// maxOverridePasses bounds collectOverrides when fragments keep flipping
// each other's choices.
const maxOverridePasses = 16

// collectOverrides walks the defaults tree and records the `override` entries
// of every fragment below the primary, so that e.g. an experiment can switch
// a group listed before it. Command-line choices keep precedence. Choices
// made by overrides can pull in further fragments, so the walk repeats until
// nothing changes.
func (c *composer) collectOverrides(root *Document) error {
	for pass := 0; pass < maxOverridePasses; pass++ {
		before := make(map[string]string, len(c.pending))
		for g, p := range c.pending {
			before[g] = p.option
		}
		seen := make(map[string]bool)

		var walk func(doc *Document) error
		walk = func(doc *Document) error {
			if seen[doc.Name] {
				return nil
			}
			seen[doc.Name] = true
			for _, e := range doc.Defaults {
				switch {
				case e.Self:
					continue
				case e.Override:
					if doc == root {
						continue
					}
					// Later entries win; command-line choices always do.
					group := entryGroup(doc, e)
					if p, ok := c.pending[group]; ok && !p.fromDefaults {
						continue
					}
					c.pending[group] = &pendingChoice{option: e.Option, fromDefaults: true}
					continue
				}
				name, ok := c.choose(doc, e)
				if !ok {
					continue
				}
				child, err := c.loader.repo.Load(name)
				if errors.Is(err, config.ErrConfigNotFound) {
					// Reported, or skipped for optional entries, by compose.
					continue
				}
				if err != nil {
					return err
				}
				if err := walk(child); err != nil {
					return err
				}
			}
			return nil
		}

		if err := walk(root); err != nil {
			return err
		}
		changed := len(before) != len(c.pending)
		for g, p := range c.pending {
			if opt, ok := before[g]; !ok || opt != p.option {
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
	return config.Errorf(config.ErrConfigConflict, "", "override entries keep changing each other's choices")
}

// entryGroup returns the group a defaults entry refers to. Groups are
// relative to the document's own group unless they start with '/'.
func entryGroup(doc *Document, e DefaultsEntry) string {
	if strings.HasPrefix(e.Group, "/") {
		return strings.TrimPrefix(e.Group, "/")
	}
	return joinGroup(doc.Group, e.Group)
}

// choose maps a defaults entry to a config name with pending group overrides
// applied. It returns false when the group is disabled.
func (c *composer) choose(doc *Document, e DefaultsEntry) (string, bool) {
	if e.Group == "" {
		if strings.HasPrefix(e.Option, "/") {
			return strings.TrimPrefix(e.Option, "/"), true
		}
		return joinGroup(doc.Group, e.Option), true
	}
	group := entryGroup(doc, e)
	option := e.Option
	if p, ok := c.pending[group]; ok && !p.add {
		option = p.option
		if p.remove {
			option = ""
		}
	}
	if option == "" || option == "null" {
		return "", false
	}
	return group + "/" + option, true
}

// resolveEntry is choose plus bookkeeping: the override is marked used and
// the choice recorded.
func (c *composer) resolveEntry(doc *Document, e DefaultsEntry) (string, bool) {
	if e.Group == "" {
		return c.choose(doc, e)
	}

	group := entryGroup(doc, e)
	option := e.Option
	if p, ok := c.pending[group]; ok && !p.add {
		p.used = true
		option = p.option
		if p.remove {
			option = ""
		}
	}
	c.record(group, option)

	if option == "" || option == "null" {
		ctxlog.FromContext(c.ctx).Debug("Group disabled.", "group", group)
		return "", false
	}
	return group + "/" + option, true
}

func (c *composer) record(group, option string) {
	if option == "null" {
		option = ""
	}
	if i, ok := c.chosen[group]; ok {
		c.result.Choices[i].Option = option
		return
	}
	c.chosen[group] = len(c.result.Choices)
	c.result.Choices = append(c.result.Choices, Choice{Group: group, Option: option})
}

func (c *composer) loadFragment(name string, optional bool) (*Document, error) {
	doc, err := c.loader.repo.Load(name)
	if err != nil {
		if optional && errors.Is(err, config.ErrConfigNotFound) {
			ctxlog.FromContext(c.ctx).Debug("Optional fragment not found, skipping.", "name", name)
			return nil, nil
		}
		return nil, err
	}
	ctxlog.FromContext(c.ctx).Debug("Loaded fragment.", "name", name, "source", doc.Source)
	return doc, nil
}

// applyUnused appends `+group=option` additions and rejects overrides that
// matched nothing.
func (c *composer) applyUnused(tree *config.Node) error {
	var unmatched []string
	for _, group := range sortedKeys(c.pending) {
		p := c.pending[group]
		switch {
		case p.used:
		case p.add:
			if _, exists := c.chosen[group]; exists {
				return config.Errorf(config.ErrInvalidOverridePath, group,
					"group already has a default, override it with '%s=%s' instead", group, p.option)
			}
			c.record(group, p.option)
			child, err := c.loadFragment(group+"/"+p.option, false)
			if err != nil {
				return err
			}
			sub, err := c.compose(child)
			if err != nil {
				return err
			}
			if err := mergeFrom(tree, sub, child.Source); err != nil {
				return err
			}
		case p.fromDefaults:
			unmatched = append(unmatched, fmt.Sprintf("override %s: %s", group, p.option))
		default:
			unmatched = append(unmatched, group)
		}
	}
	if len(unmatched) > 0 {
		return config.Errorf(config.ErrInvalidOverridePath, "",
			"could not override [%s]: no match in the defaults list (use '+group=option' to add one)", strings.Join(unmatched, ", "))
	}
	return nil
}

func mergeFrom(dst, src *config.Node, source string) error {
	err := config.Merge(dst, src)
	var cerr *config.Error
	if errors.As(err, &cerr) {
		return cerr.WithSource(source)
	}
	return err
}

func joinGroup(group, name string) string {
	if group == "" {
		return name
	}
	return path.Join(group, name)
}
