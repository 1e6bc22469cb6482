package registry

import (
	"fmt"
	"log/slog"
	"sort"
)

// Module is the interface that all modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the targets known to a single application instance.
type Registry struct {
	targets map[string]*Target
	aliases map[string]string
	checks  []crossCheck
}

// CrossCheck inspects the decoded params of every valid target subtree in a
// tree at once, keyed by canonical target name. It catches settings that only
// conflict across targets, such as a model sized for another dataset.
type CrossCheck func(found map[string][]any) error

type crossCheck struct {
	name string
	fn   CrossCheck
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		targets: make(map[string]*Target),
		aliases: make(map[string]string),
	}
}

// Register adds a target under its fully qualified name and its aliases.
// Registering the same name twice is a programming error and panics.
func (r *Registry) Register(name string, t *Target) {
	if t == nil || t.NewParams == nil {
		panic(fmt.Sprintf("target '%s' must provide NewParams", name))
	}
	if _, exists := r.resolveName(name); exists {
		panic(fmt.Sprintf("target with name '%s' already registered", name))
	}
	slog.Debug("Registering target.", "name", name, "constructible", t.Construct != nil)
	t.name = name
	r.targets[name] = t
	for _, alias := range t.Aliases {
		if _, exists := r.resolveName(alias); exists {
			panic(fmt.Sprintf("target alias '%s' already registered", alias))
		}
		r.aliases[alias] = name
	}
}

// RegisterCrossCheck adds a check that Validate runs once the individual
// targets of a tree are valid.
func (r *Registry) RegisterCrossCheck(name string, fn CrossCheck) {
	if fn == nil {
		panic(fmt.Sprintf("cross check '%s' is nil", name))
	}
	r.checks = append(r.checks, crossCheck{name: name, fn: fn})
}

// Lookup returns the target registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (*Target, bool) {
	canonical, ok := r.resolveName(name)
	if !ok {
		return nil, false
	}
	return r.targets[canonical], true
}

// Names lists the canonical target names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.targets))
	for n := range r.targets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) resolveName(name string) (string, bool) {
	if _, ok := r.targets[name]; ok {
		return name, true
	}
	canonical, ok := r.aliases[name]
	return canonical, ok
}
