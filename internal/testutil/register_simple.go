package testutil

import "github.com/vk/trainlaunch/internal/registry"

// SimpleModule is a test helper for registering a single target.
type SimpleModule struct {
	Name   string
	Target *registry.Target
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	if m.Name != "" && m.Target != nil {
		r.Register(m.Name, m.Target)
	}
}
