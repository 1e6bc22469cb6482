package testutil

import (
	"github.com/vk/trainlaunch/internal/registry"
)

// NoOpTarget is the name NoOpModule registers.
const NoOpTarget = "test.NoOp"

// NoOpModule registers a single schema-only target that accepts no
// arguments. It is useful for configs that need a registered `_target_`
// without exercising any real schema.
type NoOpModule struct{}

// Register implements the registry.Module interface.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.Register(NoOpTarget, &registry.Target{
		NewParams: func() any { return new(struct{}) },
	})
}
