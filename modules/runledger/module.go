// Package runledger registers a callback that records runs and jobs in a
// SQLite database.
package runledger

import (
	"context"
	"errors"

	"github.com/vk/trainlaunch/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Params configures the ledger callback.
type Params struct {
	Path string `cty:"path"`
}

// Register registers the callback target.
func (m *Module) Register(r *registry.Registry) {
	r.Register("trainlaunch.callbacks.RunLedger", &registry.Target{
		Description: "Record runs and jobs in a SQLite database.",
		NewParams:   func() any { return &Params{} },
		Required:    []string{"path"},
		Positional:  []string{"path"},
		Validate: func(p any) error {
			if p.(*Params).Path == "" {
				return errors.New("path must not be empty")
			}
			return nil
		},
		Construct: func(_ context.Context, p any) (any, error) {
			return &Callback{path: p.(*Params).Path}, nil
		},
	})
}
