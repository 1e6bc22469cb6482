// Package logjob registers the callback that logs how every job ended.
package logjob

import (
	"context"

	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/launcher"
	"github.com/vk/trainlaunch/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Params is empty: the callback takes no arguments.
type Params struct{}

// Callback logs each job's outcome.
type Callback struct {
	launcher.BaseCallback
}

// OnJobEnd implements launcher.Callback.
func (c *Callback) OnJobEnd(ctx context.Context, res *launcher.Result) error {
	logger := ctxlog.FromContext(ctx).With("job", res.Job.Num, "name", res.Job.Name)
	if res.Status() == launcher.StatusCompleted {
		logger.Info("Succeeded with return value.", "exit_code", res.ExitCode, "duration", res.Duration())
		return nil
	}
	logger.Error("Error executing job with overrides.", "overrides", res.Job.Overrides, "exit_code", res.ExitCode, "error", res.Err)
	return nil
}

// Register registers the callback target.
func (m *Module) Register(r *registry.Registry) {
	r.Register("hydra.experimental.callbacks.LogJobReturnCallback", &registry.Target{
		Description: "Log the return status of every job.",
		NewParams:   func() any { return &Params{} },
		Construct: func(context.Context, any) (any, error) {
			return &Callback{}, nil
		},
	})
}
