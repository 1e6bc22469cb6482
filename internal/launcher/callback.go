package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/registry"
)

// Callback observes a run. Callbacks are configured under hydra.callbacks as
// `_target_` subtrees and built through the registry.
type Callback interface {
	OnRunStart(ctx context.Context, run *Run) error
	OnJobStart(ctx context.Context, job *Job) error
	OnJobEnd(ctx context.Context, res *Result) error
	OnRunEnd(ctx context.Context, run *Run, results []*Result) error
}

// BaseCallback implements Callback with no-ops for embedding.
type BaseCallback struct{}

func (BaseCallback) OnRunStart(context.Context, *Run) error          { return nil }
func (BaseCallback) OnJobStart(context.Context, *Job) error          { return nil }
func (BaseCallback) OnJobEnd(context.Context, *Result) error         { return nil }
func (BaseCallback) OnRunEnd(context.Context, *Run, []*Result) error { return nil }

type namedCallback struct {
	name string
	cb   Callback
}

// buildCallbacks instantiates the entries of a resolved hydra.callbacks
// mapping in key order. Null entries are disabled callbacks.
func buildCallbacks(ctx context.Context, reg *registry.Registry, hydra *config.Resolved) ([]namedCallback, error) {
	if hydra == nil || !hydra.Has("callbacks") {
		return nil, nil
	}
	raw, err := hydra.Get("callbacks")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	node, ok := raw.(*config.Node)
	if !ok {
		return nil, fmt.Errorf("hydra.callbacks must be a mapping, got %s", config.KindName(raw))
	}

	var out []namedCallback
	for _, name := range node.Keys() {
		sub, _ := node.Get(name)
		if sub == nil {
			continue
		}
		subNode, ok := sub.(*config.Node)
		if !ok {
			return nil, fmt.Errorf("hydra.callbacks.%s must be a mapping, got %s", name, config.KindName(sub))
		}
		obj, err := reg.Instantiate(ctx, subNode)
		if err != nil {
			return nil, fmt.Errorf("hydra.callbacks.%s: %w", name, err)
		}
		cb, ok := obj.(Callback)
		if !ok {
			return nil, fmt.Errorf("hydra.callbacks.%s: %T is not a callback", name, obj)
		}
		out = append(out, namedCallback{name: name, cb: cb})
	}
	return out, nil
}

// endHookTimeout bounds job_end and run_end hooks once the run context is
// gone.
const endHookTimeout = 30 * time.Second

// endContext keeps ctx's values but not its cancellation, so end hooks can
// still record an interrupted job after SIGINT.
func endContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), endHookTimeout)
}

// notify calls fn on every callback. Callback failures are logged and never
// stop the run.
func notify(ctx context.Context, cbs []namedCallback, event string, fn func(Callback) error) {
	logger := ctxlog.FromContext(ctx)
	for _, c := range cbs {
		if err := fn(c.cb); err != nil {
			logger.Warn("Callback failed.", "callback", c.name, "event", event, "error", err)
		}
	}
}
