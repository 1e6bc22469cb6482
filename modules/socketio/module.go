// Package socketio registers a callback that publishes run events to a
// socket.io server.
package socketio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/trainlaunch/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Params configures the notifier.
type Params struct {
	URL                string `cty:"url"`
	Namespace          string `cty:"namespace"`
	Event              string `cty:"event"`
	Timeout            string `cty:"timeout"`
	InsecureSkipVerify bool   `cty:"insecure_skip_verify"`
}

func newParams() any {
	return &Params{Namespace: "/", Event: "trainlaunch", Timeout: "10s"}
}

func validate(p any) error {
	sp := p.(*Params)
	var errs []error
	u, err := url.Parse(sp.URL)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to parse URL: %w", err))
	} else if u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("url %q must include a scheme and host", sp.URL))
	}
	if sp.Event == "" {
		errs = append(errs, errors.New("event must not be empty"))
	}
	if d, err := time.ParseDuration(sp.Timeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("timeout %q must be a positive duration", sp.Timeout))
	}
	return errors.Join(errs...)
}

// Register registers the notifier target.
func (m *Module) Register(r *registry.Registry) {
	r.Register("trainlaunch.callbacks.SocketIONotifier", &registry.Target{
		Description: "Emit run and job events to a socket.io namespace.",
		NewParams:   newParams,
		Required:    []string{"url"},
		Positional:  []string{"url"},
		Validate:    validate,
		Construct: func(_ context.Context, p any) (any, error) {
			sp := *p.(*Params)
			timeout, _ := time.ParseDuration(sp.Timeout)
			return &Notifier{params: sp, timeout: timeout, dial: dial}, nil
		},
	})
}
