// Package webhook registers a callback that posts run and job events as JSON
// to an HTTP endpoint, e.g. a chat incoming-webhook or a CI status API.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vk/trainlaunch/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Event names accepted in `events`.
const (
	EventRunStart = "run_start"
	EventJobStart = "job_start"
	EventJobEnd   = "job_end"
	EventRunEnd   = "run_end"
)

var knownEvents = map[string]bool{EventRunStart: true, EventJobStart: true, EventJobEnd: true, EventRunEnd: true}

// Params configures the webhook.
type Params struct {
	URL     string            `cty:"url"`
	Method  string            `cty:"method"`
	Headers map[string]string `cty:"headers"`
	Events  []string          `cty:"events"`
	Timeout string            `cty:"timeout"`
}

func newParams() any {
	return &Params{
		Method:  http.MethodPost,
		Headers: map[string]string{},
		Events:  []string{EventJobEnd, EventRunEnd},
		Timeout: "10s",
	}
}

func validate(p any) error {
	wp := p.(*Params)
	var errs []error
	u, err := url.Parse(wp.URL)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to parse URL: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("url %q must use http or https", wp.URL))
	}
	switch strings.ToUpper(wp.Method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		errs = append(errs, fmt.Errorf("method %q must be POST, PUT or PATCH", wp.Method))
	}
	if len(wp.Events) == 0 {
		errs = append(errs, errors.New("events must not be empty"))
	}
	for _, e := range wp.Events {
		if !knownEvents[e] {
			errs = append(errs, fmt.Errorf("unknown event %q", e))
		}
	}
	if d, err := time.ParseDuration(wp.Timeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("timeout %q must be a positive duration", wp.Timeout))
	}
	return errors.Join(errs...)
}

// Register registers the webhook target.
func (m *Module) Register(r *registry.Registry) {
	r.Register("trainlaunch.callbacks.Webhook", &registry.Target{
		Description: "POST run and job events as JSON to a URL.",
		NewParams:   newParams,
		Required:    []string{"url"},
		Positional:  []string{"url"},
		Validate:    validate,
		Construct: func(_ context.Context, p any) (any, error) {
			return New(*p.(*Params)), nil
		},
	})
}
