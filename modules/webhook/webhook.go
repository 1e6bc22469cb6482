package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/launcher"
)

// Hook sends the selected events. Delivery failures are returned to the
// launcher, which logs them without stopping the run.
type Hook struct {
	params Params
	events map[string]bool
	client *http.Client
}

var _ launcher.Callback = (*Hook)(nil)

// New creates a hook from validated params.
func New(p Params) *Hook {
	timeout, _ := time.ParseDuration(p.Timeout)
	events := make(map[string]bool, len(p.Events))
	for _, e := range p.Events {
		events[e] = true
	}
	return &Hook{params: p, events: events, client: &http.Client{Timeout: timeout}}
}

func (h *Hook) send(ctx context.Context, event string, payload map[string]any) error {
	if !h.events[event] {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("event", event)
	payload["event"] = event

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(h.params.Method), h.params.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.params.Headers {
		req.Header.Set(k, v)
	}

	logger.Debug("Making HTTP request", "method", req.Method, "url", h.params.URL)
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	logger.Debug("Received HTTP response", "status", resp.Status)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned %s", h.params.URL, resp.Status)
	}
	return nil
}

// OnRunStart implements launcher.Callback.
func (h *Hook) OnRunStart(ctx context.Context, run *launcher.Run) error {
	return h.send(ctx, EventRunStart, map[string]any{
		"config": run.ConfigName,
		"mode":   string(run.Mode),
		"jobs":   len(run.Jobs),
		"start":  run.Start.Format(time.RFC3339),
	})
}

// OnJobStart implements launcher.Callback.
func (h *Hook) OnJobStart(ctx context.Context, job *launcher.Job) error {
	return h.send(ctx, EventJobStart, jobPayload(job))
}

// OnJobEnd implements launcher.Callback.
func (h *Hook) OnJobEnd(ctx context.Context, res *launcher.Result) error {
	p := jobPayload(res.Job)
	p["status"] = string(res.Status())
	p["exit_code"] = res.ExitCode
	p["duration_s"] = res.Duration().Seconds()
	if res.Err != nil {
		p["error"] = res.Err.Error()
	}
	return h.send(ctx, EventJobEnd, p)
}

// OnRunEnd implements launcher.Callback.
func (h *Hook) OnRunEnd(ctx context.Context, run *launcher.Run, results []*launcher.Result) error {
	failed := 0
	for _, r := range results {
		if r.Status() == launcher.StatusFailed {
			failed++
		}
	}
	return h.send(ctx, EventRunEnd, map[string]any{
		"config":   run.ConfigName,
		"finished": len(results),
		"failed":   failed,
	})
}

func jobPayload(job *launcher.Job) map[string]any {
	return map[string]any{
		"job":        job.Num,
		"id":         job.ID,
		"name":       job.Name,
		"overrides":  job.Overrides,
		"output_dir": job.OutputDir,
		"digest":     job.Digest,
	}
}
