package socketio

import (
	"context"
	"errors"
	"time"

	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/launcher"
)

// Event types carried in the "type" field of every payload.
const (
	TypeRunStart = "run_start"
	TypeJobStart = "job_start"
	TypeJobEnd   = "job_end"
	TypeRunEnd   = "run_end"
)

// Notifier emits one event per run and job transition. It connects when the
// run starts and disconnects when it ends.
type Notifier struct {
	params  Params
	timeout time.Duration
	dial    dialFunc
	conn    *conn
}

var _ launcher.Callback = (*Notifier)(nil)

var errNotConnected = errors.New("socket.io notifier is not connected")

func (n *Notifier) send(ctx context.Context, payload map[string]any) error {
	if n.conn == nil {
		return errNotConnected
	}
	ctxlog.FromContext(ctx).Debug("Emitting event.", "event", n.params.Event, "type", payload["type"])
	n.conn.emit(n.params.Event, payload)
	return nil
}

// OnRunStart implements launcher.Callback.
func (n *Notifier) OnRunStart(ctx context.Context, run *launcher.Run) error {
	c, err := n.dial(ctx, n.params, n.timeout)
	if err != nil {
		return err
	}
	n.conn = c
	return n.send(ctx, map[string]any{
		"type":   TypeRunStart,
		"config": run.ConfigName,
		"mode":   string(run.Mode),
		"jobs":   len(run.Jobs),
		"start":  run.Start.Format(time.RFC3339),
	})
}

// OnJobStart implements launcher.Callback.
func (n *Notifier) OnJobStart(ctx context.Context, job *launcher.Job) error {
	return n.send(ctx, jobPayload(TypeJobStart, job))
}

// OnJobEnd implements launcher.Callback.
func (n *Notifier) OnJobEnd(ctx context.Context, res *launcher.Result) error {
	p := jobPayload(TypeJobEnd, res.Job)
	p["status"] = string(res.Status())
	p["exit_code"] = res.ExitCode
	p["duration_s"] = res.Duration().Seconds()
	if res.Err != nil {
		p["error"] = res.Err.Error()
	}
	return n.send(ctx, p)
}

// OnRunEnd implements launcher.Callback.
func (n *Notifier) OnRunEnd(ctx context.Context, run *launcher.Run, results []*launcher.Result) error {
	if n.conn == nil {
		return errNotConnected
	}
	defer func() {
		n.conn.close()
		n.conn = nil
	}()
	failed := 0
	for _, r := range results {
		if r.Status() == launcher.StatusFailed {
			failed++
		}
	}
	return n.send(ctx, map[string]any{
		"type":     TypeRunEnd,
		"config":   run.ConfigName,
		"finished": len(results),
		"failed":   failed,
	})
}

func jobPayload(kind string, job *launcher.Job) map[string]any {
	return map[string]any{
		"type":       kind,
		"job":        job.Num,
		"id":         job.ID,
		"name":       job.Name,
		"overrides":  job.Overrides,
		"output_dir": job.OutputDir,
		"digest":     job.Digest,
	}
}
