package runledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/launcher"
)

// Callback writes a run and its jobs to the ledger as they progress. The
// database is opened when the run starts and closed when it ends.
type Callback struct {
	path   string
	ledger *Ledger
	runID  string
}

var _ launcher.Callback = (*Callback)(nil)

var errNotOpen = errors.New("run ledger is not open")

// OnRunStart implements launcher.Callback.
func (c *Callback) OnRunStart(ctx context.Context, run *launcher.Run) error {
	ledger, err := Open(c.path)
	if err != nil {
		return err
	}
	c.ledger = ledger
	c.runID = uuid.NewString()
	ctxlog.FromContext(ctx).Debug("Opened run ledger.", "path", c.path, "run_id", c.runID)
	return ledger.insertRun(ctx, RunRecord{
		ID:         c.runID,
		ConfigName: run.ConfigName,
		Mode:       string(run.Mode),
		SweepDir:   run.SweepDir,
		Jobs:       len(run.Jobs),
		StartedAt:  run.Start,
	})
}

// OnJobStart implements launcher.Callback.
func (c *Callback) OnJobStart(ctx context.Context, job *launcher.Job) error {
	if c.ledger == nil {
		return errNotOpen
	}
	previous, err := c.ledger.JobsByDigest(ctx, job.Digest)
	if err != nil {
		return err
	}
	for _, p := range previous {
		if p.Status == string(launcher.StatusCompleted) {
			ctxlog.FromContext(ctx).Info("Identical configuration completed before.",
				"job", job.Num, "digest", job.Digest, "output_dir", p.OutputDir)
			break
		}
	}
	return c.ledger.insertJob(ctx, JobRecord{
		ID:              job.ID,
		RunID:           c.runID,
		Num:             job.Num,
		Name:            job.Name,
		OverrideDirname: job.OverrideDirname,
		OutputDir:       job.OutputDir,
		ConfigDigest:    job.Digest,
		Status:          statusRunning,
		StartedAt:       time.Now(),
	})
}

// OnJobEnd implements launcher.Callback. The row is finished even when ctx
// is already cancelled, otherwise an interrupted job stays RUNNING.
func (c *Callback) OnJobEnd(ctx context.Context, res *launcher.Result) error {
	if c.ledger == nil {
		return errNotOpen
	}
	return c.ledger.finishJob(context.WithoutCancel(ctx), res.Job.ID, string(res.Status()), res.ExitCode, res.Err, res.End)
}

// OnRunEnd implements launcher.Callback.
func (c *Callback) OnRunEnd(ctx context.Context, _ *launcher.Run, results []*launcher.Result) error {
	if c.ledger == nil {
		return errNotOpen
	}
	defer func() {
		c.ledger.Close()
		c.ledger = nil
	}()
	failed := 0
	for _, r := range results {
		if r.Status() == launcher.StatusFailed {
			failed++
		}
	}
	return c.ledger.finishRun(context.WithoutCancel(ctx), c.runID, failed, time.Now())
}
