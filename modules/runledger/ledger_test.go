package runledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/launcher"
	"github.com/vk/trainlaunch/internal/registry"
)

func newCallback(t *testing.T, path string) launcher.Callback {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	node := config.NewNode()
	node.Set(registry.KeyTarget, "trainlaunch.callbacks.RunLedger")
	node.Set("path", path)
	obj, err := r.Instantiate(context.Background(), node)
	require.NoError(t, err)
	return obj.(launcher.Callback)
}

func simulate(t *testing.T, cb launcher.Callback, run *launcher.Run, fail map[int]bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, cb.OnRunStart(ctx, run))
	var results []*launcher.Result
	for _, job := range run.Jobs {
		require.NoError(t, cb.OnJobStart(ctx, job))
		res := &launcher.Result{Job: job, Start: time.Now(), End: time.Now()}
		if fail[job.Num] {
			res.ExitCode, res.Err = 1, errors.New("trainer crashed")
		}
		require.NoError(t, cb.OnJobEnd(ctx, res))
		results = append(results, res)
	}
	require.NoError(t, cb.OnRunEnd(ctx, run, results))
}

func TestLedger_RecordsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.sqlite")
	run := &launcher.Run{
		ConfigName: "train",
		Mode:       launcher.ModeMultirun,
		SweepDir:   "/tmp/multirun/x",
		Start:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Jobs: []*launcher.Job{
			{Num: 0, ID: "job-a", Name: "train", OverrideDirname: "data.limit=-1", OutputDir: "/tmp/multirun/x/0", Digest: "d1"},
			{Num: 1, ID: "job-b", Name: "train", OverrideDirname: "data.limit=10", OutputDir: "/tmp/multirun/x/1", Digest: "d2"},
		},
	}
	simulate(t, newCallback(t, path), run, map[int]bool{1: true})

	ledger, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	ctx := context.Background()
	runs, err := ledger.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "train", runs[0].ConfigName)
	assert.Equal(t, "MULTIRUN", runs[0].Mode)
	assert.Equal(t, 2, runs[0].Jobs)
	assert.Equal(t, 1, runs[0].Failed)
	assert.True(t, run.Start.Equal(runs[0].StartedAt))
	assert.NotNil(t, runs[0].EndedAt)

	jobs, err := ledger.Jobs(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "COMPLETED", jobs[0].Status)
	require.NotNil(t, jobs[0].ExitCode)
	assert.Equal(t, 0, *jobs[0].ExitCode)
	assert.Equal(t, "FAILED", jobs[1].Status)
	assert.Equal(t, "trainer crashed", jobs[1].Error)
	assert.Equal(t, "data.limit=10", jobs[1].OverrideDirname)
}

func TestLedger_JobsByDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.sqlite")
	for i, id := range []string{"first", "second"} {
		run := &launcher.Run{
			ConfigName: "train",
			Mode:       launcher.ModeRun,
			Start:      time.Now().Add(time.Duration(i) * time.Minute),
			Jobs:       []*launcher.Job{{ID: id, Name: "train", OutputDir: "/out/" + id, Digest: "same"}},
		}
		simulate(t, newCallback(t, path), run, nil)
	}

	ledger, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	jobs, err := ledger.JobsByDigest(context.Background(), "same")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "first", jobs[0].ID)
	assert.Equal(t, "second", jobs[1].ID)

	none, err := ledger.JobsByDigest(context.Background(), "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCallback_CancelledDuringJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.sqlite")
	cb := newCallback(t, path)
	job := &launcher.Job{ID: "interrupted", Name: "train", OutputDir: "/out/x", Digest: "d"}
	run := &launcher.Run{ConfigName: "train", Mode: launcher.ModeRun, Start: time.Now(), Jobs: []*launcher.Job{job}}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, cb.OnRunStart(ctx, run))
	require.NoError(t, cb.OnJobStart(ctx, job))
	cancel()

	res := &launcher.Result{Job: job, Start: time.Now(), End: time.Now(), ExitCode: 130, Err: context.Canceled}
	require.NoError(t, cb.OnJobEnd(ctx, res))
	require.NoError(t, cb.OnRunEnd(ctx, run, []*launcher.Result{res}))

	ledger, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	runs, err := ledger.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotNil(t, runs[0].EndedAt)
	assert.Equal(t, 1, runs[0].Failed)

	jobs, err := ledger.Jobs(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "FAILED", jobs[0].Status)
	require.NotNil(t, jobs[0].ExitCode)
	assert.Equal(t, 130, *jobs[0].ExitCode)
}

func TestCallback_NotOpen(t *testing.T) {
	cb := newCallback(t, filepath.Join(t.TempDir(), "runs.sqlite"))
	err := cb.OnJobStart(context.Background(), &launcher.Job{})
	assert.ErrorIs(t, err, errNotOpen)
}

func TestRegister_Validation(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)
	node := config.NewNode()
	node.Set(registry.KeyTarget, "trainlaunch.callbacks.RunLedger")
	_, err := r.Instantiate(context.Background(), node)
	assert.ErrorIs(t, err, registry.ErrInvalidTargetArgs)
}
