package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/trainlaunch/internal/compose"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/interp"
	"github.com/vk/trainlaunch/internal/keypath"
	"github.com/vk/trainlaunch/internal/override"
	"github.com/vk/trainlaunch/internal/registry"
	"github.com/vk/trainlaunch/internal/sweep"
)

// Launcher prepares and runs jobs.
type Launcher struct {
	loader   *compose.Loader
	applier  *override.Applier
	registry *registry.Registry
	trainer  Trainer
	extra    []namedCallback
	strict   bool
	env      func(string) (string, bool)
	now      func() time.Time
	cwd      string
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithTrainer sets the trainer jobs are handed to.
func WithTrainer(t Trainer) Option {
	return func(l *Launcher) { l.trainer = t }
}

// WithCallback attaches an in-process callback that runs after the ones
// configured under hydra.callbacks.
func WithCallback(name string, cb Callback) Option {
	return func(l *Launcher) { l.extra = append(l.extra, namedCallback{name: name, cb: cb}) }
}

// WithOverridePolicy sets how key overrides treat missing parents.
func WithOverridePolicy(p override.Policy) Option {
	return func(l *Launcher) { l.applier = override.NewApplier(p) }
}

// WithStrictTargets makes unregistered targets a validation failure.
func WithStrictTargets(strict bool) Option {
	return func(l *Launcher) { l.strict = strict }
}

// WithEnv replaces the environment seen by ${oc.env:...}.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(l *Launcher) { l.env = lookup }
}

// WithClock replaces the clock that freezes ${now:...} for a run.
func WithClock(now func() time.Time) Option {
	return func(l *Launcher) { l.now = now }
}

// WithWorkDir sets the directory relative output dirs are anchored at.
func WithWorkDir(dir string) Option {
	return func(l *Launcher) { l.cwd = dir }
}

// New creates a launcher. Without WithTrainer, jobs are printed to stdout.
func New(loader *compose.Loader, reg *registry.Registry, opts ...Option) *Launcher {
	l := &Launcher{
		loader:   loader,
		applier:  override.NewApplier(override.CreateIntermediate),
		registry: reg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.trainer == nil {
		l.trainer = &PrintTrainer{Out: os.Stdout}
	}
	if l.cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			l.cwd = wd
		}
	}
	return l
}

// Request names what to launch.
type Request struct {
	ConfigName string
	Overrides  []string
	Multirun   bool
}

// Launch prepares every job and then runs them in order.
func (l *Launcher) Launch(ctx context.Context, req Request) ([]*Result, error) {
	run, err := l.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return l.Execute(ctx, run)
}

// Prepare composes, overrides, resolves and validates the configuration of
// every job without running any of them.
func (l *Launcher) Prepare(ctx context.Context, req Request) (*Run, error) {
	logger := ctxlog.FromContext(ctx)

	assignments, err := override.ParseAll(req.Overrides)
	if err != nil {
		return nil, err
	}
	points, err := sweep.Expand(ctx, assignments, req.Multirun)
	if err != nil {
		return nil, err
	}

	mode := ModeRun
	if req.Multirun {
		mode = ModeMultirun
	}
	run := &Run{ConfigName: req.ConfigName, Mode: mode, Start: l.now()}

	for _, point := range points {
		job, err := l.prepareJob(ctx, run, point)
		if err != nil {
			if len(points) == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("job %d (%v): %w", point.Num, point.Tokens(), err)
		}
		run.Jobs = append(run.Jobs, job)
	}
	logger.Debug("Prepared jobs.", "config", req.ConfigName, "mode", mode, "jobs", len(run.Jobs))
	return run, nil
}

func (l *Launcher) interpOptions(run *Run) []interp.Option {
	opts := []interp.Option{interp.WithNow(run.Start)}
	if l.env != nil {
		opts = append(opts, interp.WithEnv(l.env))
	}
	return opts
}

func (l *Launcher) prepareJob(ctx context.Context, run *Run, point sweep.Job) (*Job, error) {
	groups, keys, err := override.Split(point.Overrides, l.loader.Repository().IsGroup)
	if err != nil {
		return nil, err
	}
	res, err := l.loader.Compose(ctx, run.ConfigName, groups...)
	if err != nil {
		return nil, err
	}
	tree := res.Tree
	if err := l.applier.Apply(ctx, tree, keys); err != nil {
		return nil, err
	}

	job := &Job{
		Num:       point.Num,
		ID:        newJobID(),
		Name:      run.ConfigName,
		Overrides: point.Tokens(),
		Cwd:       l.cwd,
		Choices:   res.Choices,
	}
	job.OverrideDirname = overrideDirname(point.Overrides, readDirnameConfig(tree))
	info := runtimeInfo{
		mode:            run.Mode,
		num:             job.Num,
		id:              job.ID,
		name:            job.Name,
		overrides:       job.Overrides,
		overrideDirname: job.OverrideDirname,
		cwd:             l.cwd,
		choices:         res.ChoicesNode(),
	}
	if err := injectRuntime(tree, info); err != nil {
		return nil, err
	}
	if name, err := tree.LookupString("hydra.job.name"); err == nil {
		if s, ok := name.(string); ok && s != "" {
			job.Name = s
		}
	}

	opts := l.interpOptions(run)
	job.OutputDir, err = l.outputDir(run, tree, opts)
	if err != nil {
		return nil, err
	}
	if err := set(tree, "hydra.runtime.output_dir", job.OutputDir); err != nil {
		return nil, err
	}
	job.Raw = tree.Clone()

	resolved, err := interp.Resolve(ctx, tree, opts...)
	if err != nil {
		return nil, err
	}
	hydra := resolved.Child("hydra")
	resolved.Delete("hydra")
	if hydra == nil {
		hydra = config.NewNode()
	}

	if err := resolveCheckpoint(ctx, resolved); err != nil {
		return nil, err
	}
	if err := l.validate(ctx, resolved, hydra); err != nil {
		return nil, err
	}

	job.Config = config.NewResolved(resolved)
	job.Digest, err = Digest(job.Config)
	if err != nil {
		return nil, err
	}
	if err := set(hydra, "job.config_digest", job.Digest); err != nil {
		return nil, err
	}
	job.Hydra = config.NewResolved(hydra)
	return job, nil
}

// outputDir evaluates the run or sweep directory against a tree whose
// runtime keys are already in place.
func (l *Launcher) outputDir(run *Run, tree *config.Node, opts []interp.Option) (string, error) {
	ip := interp.New(tree, opts...)
	dir, err := lookupString(ip, outputDirKey(run.Mode))
	if err != nil {
		return "", err
	}
	dir = absDir(l.cwd, dir)
	if run.Mode != ModeMultirun {
		return dir, nil
	}
	if run.SweepDir == "" {
		run.SweepDir = dir
	}
	sub, err := ip.Lookup(keypath.MustParse("hydra.sweep.subdir"))
	if err != nil {
		return "", err
	}
	s, err := config.FormatScalar(sub)
	if err != nil {
		return "", fmt.Errorf("hydra.sweep.subdir: %w", err)
	}
	return filepath.Join(dir, s), nil
}

func lookupString(ip *interp.Interpolator, path string) (string, error) {
	v, err := ip.Lookup(keypath.MustParse(path))
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", config.Errorf(config.ErrConfigConflict, path, "must be a non-empty string, got %s", config.KindName(v))
	}
	return s, nil
}

func (l *Launcher) validate(ctx context.Context, job, hydra *config.Node) error {
	var errs []error
	if err := l.registry.Validate(ctx, job, l.strict); err != nil {
		errs = append(errs, err)
	}
	// Only callbacks are instantiated in-process, so only they are held to
	// the registry.
	if cbs := hydra.Child("callbacks"); cbs != nil {
		if err := l.registry.Validate(ctx, cbs, true); err != nil {
			errs = append(errs, fmt.Errorf("hydra.callbacks: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Execute runs prepared jobs one after another. It stops at the first failed
// job or when ctx is cancelled; callbacks see every job that started.
func (l *Launcher) Execute(ctx context.Context, run *Run) ([]*Result, error) {
	logger := ctxlog.FromContext(ctx)
	if len(run.Jobs) == 0 {
		return nil, errors.New("nothing to run")
	}

	cbs, err := buildCallbacks(ctx, l.registry, run.Jobs[0].Hydra)
	if err != nil {
		return nil, err
	}
	cbs = append(cbs, l.extra...)
	if run.Mode == ModeMultirun {
		if err := writeMultirunFile(run.SweepDir, run.Jobs[0]); err != nil {
			return nil, err
		}
	}

	notify(ctx, cbs, "run_start", func(cb Callback) error { return cb.OnRunStart(ctx, run) })

	var (
		results []*Result
		runErr  error
	)
	for _, job := range run.Jobs {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run interrupted before job %d: %w", job.Num, err)
			break
		}
		res := l.runJob(ctx, cbs, job)
		results = append(results, res)
		if res.Err != nil {
			runErr = fmt.Errorf("job %d failed: %w", job.Num, res.Err)
			break
		}
	}

	endCtx, cancel := endContext(ctx)
	defer cancel()
	notify(endCtx, cbs, "run_end", func(cb Callback) error { return cb.OnRunEnd(endCtx, run, results) })
	if runErr != nil {
		return results, runErr
	}
	logger.Info("Run completed.", "jobs", len(results))
	return results, nil
}

func (l *Launcher) runJob(ctx context.Context, cbs []namedCallback, job *Job) *Result {
	logger := ctxlog.FromContext(ctx).With("job", job.Num)
	logger.Info("Launching job.", "overrides", job.Overrides, "output_dir", job.OutputDir)

	res := &Result{Job: job, Start: time.Now()}
	if err := writeJobFiles(job); err != nil {
		res.End, res.ExitCode, res.Err = time.Now(), 1, err
		return res
	}

	notify(ctx, cbs, "job_start", func(cb Callback) error { return cb.OnJobStart(ctx, job) })
	res.ExitCode, res.Err = l.trainer.Train(ctxlog.WithLogger(ctx, logger), job)
	res.End = time.Now()
	endCtx, cancel := endContext(ctx)
	defer cancel()
	notify(endCtx, cbs, "job_end", func(cb Callback) error { return cb.OnJobEnd(endCtx, res) })

	if res.Err != nil {
		logger.Error("Job failed.", "error", res.Err, "exit_code", res.ExitCode)
	} else {
		logger.Info("Job completed.", "duration", res.Duration())
	}
	return res
}
