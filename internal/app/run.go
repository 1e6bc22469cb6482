package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/launcher"
)

// Run executes one invocation, or keeps re-running it on config changes when
// watching.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer a.logger.Debug("App.Run method finished.")

	if a.config.Watch {
		return a.watch(ctx)
	}
	return a.runOnce(ctx)
}

func (a *App) runOnce(ctx context.Context) error {
	req := launcher.Request{
		ConfigName: a.config.ConfigName,
		Overrides:  a.config.Overrides,
		Multirun:   a.config.Multirun,
	}
	run, err := a.launcher.Prepare(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to prepare '%s': %w", a.config.ConfigName, err)
	}
	a.logger.Info("Configuration resolved.", "config", run.ConfigName, "mode", run.Mode, "jobs", len(run.Jobs))

	if a.config.Cfg != "" {
		return a.printConfig(run)
	}
	if a.config.DryRun {
		return a.printPlan(run)
	}

	if a.config.HealthcheckPort > 0 {
		stop := a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
		defer stop()
	}

	a.logger.Info("🚀 Starting jobs...", "jobs", len(run.Jobs))
	if _, err := a.launcher.Execute(ctx, run); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.")
	return nil
}

// printPlan lists the jobs a run would start.
func (a *App) printPlan(run *launcher.Run) error {
	for _, job := range run.Jobs {
		overrides := strings.Join(job.Overrides, " ")
		if overrides == "" {
			overrides = "(no overrides)"
		}
		if _, err := fmt.Fprintf(a.outW, "#%d %s %s [%s]\n", job.Num, job.OutputDir, overrides, job.Digest[:12]); err != nil {
			return err
		}
	}
	return nil
}
