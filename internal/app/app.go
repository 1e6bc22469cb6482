package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/trainlaunch/internal/compose"
	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/launcher"
	"github.com/vk/trainlaunch/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	repo     *compose.Repository
	launcher *launcher.Launcher
	config   *Config
	status   *runStatus
}

// NewApp is the constructor for the main application. Configs, printed
// configuration and trainer output go to outW; logs and trainer stderr go to
// logW. Without modules the core modules are registered.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	// A params struct that cannot describe itself is a programmer error.
	if err := reg.Check(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	repo := compose.NewRepository(cfg.ConfigDirs...)
	loader := compose.NewLoader(repo, compose.WithSelfPolicy(cfg.SelfPolicy))
	status := &runStatus{current: -1}
	trainer := &launcher.ExecTrainer{
		Stdout:   outW,
		Stderr:   logW,
		Fallback: &launcher.PrintTrainer{Out: outW},
	}
	l := launcher.New(loader, reg,
		launcher.WithTrainer(trainer),
		launcher.WithOverridePolicy(cfg.OverridePolicy),
		launcher.WithStrictTargets(cfg.StrictTargets),
		launcher.WithCallback("status", status),
	)
	logger.Debug("Launcher configured.", "config_dirs", cfg.ConfigDirs, "self_policy", cfg.SelfPolicy.String())

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		repo:     repo,
		launcher: l,
		config:   cfg,
		status:   status,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
