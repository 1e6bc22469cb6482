package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/vk/trainlaunch/internal/app"
	"github.com/vk/trainlaunch/internal/compose"
	"github.com/vk/trainlaunch/internal/override"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := pflag.NewFlagSet("train", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.SortFlags = false

	flagSet.Usage = func() {
		fmt.Fprint(output, `
train - Compose a training configuration and launch it.

Usage:
  train [options] [OVERRIDE ...]

Overrides:
  key=value        set a value (group=option selects a config group option)
  +key=value       add a key that must not exist yet
  ++key=value      add or replace
  ~key             delete a key
  key=a,b,c        sweep over values (needs --multirun)

Options:
`)
		flagSet.PrintDefaults()
	}

	configName := flagSet.StringP("config-name", "n", app.DefaultConfigName, "Name of the primary config, relative to the config dir.")
	configDirs := flagSet.StringArrayP("config-dir", "d", nil, "Config search directory; repeatable. Defaults to $"+app.ConfigDirEnv+" or 'configs'.")
	multirun := flagSet.BoolP("multirun", "m", false, "Launch one job per point of the override sweep.")
	cfg := flagSet.StringP("cfg", "c", "", "Print the composed config and exit. Options: 'job', 'hydra', 'all'.")
	resolve := flagSet.Bool("resolve", false, "With --cfg, print the config with interpolations resolved.")
	dryRun := flagSet.Bool("dry-run", false, "List the jobs that would run and exit.")
	watch := flagSet.Bool("watch", false, "With --cfg or --dry-run, print again whenever a config file changes.")
	strictTargets := flagSet.Bool("strict-targets", false, "Fail on _target_ names that are not registered.")
	selfPolicy := flagSet.String("self-policy", compose.SelfLast.String(), "Where a config's own body merges when its defaults omit _self_. Options: 'last', 'first', 'required'.")
	overridePolicy := flagSet.String("override-policy", override.CreateIntermediate.String(), "How plain overrides treat missing keys. Options: 'create', 'strict'.")
	logFormat := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevel := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	color := flagSet.String("color", app.ColorAuto, "Highlight printed configs. Options: 'auto', 'always', 'never'.")
	healthPort := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("Arguments parsed successfully.", "overrides", flagSet.NArg())

	format := strings.ToLower(*logFormat)
	if format != "text" && format != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}
	level := strings.ToLower(*logLevel)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	self, err := compose.ParseSelfPolicy(*selfPolicy)
	if err != nil {
		return nil, false, usageError("invalid self-policy: %v", err)
	}
	policy, err := override.ParsePolicy(*overridePolicy)
	if err != nil {
		return nil, false, usageError("invalid override-policy: %v", err)
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigName:      *configName,
		ConfigDirs:      *configDirs,
		Overrides:       flagSet.Args(),
		Multirun:        *multirun,
		Cfg:             strings.ToLower(*cfg),
		Resolve:         *resolve,
		DryRun:          *dryRun,
		Watch:           *watch,
		StrictTargets:   *strictTargets,
		SelfPolicy:      self,
		OverridePolicy:  policy,
		LogFormat:       format,
		LogLevel:        level,
		Color:           strings.ToLower(*color),
		HealthcheckPort: *healthPort,
	})
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
