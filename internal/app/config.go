package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/trainlaunch/internal/compose"
	"github.com/vk/trainlaunch/internal/override"
)

// ConfigDirEnv supplies the config search directory when none is given.
const ConfigDirEnv = "TRAINLAUNCH_CONFIG_DIR"

// Defaults for fields a caller leaves empty.
const (
	DefaultConfigName = "train"
	DefaultConfigDir  = "configs"
)

// What --cfg prints.
const (
	CfgJob   = "job"
	CfgHydra = "hydra"
	CfgAll   = "all"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigName string
	ConfigDirs []string
	Overrides  []string
	Multirun   bool

	Cfg     string // "", job, hydra or all
	Resolve bool
	DryRun  bool
	Watch   bool

	StrictTargets  bool
	SelfPolicy     compose.SelfPolicy
	OverridePolicy override.Policy

	LogFormat       string
	LogLevel        string
	Color           string
	HealthcheckPort int
}

// NewConfig fills defaults and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigName == "" {
		cfg.ConfigName = DefaultConfigName
	}
	if strings.ContainsAny(cfg.ConfigName, `\`) || strings.HasPrefix(cfg.ConfigName, "/") {
		return nil, fmt.Errorf("config name %q must be relative to the config dir", cfg.ConfigName)
	}
	if len(cfg.ConfigDirs) == 0 {
		if dir := os.Getenv(ConfigDirEnv); dir != "" {
			cfg.ConfigDirs = filepath.SplitList(dir)
		} else {
			cfg.ConfigDirs = []string{DefaultConfigDir}
		}
	}

	switch cfg.Cfg {
	case "", CfgJob, CfgHydra, CfgAll:
	default:
		return nil, fmt.Errorf("invalid cfg %q: must be 'job', 'hydra' or 'all'", cfg.Cfg)
	}
	if cfg.Resolve && cfg.Cfg == "" {
		return nil, errors.New("resolve only applies together with cfg")
	}
	if cfg.Watch && cfg.Cfg == "" && !cfg.DryRun {
		return nil, errors.New("watch requires cfg or dry-run")
	}

	switch cfg.Color {
	case "":
		cfg.Color = ColorAuto
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return nil, fmt.Errorf("invalid color %q: must be 'auto', 'always' or 'never'", cfg.Color)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
