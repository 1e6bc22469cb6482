package launcher

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vk/trainlaunch/internal/config"
)

// Files written for every job, relative to its output directory.
const (
	InfoDir       = ".hydra"
	ConfigFile    = "config.yaml"
	OverridesFile = "overrides.yaml"
	HydraFile     = "hydra.yaml"
	MultirunFile  = "multirun.yaml"
)

// ConfigPath is where a job's resolved configuration is written.
func (j *Job) ConfigPath() string {
	return filepath.Join(j.OutputDir, InfoDir, ConfigFile)
}

// writeJobFiles records the job's configuration, overrides and hydra settings.
func writeJobFiles(job *Job) error {
	dir := filepath.Join(job.OutputDir, InfoDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create '%s': %w", dir, err)
	}

	cfg, err := job.Config.YAML()
	if err != nil {
		return fmt.Errorf("failed to encode job config: %w", err)
	}
	overrides := job.Overrides
	if overrides == nil {
		overrides = []string{}
	}
	ov, err := yaml.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to encode overrides: %w", err)
	}
	hydra, err := hydraYAML(job.Hydra)
	if err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{ConfigFile, cfg},
		{OverridesFile, ov},
		{HydraFile, hydra},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			return fmt.Errorf("failed to write '%s': %w", f.name, err)
		}
	}
	return nil
}

// writeMultirunFile records the first job's full configuration at the root
// of a sweep directory.
func writeMultirunFile(sweepDir string, job *Job) error {
	if err := os.MkdirAll(sweepDir, 0o755); err != nil {
		return fmt.Errorf("failed to create '%s': %w", sweepDir, err)
	}
	data, err := config.EncodeYAML(job.Raw)
	if err != nil {
		return fmt.Errorf("failed to encode multirun config: %w", err)
	}
	return os.WriteFile(filepath.Join(sweepDir, MultirunFile), data, 0o644)
}

// hydraYAML nests the hydra subtree under its key so the file reads like the
// section of the config it came from.
func hydraYAML(hydra *config.Resolved) ([]byte, error) {
	wrapped := config.NewNode()
	wrapped.Set("hydra", hydra.Tree())
	data, err := config.EncodeYAML(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hydra config: %w", err)
	}
	return data, nil
}
