package launcher

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/keypath"
	"github.com/vk/trainlaunch/internal/override"
)

// Defaults for hydra keys a config tree does not set.
const (
	DefaultRunDir      = "outputs/${now:%Y-%m-%d}/${now:%H-%M-%S}"
	DefaultSweepDir    = "multirun/${now:%Y-%m-%d}/${now:%H-%M-%S}"
	DefaultSweepSubdir = "${hydra.job.num}"
)

// runtimeInfo carries the values injected under hydra before resolution.
type runtimeInfo struct {
	mode            Mode
	num             int
	id              string
	name            string
	overrides       []string
	overrideDirname string
	cwd             string
	choices         *config.Node
}

func newJobID() string {
	return uuid.NewString()
}

// setDefault writes value at path unless something is already there.
func setDefault(tree *config.Node, path string, value any) error {
	p := keypath.MustParse(path)
	if _, err := tree.Lookup(p); err == nil {
		return nil
	} else if !config.IsMissing(err) {
		return err
	}
	return tree.SetPath(p, value, true)
}

func set(tree *config.Node, path string, value any) error {
	return tree.SetPath(keypath.MustParse(path), value, true)
}

// injectRuntime fills the hydra subtree with the keys every job sees.
func injectRuntime(tree *config.Node, info runtimeInfo) error {
	if v, ok := tree.Get("hydra"); ok && v != nil && !config.IsMapping(v) {
		return config.Errorf(config.ErrConfigConflict, "hydra", "must be a mapping, got %s", config.KindName(v))
	}
	defaults := []struct {
		path  string
		value any
	}{
		{"hydra.run.dir", DefaultRunDir},
		{"hydra.sweep.dir", DefaultSweepDir},
		{"hydra.sweep.subdir", DefaultSweepSubdir},
		{"hydra.job.name", info.name},
	}
	for _, d := range defaults {
		if err := setDefault(tree, d.path, d.value); err != nil {
			return err
		}
	}

	overrides := make([]any, len(info.overrides))
	for i, o := range info.overrides {
		overrides[i] = o
	}
	values := []struct {
		path  string
		value any
	}{
		{"hydra.mode", string(info.mode)},
		{"hydra.job.num", int64(info.num)},
		{"hydra.job.id", info.id},
		{"hydra.job.override_dirname", info.overrideDirname},
		{"hydra.overrides.task", overrides},
		{"hydra.runtime.cwd", info.cwd},
		{"hydra.runtime.choices", info.choices},
	}
	for _, v := range values {
		if err := set(tree, v.path, v.value); err != nil {
			return err
		}
	}
	return nil
}

// outputDirKey names the key holding the job's output directory template.
func outputDirKey(mode Mode) string {
	if mode == ModeMultirun {
		return "hydra.sweep.dir"
	}
	return "hydra.run.dir"
}

// absDir anchors a relative output directory at cwd.
func absDir(cwd, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(cwd, dir)
}

// dirnameConfig is hydra.job.config.override_dirname.
type dirnameConfig struct {
	kvSep       string
	itemSep     string
	excludeKeys []string
}

func readDirnameConfig(tree *config.Node) dirnameConfig {
	cfg := dirnameConfig{kvSep: "=", itemSep: ","}
	if v, err := tree.LookupString("hydra.job.config.override_dirname.kv_sep"); err == nil {
		if s, ok := v.(string); ok {
			cfg.kvSep = s
		}
	}
	if v, err := tree.LookupString("hydra.job.config.override_dirname.item_sep"); err == nil {
		if s, ok := v.(string); ok {
			cfg.itemSep = s
		}
	}
	if v, err := tree.LookupString("hydra.job.config.override_dirname.exclude_keys"); err == nil {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					cfg.excludeKeys = append(cfg.excludeKeys, s)
				}
			}
		}
	}
	return cfg
}

// overrideDirname renders the job's overrides as a directory-safe name,
// sorted so that equivalent command lines agree.
func overrideDirname(as []override.Assignment, cfg dirnameConfig) string {
	items := make([]string, 0, len(as))
	for _, a := range as {
		if slices.Contains(cfg.excludeKeys, a.Key) {
			continue
		}
		tok := a.String()
		if cfg.kvSep != "=" {
			if key, val, ok := strings.Cut(tok, "="); ok {
				tok = key + cfg.kvSep + val
			}
		}
		items = append(items, tok)
	}
	slices.Sort(items)
	return strings.Join(items, cfg.itemSep)
}

// Digest returns the blake3 digest of a resolved configuration's YAML form.
func Digest(cfg *config.Resolved) (string, error) {
	data, err := cfg.YAML()
	if err != nil {
		return "", fmt.Errorf("failed to encode config for digest: %w", err)
	}
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:]), nil
}
