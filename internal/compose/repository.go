package compose

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/fsutil"
)

// Extensions lists the file extensions a config name may resolve to, in
// lookup order.
var Extensions = []string{".yaml", ".yml", ".toml"}

// Repository resolves config names against an ordered list of search
// directories. The first directory holding a name wins.
type Repository struct {
	dirs []string
}

// NewRepository creates a repository over the given search directories.
func NewRepository(dirs ...string) *Repository {
	return &Repository{dirs: dirs}
}

// Dirs returns the search directories.
func (r *Repository) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

// Load finds and parses the document with the given name, e.g. "train" or
// "logger/tensorboard".
func (r *Repository) Load(name string) (*Document, error) {
	if err := validateName(name); err != nil {
		return nil, &config.Error{Kind: config.ErrConfigNotFound, Detail: err.Error()}
	}

	source, ok := r.find(name)
	if !ok {
		return nil, r.notFound(name)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", source, err)
	}
	return ParseDocument(name, source, data)
}

// Exists reports whether name resolves to a file.
func (r *Repository) Exists(name string) bool {
	if validateName(name) != nil {
		return false
	}
	_, ok := r.find(name)
	return ok
}

// IsGroup reports whether group is a directory in any search directory.
func (r *Repository) IsGroup(group string) bool {
	if validateName(group) != nil {
		return false
	}
	for _, dir := range r.dirs {
		if fsutil.IsDir(filepath.Join(dir, filepath.FromSlash(group))) {
			return true
		}
	}
	return false
}

// Options lists the config names available in a group across all search
// directories.
func (r *Repository) Options(group string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, dir := range r.dirs {
		stems, err := fsutil.ListStems(filepath.Join(dir, filepath.FromSlash(group)), Extensions...)
		if err != nil {
			return nil, err
		}
		for _, s := range stems {
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (r *Repository) find(name string) (string, bool) {
	for _, dir := range r.dirs {
		for _, ext := range Extensions {
			candidate := filepath.Join(dir, filepath.FromSlash(name)+ext)
			info, err := os.Stat(candidate)
			if err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

func (r *Repository) notFound(name string) error {
	group := groupOf(name)
	if group == "" {
		return config.Errorf(config.ErrConfigNotFound, "",
			"cannot find primary config '%s' in search path [%s]", name, strings.Join(r.dirs, ", "))
	}
	options, _ := r.Options(group)
	detail := fmt.Sprintf("cannot find '%s' in search path [%s]", name, strings.Join(r.dirs, ", "))
	if len(options) > 0 {
		detail += fmt.Sprintf("; available options in '%s': %s", group, strings.Join(options, ", "))
	}
	return &config.Error{Kind: config.ErrConfigNotFound, Detail: detail}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("config name cannot be empty")
	}
	if path.IsAbs(name) || strings.Contains(name, "\\") {
		return fmt.Errorf("config name %q must be relative", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("config name %q contains an invalid segment", name)
		}
	}
	return nil
}
