package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vk/trainlaunch/internal/fsutil"
)

// LastName is the stem of the rolling checkpoint written with save_last.
const LastName = "last"

// ErrNoCheckpoint is returned when a directory holds no matching checkpoint.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// Checkpoint is a checkpoint file with the metrics encoded in its name.
type Checkpoint struct {
	Path    string
	Metrics map[string]float64
	ModTime time.Time
}

// Find lists the checkpoints under dir whose names match tpl, sorted by path.
func Find(dir string, tpl *Template) ([]Checkpoint, error) {
	if !fsutil.IsDir(dir) {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoCheckpoint, dir)
	}
	files, err := fsutil.FindFilesByExtension(dir, Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(files)

	var out []Checkpoint
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			continue
		}
		stem := strings.TrimSuffix(filepath.ToSlash(rel), Extension)
		metrics, ok := tpl.Match(stem)
		if !ok {
			continue
		}
		info, err := os.Stat(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, Checkpoint{Path: f, Metrics: metrics, ModTime: info.ModTime()})
	}
	return out, nil
}

// Mode says whether lower or higher monitor values are better.
type Mode string

const (
	ModeMin Mode = "min"
	ModeMax Mode = "max"
)

// ParseMode validates a mode, defaulting to min.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMin:
		return ModeMin, nil
	case ModeMax:
		return ModeMax, nil
	}
	return "", fmt.Errorf("invalid checkpoint mode %q: must be 'min' or 'max'", s)
}

// Best returns the checkpoint with the best monitor value. When the template
// does not encode monitor, the most advanced checkpoint wins instead.
func Best(dir string, tpl *Template, monitor string, mode Mode) (Checkpoint, error) {
	cks, err := Find(dir, tpl)
	if err != nil {
		return Checkpoint{}, err
	}
	if len(cks) == 0 {
		return Checkpoint{}, fmt.Errorf("%w in %s matching %q", ErrNoCheckpoint, dir, tpl)
	}
	if monitor == "" || !tpl.HasField(monitor) {
		return latest(cks), nil
	}

	best := cks[0]
	for _, c := range cks[1:] {
		v, b := c.Metrics[monitor], best.Metrics[monitor]
		switch {
		case better(v, b, mode):
			best = c
		case same(v, b) && advanced(c, best):
			best = c
		}
	}
	return best, nil
}

// better compares monitor values. NaN ranks below every number.
func better(v, b float64, mode Mode) bool {
	switch {
	case math.IsNaN(v):
		return false
	case math.IsNaN(b):
		return true
	case mode == ModeMax:
		return v > b
	}
	return v < b
}

func same(v, b float64) bool {
	return v == b || math.IsNaN(v) && math.IsNaN(b)
}

// Last returns the rolling last checkpoint when present, otherwise the most
// advanced one matching tpl.
func Last(dir string, tpl *Template) (Checkpoint, error) {
	p := filepath.Join(dir, LastName+Extension)
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return Checkpoint{Path: p, ModTime: info.ModTime()}, nil
	}
	cks, err := Find(dir, tpl)
	if err != nil {
		return Checkpoint{}, err
	}
	if len(cks) == 0 {
		return Checkpoint{}, fmt.Errorf("%w in %s", ErrNoCheckpoint, dir)
	}
	return latest(cks), nil
}

func latest(cks []Checkpoint) Checkpoint {
	out := cks[0]
	for _, c := range cks[1:] {
		if advanced(c, out) {
			out = c
		}
	}
	return out
}

// advanced orders checkpoints by epoch, then step, then modification time.
func advanced(a, b Checkpoint) bool {
	for _, key := range []string{"epoch", "step"} {
		av, aok := a.Metrics[key]
		bv, bok := b.Metrics[key]
		if aok && bok && av != bv {
			return av > bv
		}
	}
	return a.ModTime.After(b.ModTime)
}

// Ref is a symbolic checkpoint reference such as `best:logs/run1/checkpoints`.
type Ref struct {
	Kind string // "best" or "last"
	Dir  string
}

// ParseRef recognizes `best:<dir>` and `last:<dir>`.
func ParseRef(s string) (Ref, bool) {
	kind, dir, ok := strings.Cut(s, ":")
	if !ok || dir == "" || (kind != "best" && kind != "last") {
		return Ref{}, false
	}
	return Ref{Kind: kind, Dir: dir}, true
}

// Resolve turns a reference into a checkpoint path.
func (r Ref) Resolve(tpl *Template, monitor string, mode Mode) (string, error) {
	var (
		c   Checkpoint
		err error
	)
	if r.Kind == "last" {
		c, err = Last(r.Dir, tpl)
	} else {
		c, err = Best(r.Dir, tpl, monitor, mode)
	}
	if err != nil {
		return "", err
	}
	return c.Path, nil
}
