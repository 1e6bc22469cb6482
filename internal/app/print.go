package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"golang.org/x/term"

	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/launcher"
)

// printConfig writes the part of each job's configuration selected by --cfg.
func (a *App) printConfig(run *launcher.Run) error {
	color := useColor(a.config.Color, a.outW)
	for i, job := range run.Jobs {
		tree := selectConfig(job, a.config.Cfg, a.config.Resolve)
		data, err := config.EncodeYAML(tree)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if len(run.Jobs) > 1 {
			if i > 0 {
				fmt.Fprintln(a.outW)
			}
			fmt.Fprintf(a.outW, "# job %d: %s\n", job.Num, strings.Join(job.Overrides, " "))
		}
		if err := writeYAML(a.outW, string(data), color); err != nil {
			return err
		}
	}
	return nil
}

// selectConfig returns the job, hydra or full tree, resolved or as composed.
func selectConfig(job *launcher.Job, which string, resolved bool) *config.Node {
	var jobTree, hydra *config.Node
	if resolved {
		jobTree = job.Config.Tree()
		hydra = job.Hydra.Tree()
	} else {
		jobTree = job.Raw.Clone()
		hydra = jobTree.Child("hydra")
		jobTree.Delete("hydra")
	}

	out := config.NewNode()
	switch which {
	case CfgJob:
		return jobTree
	case CfgHydra:
		out.Set("hydra", hydra)
	default:
		for _, k := range jobTree.Keys() {
			v, _ := jobTree.Get(k)
			out.Set(k, v)
		}
		out.Set("hydra", hydra)
	}
	return out
}

func writeYAML(w io.Writer, src string, color bool) error {
	if color {
		if err := quick.Highlight(w, src, "yaml", "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err := io.WriteString(w, src)
	return err
}

// useColor decides whether output is highlighted. Auto highlights terminals
// unless NO_COLOR is set.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
