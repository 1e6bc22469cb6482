package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/vk/trainlaunch/internal/ctxlog"
)

// Environment variables set for the trainer process.
const (
	EnvConfig    = "TRAINLAUNCH_CONFIG"
	EnvOutputDir = "TRAINLAUNCH_OUTPUT_DIR"
	EnvJobNum    = "TRAINLAUNCH_JOB_NUM"
	EnvJobID     = "TRAINLAUNCH_JOB_ID"
)

// CommandKey is the hydra key holding the trainer command line.
const CommandKey = "launcher.command"

// Trainer runs one prepared job and returns the process exit code.
type Trainer interface {
	Train(ctx context.Context, job *Job) (int, error)
}

// ExecTrainer runs the command configured under hydra.launcher.command. Jobs
// without a command fall back to Fallback.
type ExecTrainer struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Fallback Trainer
}

// Train implements Trainer.
func (t *ExecTrainer) Train(ctx context.Context, job *Job) (int, error) {
	argv, err := jobCommand(job)
	if err != nil {
		return 1, err
	}
	if len(argv) == 0 {
		if t.Fallback == nil {
			return 1, errors.New("no trainer command configured under hydra.launcher.command")
		}
		return t.Fallback.Train(ctx, job)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Starting trainer.", "job", job.Num, "command", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = job.Cwd
	cmd.Env = append(os.Environ(),
		EnvConfig+"="+job.ConfigPath(),
		EnvOutputDir+"="+job.OutputDir,
		EnvJobNum+"="+strconv.Itoa(job.Num),
		EnvJobID+"="+job.ID,
	)
	cmd.Stdout = t.Stdout
	cmd.Stderr = t.Stderr

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), fmt.Errorf("trainer exited with code %d", exitErr.ExitCode())
	}
	return 1, fmt.Errorf("failed to start trainer: %w", err)
}

func jobCommand(job *Job) ([]string, error) {
	if job.Hydra == nil || !job.Hydra.Has(CommandKey) {
		return nil, nil
	}
	v, err := job.Hydra.Get(CommandKey)
	if err != nil || v == nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("hydra.%s must be a list of strings", CommandKey)
	}
	argv := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("hydra.%s[%d] must be a string", CommandKey, i)
		}
		argv[i] = s
	}
	return argv, nil
}

// PrintTrainer writes the resolved job configuration instead of running
// anything.
type PrintTrainer struct {
	Out io.Writer
}

// Train implements Trainer.
func (t *PrintTrainer) Train(_ context.Context, job *Job) (int, error) {
	data, err := job.Config.YAML()
	if err != nil {
		return 1, err
	}
	if _, err := fmt.Fprintf(t.Out, "# job %d: %s\n%s", job.Num, job.OutputDir, data); err != nil {
		return 1, err
	}
	return 0, nil
}
