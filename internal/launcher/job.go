package launcher

import (
	"time"

	"github.com/vk/trainlaunch/internal/compose"
	"github.com/vk/trainlaunch/internal/config"
)

// Mode is the launch mode recorded under hydra.mode.
type Mode string

const (
	ModeRun      Mode = "RUN"
	ModeMultirun Mode = "MULTIRUN"
)

// Job is a fully prepared unit of work.
type Job struct {
	Num             int
	ID              string
	Name            string
	Overrides       []string
	OverrideDirname string
	OutputDir       string
	Cwd             string
	Digest          string
	Choices         []compose.Choice

	// Raw is the composed tree before interpolation, hydra keys included.
	Raw *config.Node
	// Config is the resolved job configuration without the hydra subtree.
	Config *config.Resolved
	// Hydra is the resolved hydra subtree.
	Hydra *config.Resolved
}

// Run describes one invocation of the launcher.
type Run struct {
	ConfigName string
	Mode       Mode
	Jobs       []*Job
	SweepDir   string
	Start      time.Time
}

// Status is the outcome of a job.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Result records how a job ended.
type Result struct {
	Job      *Job
	Start    time.Time
	End      time.Time
	ExitCode int
	Err      error
}

// Status reports whether the job completed.
func (r *Result) Status() Status {
	if r.Err != nil {
		return StatusFailed
	}
	return StatusCompleted
}

// Duration is the wall time of the job.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
