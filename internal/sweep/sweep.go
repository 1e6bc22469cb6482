// Package sweep expands multi-run overrides into the ordered list of jobs
// they describe.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/trainlaunch/internal/ctxlog"
	"github.com/vk/trainlaunch/internal/override"
)

// ErrSweepWithoutMultirun is returned when a sweep is given without -m.
var ErrSweepWithoutMultirun = errors.New("sweep overrides require multirun mode (-m)")

// ErrTooManyJobs is returned when a sweep expands past MaxJobs.
var ErrTooManyJobs = errors.New("sweep expands to too many jobs")

// MaxJobs caps the size of a single expansion.
const MaxJobs = 10000

// Job is one point of the sweep's Cartesian product.
type Job struct {
	Num       int
	Overrides []override.Assignment
}

// Tokens renders the job's overrides as command-line tokens.
func (j Job) Tokens() []string {
	out := make([]string, len(j.Overrides))
	for i, a := range j.Overrides {
		out[i] = a.String()
	}
	return out
}

// Count returns the number of jobs the assignments expand to. It stops with
// ErrTooManyJobs as soon as the product passes MaxJobs.
func Count(assignments []override.Assignment) (int, error) {
	n := 1
	for _, a := range assignments {
		if a.Sweep == nil {
			continue
		}
		size := a.Sweep.Len()
		if size == 0 {
			return 0, fmt.Errorf("sweep %s has no alternatives", a.String())
		}
		if n > MaxJobs/size {
			return 0, fmt.Errorf("%w: more than the limit of %d", ErrTooManyJobs, MaxJobs)
		}
		n *= size
	}
	return n, nil
}

// Expand returns one job per combination of sweep alternatives, in the order
// the swept keys appear with the last one varying fastest. Without sweeps the
// result is a single job carrying the assignments unchanged.
func Expand(ctx context.Context, assignments []override.Assignment, multirun bool) ([]Job, error) {
	var swept []int
	for i, a := range assignments {
		if a.Sweep != nil {
			swept = append(swept, i)
		}
	}
	if len(swept) > 0 && !multirun {
		keys := make([]string, len(swept))
		for i, idx := range swept {
			keys[i] = assignments[idx].String()
		}
		return nil, fmt.Errorf("%w: %s", ErrSweepWithoutMultirun, strings.Join(keys, " "))
	}

	total, err := Count(assignments)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, total)
	choice := make([]int, len(assignments))
	for num := 0; num < total; num++ {
		// Decode num as a mixed-radix number whose last digit is the last
		// swept key.
		rem := num
		for k := len(swept) - 1; k >= 0; k-- {
			idx := swept[k]
			size := assignments[idx].Sweep.Len()
			choice[idx] = rem % size
			rem /= size
		}

		job := Job{Num: num, Overrides: make([]override.Assignment, len(assignments))}
		for i, a := range assignments {
			job.Overrides[i] = a.Choose(choice[i])
		}
		jobs = append(jobs, job)
	}

	ctxlog.FromContext(ctx).Debug("Expanded sweep.", "swept_keys", len(swept), "jobs", len(jobs))
	return jobs, nil
}
