package build

import (
	"errors"
	"time"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// TaskResult is the outcome of one task.
type TaskResult struct {
	Task     string          `json:"task"`
	Status   core.TaskStatus `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Err      error           `json:"-"`
	Output   string          `json:"output,omitempty"`
	Duration time.Duration   `json:"duration_ns"`
}

// Report lists every task of a run in execution order.
type Report struct {
	RunID   string       `json:"run_id,omitempty"`
	DryRun  bool         `json:"dry_run"`
	Results []TaskResult `json:"results"`
}

// Result returns the named task's result.
func (r *Report) Result(task string) (TaskResult, bool) {
	for _, res := range r.Results {
		if res.Task == task {
			return res, true
		}
	}
	return TaskResult{}, false
}

// Status returns the named task's status, or "" if it was not part of the run.
func (r *Report) Status(task string) core.TaskStatus {
	res, _ := r.Result(task)
	return res.Status
}

// Tasks returns the names of tasks with the given status, in execution order.
func (r *Report) Tasks(status core.TaskStatus) []string {
	var names []string
	for _, res := range r.Results {
		if res.Status == status {
			names = append(names, res.Task)
		}
	}
	return names
}

// Counts returns the number of tasks per status.
func (r *Report) Counts() map[core.TaskStatus]int {
	counts := make(map[core.TaskStatus]int)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Err joins the errors of every failed and blocked task.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// ExitCode is 1 when any task failed or was blocked, 0 otherwise.
func (r *Report) ExitCode() int {
	for _, res := range r.Results {
		if res.Status == core.TaskStatusFailed || res.Status == core.TaskStatusBlocked {
			return 1
		}
	}
	return 0
}

// BlockedError reports a task that did not run because a dependency failed.
type BlockedError struct {
	Task     string
	Upstream string
}

func (e *BlockedError) Error() string {
	return "task " + e.Task + " blocked: upstream task " + e.Upstream + " failed"
}
