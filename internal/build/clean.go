package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
)

// CleanResult lists what Clean removed.
type CleanResult struct {
	Removed []string `json:"removed"`
	Tasks   []string `json:"tasks"`
}

// Clean removes the declared outputs of the target tasks and of every task
// that depends on them (dependents first), and drops their records so they
// rerun on the next build. No targets cleans every task.
func (o *Orchestrator) Clean(ctx context.Context, p *Pipeline, targets []string, dryRun bool) (*CleanResult, error) {
	sel, err := p.Dependents(targets)
	if err != nil {
		return nil, err
	}
	levels, err := sel.Levels()
	if err != nil {
		return nil, err
	}

	res := &CleanResult{}
	var errs []error
	for _, level := range slices.Backward(levels) {
		for _, name := range level {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			t := sel.tasks[name]
			res.Tasks = append(res.Tasks, name)

			for _, out := range t.Outputs {
				if _, err := os.Lstat(out); errors.Is(err, fs.ErrNotExist) {
					continue
				}
				res.Removed = append(res.Removed, p.Rel(out))
				if dryRun {
					continue
				}
				if err := os.RemoveAll(out); err != nil {
					errs = append(errs, fmt.Errorf("task %s: %w", name, err))
				}
			}

			if !dryRun {
				if err := o.store.DeleteTaskRecord(name); err != nil {
					errs = append(errs, fmt.Errorf("task %s: failed to drop record: %w", name, err))
				}
			}
			o.logger.Debug("cleaned task", "task", name, "dry_run", dryRun)
		}
	}
	return res, errors.Join(errs...)
}
