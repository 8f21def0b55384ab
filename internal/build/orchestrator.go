package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/vedaprep/internal/fingerprint"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// Config holds orchestrator configuration.
type Config struct {
	// Store persists task records and run history (required).
	Store core.StateStore
	// Fingerprinter computes file fingerprints; nil means content hashing.
	Fingerprinter *fingerprint.Fingerprinter
	// Parallel is the maximum number of tasks run at once within a level.
	Parallel int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// RunOptions selects what a run does.
type RunOptions struct {
	// Targets restricts the run to these tasks and their dependencies.
	Targets []string
	// DryRun decides staleness without executing or recording anything.
	DryRun bool
	// Force reruns every selected task.
	Force bool
}

// Orchestrator executes pipelines incrementally.
type Orchestrator struct {
	store    core.StateStore
	fp       *fingerprint.Fingerprinter
	parallel int
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fp := cfg.Fingerprinter
	if fp == nil {
		fp = fingerprint.New(fingerprint.ModeHash)
	}
	parallel := cfg.Parallel
	if parallel < 1 {
		parallel = 1
	}
	return &Orchestrator{store: cfg.Store, fp: fp, parallel: parallel, logger: logger}
}

// Plan reports what Run would do without executing anything.
func (o *Orchestrator) Plan(ctx context.Context, p *Pipeline, targets []string) (*Report, error) {
	return o.Run(ctx, p, RunOptions{Targets: targets, DryRun: true})
}

// runState tracks task outcomes while a run progresses.
type runState struct {
	mu      sync.Mutex
	status  map[string]core.TaskStatus
	results map[string]TaskResult
}

func (s *runState) set(res TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[res.Task] = res.Status
	s.results[res.Task] = res
}

func (s *runState) get(task string) core.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[task]
}

// Run executes the stale tasks of p level by level. Task failures are
// reported in the returned Report; the error is reserved for problems that
// prevent the run itself (unknown targets, state store failures,
// cancellation).
func (o *Orchestrator) Run(ctx context.Context, p *Pipeline, opts RunOptions) (*Report, error) {
	sel, err := p.Select(opts.Targets)
	if err != nil {
		return nil, err
	}
	levels, err := sel.Levels()
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: opts.DryRun}
	if !opts.DryRun {
		run, err := o.store.CreateRun()
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		report.RunID = run.ID
		o.logger.Info("starting build", "run_id", run.ID, "tasks", len(sel.tasks), "parallel", o.parallel)
	}

	st := &runState{status: make(map[string]core.TaskStatus), results: make(map[string]TaskResult)}
	for _, level := range levels {
		g := new(errgroup.Group)
		g.SetLimit(o.parallel)
		for _, name := range level {
			g.Go(func() error {
				st.set(o.runTask(ctx, sel, sel.tasks[name], st, report.RunID, opts))
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, level := range levels {
		for _, name := range level {
			report.Results = append(report.Results, st.results[name])
		}
	}

	if opts.DryRun {
		return report, ctx.Err()
	}
	o.finishRun(ctx, report)
	return report, ctx.Err()
}

func (o *Orchestrator) finishRun(ctx context.Context, report *Report) {
	for _, res := range report.Results {
		if res.Status == "" {
			continue
		}
		if err := o.store.RecordTaskRun(taskRun(report.RunID, res)); err != nil {
			o.logger.Warn("failed to record task run", "task", res.Task, "error", err)
		}
	}

	status := core.RunStatusCompleted
	errMsg := ""
	switch {
	case ctx.Err() != nil:
		status = core.RunStatusCancelled
		errMsg = ctx.Err().Error()
	case report.ExitCode() != 0:
		status = core.RunStatusFailed
		errMsg = fmt.Sprintf("%d task(s) failed, %d blocked",
			len(report.Tasks(core.TaskStatusFailed)), len(report.Tasks(core.TaskStatusBlocked)))
	}
	if err := o.store.CompleteRun(report.RunID, status, errMsg); err != nil {
		o.logger.Warn("failed to complete run", "run_id", report.RunID, "error", err)
	}

	counts := report.Counts()
	o.logger.Info("build finished", "run_id", report.RunID, "status", status,
		"executed", counts[core.TaskStatusExecuted], "up_to_date", counts[core.TaskStatusUpToDate],
		"failed", counts[core.TaskStatusFailed], "blocked", counts[core.TaskStatusBlocked])
}

func taskRun(runID string, res TaskResult) *core.TaskRun {
	now := time.Now().UTC()
	tr := &core.TaskRun{
		RunID:       runID,
		Task:        res.Task,
		Status:      res.Status,
		Reason:      res.Reason,
		StartedAt:   now.Add(-res.Duration),
		ExecutionMS: res.Duration.Milliseconds(),
	}
	if res.Status != core.TaskStatusBlocked {
		tr.CompletedAt = &now
	}
	if res.Err != nil {
		tr.Error = res.Err.Error()
	}
	return tr
}

// runTask decides and, when stale, executes one task.
func (o *Orchestrator) runTask(ctx context.Context, p *Pipeline, t *Task, st *runState, runID string, opts RunOptions) TaskResult {
	res := TaskResult{Task: t.Name}

	changedUpstream := ""
	for _, up := range p.Upstream(t.Name) {
		switch st.get(up) {
		case core.TaskStatusFailed, core.TaskStatusBlocked:
			res.Status = core.TaskStatusBlocked
			res.Reason = "upstream task " + up + " failed"
			res.Err = &BlockedError{Task: t.Name, Upstream: up}
			o.logger.Info("task blocked", "task", t.Name, "upstream", up)
			return res
		case core.TaskStatusExecuted, core.TaskStatusPending:
			if changedUpstream == "" {
				changedUpstream = up
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return o.fail(res, t, "cancelled", err)
	}

	d, err := o.decide(ctx, p, t, changedUpstream, opts.Force)
	if err != nil {
		return o.fail(res, t, "staleness check failed", err)
	}

	if len(d.missing) > 0 {
		if opts.DryRun && changedUpstream != "" && o.producedUpstream(p, t, d.missing) {
			res.Status = core.TaskStatusPending
			res.Reason = "input " + p.Rel(d.missing[0]) + " is produced upstream"
			return res
		}
		errs := make([]error, len(d.missing))
		for i, m := range d.missing {
			errs[i] = &core.MissingSourceError{Path: p.Rel(m)}
		}
		return o.fail(res, t, "missing input "+p.Rel(d.missing[0]), errors.Join(errs...))
	}

	res.Reason = d.reason
	if !d.stale {
		res.Status = core.TaskStatusUpToDate
		o.logger.Debug("task up to date", "task", t.Name)
		return res
	}
	if opts.DryRun {
		res.Status = core.TaskStatusPending
		return res
	}

	return o.execute(ctx, p, t, d, res, runID)
}

func (o *Orchestrator) producedUpstream(p *Pipeline, t *Task, missing []string) bool {
	for _, m := range missing {
		found := false
		for _, up := range p.graph.GetUpstreamNodes(t.Name) {
			for _, out := range p.tasks[up].Outputs {
				if fingerprint.MatchesPattern(m, out) {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// execute runs a stale task and commits its record once its outputs are on disk.
func (o *Orchestrator) execute(ctx context.Context, p *Pipeline, t *Task, d decision, res TaskResult, runID string) TaskResult {
	o.logger.Info("executing task", "task", t.Name, "reason", d.reason)

	// a task interrupted mid-run must not look up to date next time
	if err := o.store.DeleteTaskRecord(t.Name); err != nil {
		return o.fail(res, t, "failed to invalidate record", err)
	}

	start := time.Now()
	output, err := t.Action.Run(ctx, t)
	res.Duration = time.Since(start)
	res.Output = output
	if err != nil {
		return o.fail(res, t, "action failed", err)
	}

	files, missing, err := fingerprint.Expand(t.Outputs)
	if err != nil {
		return o.fail(res, t, "failed to read outputs", err)
	}
	if len(missing) > 0 {
		return o.fail(res, t, "declared output "+p.Rel(missing[0])+" not produced",
			&core.MissingSourceError{Path: p.Rel(missing[0])})
	}
	if err := syncFiles(files); err != nil {
		return o.fail(res, t, "failed to flush outputs", err)
	}
	outputs, err := o.fingerprints(p, files)
	if err != nil {
		return o.fail(res, t, "failed to fingerprint outputs", err)
	}

	rec := &core.TaskRecord{
		Task:        t.Name,
		Signature:   t.Signature(),
		Inputs:      d.inputs,
		Outputs:     outputs,
		RunID:       runID,
		CompletedAt: time.Now().UTC(),
		Upstream:    d.upstream,
	}
	if err := o.store.CommitTaskRecord(rec); err != nil {
		return o.fail(res, t, "failed to commit record", err)
	}

	res.Status = core.TaskStatusExecuted
	o.logger.Info("task executed", "task", t.Name, "duration_ms", res.Duration.Milliseconds())
	return res
}

func (o *Orchestrator) fail(res TaskResult, t *Task, reason string, err error) TaskResult {
	res.Status = core.TaskStatusFailed
	res.Reason = reason
	res.Err = &core.TaskFailure{Task: t.Name, Err: err, Output: res.Output}
	o.logger.Error("task failed", "task", t.Name, "reason", reason, "error", err)
	return res
}

// syncFiles flushes every file to stable storage.
func syncFiles(files []string) error {
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = f.Sync()
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("sync %s: %w", path, err)
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}
