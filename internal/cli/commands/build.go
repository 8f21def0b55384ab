package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/build"
	"github.com/leapstack-labs/vedaprep/internal/cli/output"
	"github.com/leapstack-labs/vedaprep/internal/fingerprint"
	"github.com/leapstack-labs/vedaprep/internal/watch"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// BuildOptions holds options for the build command.
type BuildOptions struct {
	DryRun     bool
	Force      bool
	Watch      bool
	JSONOutput bool
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build [task...]",
		Short: "Run the pipeline incrementally",
		Long: `Run pipeline tasks in dependency order, skipping every task whose inputs,
outputs and action are unchanged since its last successful run.

A task that reruns invalidates everything downstream of it. A failed task
blocks its dependents while independent branches still complete. Naming
tasks restricts the run to them and their upstream dependencies.`,
		Example: `  # Build everything that is out of date
  vedaprep build

  # Show what would run
  vedaprep build --dry-run

  # Rebuild one task and its dependencies, ignoring recorded state
  vedaprep build resolve --force

  # Rebuild on every change
  vedaprep build --watch

  # JSON lines for CI
  vedaprep build --json`,
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Decide staleness without executing anything")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Rerun every selected task")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rebuild when inputs change")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON lines for progress tracking")

	return cmd
}

func runBuild(cmd *cobra.Command, targets []string, opts *BuildOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	store, err := cmdCtx.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	orch := cmdCtx.Orchestrator(store)

	once := func(ctx context.Context) error {
		p, err := cmdCtx.Pipeline()
		if err != nil {
			return err
		}
		start := time.Now()
		report, runErr := orch.Run(ctx, p, build.RunOptions{
			Targets: targets,
			DryRun:  opts.DryRun,
			Force:   opts.Force,
		})
		if report == nil {
			return runErr
		}
		if opts.JSONOutput {
			emitReportEvents(cmdCtx.Renderer, report, time.Since(start))
		} else if err := renderReport(cmdCtx.Renderer, report, time.Since(start)); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}
		return reportError(report)
	}

	if !opts.Watch {
		return once(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := once(ctx); err != nil {
		cmdCtx.Renderer.Error(err.Error())
	}

	p, err := cmdCtx.Pipeline()
	if err != nil {
		return err
	}
	paths, ignore := watchPaths(ctx, cmdCtx, p)
	w := watch.New(watch.Config{Paths: paths, Ignore: ignore, Logger: cmdCtx.Logger})
	return w.Run(ctx, func(ctx context.Context, changed []string) {
		cmdCtx.Renderer.Muted(fmt.Sprintf("%d change(s) detected, rebuilding", len(changed)))
		if err := once(ctx); err != nil {
			cmdCtx.Renderer.Error(err.Error())
		}
	})
}

// watchPaths returns what watch mode observes: the config directory and
// every task input, minus task outputs and the state directory. Files an
// action discovers are watched through their directory.
func watchPaths(ctx context.Context, cmdCtx *CommandContext, p *build.Pipeline) (paths, ignore []string) {
	paths = append(paths, cmdCtx.Cfg.ConfigDir)
	for _, name := range p.Names() {
		t, _ := p.Task(name)
		for _, in := range t.Inputs {
			paths = append(paths, staticPrefix(in))
		}
		if d, ok := t.Action.(build.InputDiscoverer); ok {
			extra, err := d.DiscoverInputs(ctx, t)
			if err != nil {
				cmdCtx.Logger.Warn("failed to discover task inputs", "task", name, "error", err)
			}
			for _, file := range extra {
				paths = append(paths, filepath.Dir(file))
			}
		}
		ignore = append(ignore, t.Outputs...)
	}
	ignore = append(ignore, filepath.Dir(cmdCtx.Cfg.StatePath))
	return paths, ignore
}

// staticPrefix returns the longest leading directory of pattern without
// glob metacharacters.
func staticPrefix(pattern string) string {
	for fingerprint.HasMeta(pattern) {
		pattern = filepath.Dir(pattern)
	}
	return pattern
}

func renderReport(r *output.Renderer, report *build.Report, elapsed time.Duration) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(planOutput(report))
	}

	title := "Build"
	if report.DryRun {
		title = "Build Plan (dry run)"
	}
	r.Header(1, title)
	for _, res := range report.Results {
		reason := res.Reason
		if res.Err != nil && res.Status == core.TaskStatusFailed {
			reason = res.Err.Error()
		}
		r.StatusLine(string(res.Status), res.Task, reason)
		if res.Status == core.TaskStatusFailed && res.Output != "" && r.EffectiveMode() == output.ModeMarkdown {
			r.Println(output.FormatCodeBlock("", res.Output))
		}
	}
	r.Println("")

	counts := report.Counts()
	summary := fmt.Sprintf("%d executed, %d up to date, %d pending, %d failed, %d blocked in %s",
		counts[core.TaskStatusExecuted], counts[core.TaskStatusUpToDate], counts[core.TaskStatusPending],
		counts[core.TaskStatusFailed], counts[core.TaskStatusBlocked], elapsed.Round(time.Millisecond))
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Summary", summary))
		if report.RunID != "" {
			r.Println(output.FormatKeyValue("Run", report.RunID))
		}
		return nil
	}
	if report.ExitCode() == 0 {
		r.Success(summary)
	} else {
		r.Println(r.Styles().Error.Render("✗ " + summary))
	}
	return nil
}

func planOutput(report *build.Report) output.PlanOutput {
	out := output.PlanOutput{
		RunID:   report.RunID,
		DryRun:  report.DryRun,
		Tasks:   make([]output.PlanTask, 0, len(report.Results)),
		Summary: output.PlanSummary{},
	}
	for _, res := range report.Results {
		pt := output.PlanTask{
			Name:       res.Task,
			Status:     string(res.Status),
			Reason:     res.Reason,
			DurationMS: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			pt.Error = res.Err.Error()
		}
		out.Tasks = append(out.Tasks, pt)
	}
	for status, n := range report.Counts() {
		out.Summary[string(status)] = n
	}
	return out
}

// emitReportEvents writes the report as JSON lines: run_start, one
// task_complete per task and run_complete.
func emitReportEvents(r *output.Renderer, report *build.Report, elapsed time.Duration) {
	emit := func(event output.TaskEvent) {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
		data, _ := json.Marshal(event)
		r.Println(string(data))
	}

	var names []string
	for _, res := range report.Results {
		names = append(names, res.Task)
	}
	emit(output.TaskEvent{Event: "run_start", RunID: report.RunID, Tasks: names})

	for _, res := range report.Results {
		event := output.TaskEvent{
			Event:      "task_complete",
			RunID:      report.RunID,
			Task:       res.Task,
			Status:     string(res.Status),
			Reason:     res.Reason,
			DurationMS: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			event.Error = res.Err.Error()
		}
		emit(event)
	}

	counts := report.Counts()
	status := string(core.RunStatusCompleted)
	if report.ExitCode() != 0 {
		status = string(core.RunStatusFailed)
	}
	emit(output.TaskEvent{
		Event:    "run_complete",
		RunID:    report.RunID,
		Status:   status,
		Executed: counts[core.TaskStatusExecuted],
		UpToDate: counts[core.TaskStatusUpToDate],
		Failed:   counts[core.TaskStatusFailed],
		Blocked:  counts[core.TaskStatusBlocked],
		TotalMS:  elapsed.Milliseconds(),
	})
}
