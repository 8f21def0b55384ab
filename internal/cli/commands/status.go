package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/cli/output"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [task...]",
		Short: "Show which tasks are out of date",
		Long: `Decide, for every task, whether the next build would run it and why,
without executing anything or touching the state database records.`,
		Example: `  vedaprep status
  vedaprep status stage1 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cmdCtx.OpenStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p, err := cmdCtx.Pipeline()
			if err != nil {
				return err
			}
			start := time.Now()
			report, err := cmdCtx.Orchestrator(store).Plan(cmd.Context(), p, args)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if err := renderReport(r, report, time.Since(start)); err != nil {
				return err
			}
			if r.EffectiveMode() == output.ModeJSON {
				return nil
			}

			last, err := store.GetLatestRun()
			if err != nil {
				return err
			}
			if last != nil {
				r.Muted(fmt.Sprintf("Last build %s: %s at %s",
					last.ID, last.Status, last.StartedAt.Local().Format(time.DateTime)))
			} else {
				r.Muted("No previous build")
			}
			return nil
		},
	}
}
