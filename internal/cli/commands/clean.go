package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/cli/output"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean [task...]",
		Short: "Remove task outputs and their build records",
		Long: `Remove the declared outputs of the named tasks and of every task that
depends on them (all tasks by default, dependents first), and forget their
build records so the next build reruns them.`,
		Example: `  vedaprep clean
  vedaprep clean resolve --dry-run`,
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
			res, err := cmdCtx.Orchestrator(store).Clean(cmd.Context(), p, args, dryRun)
			if res == nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				out := output.CleanOutput{DryRun: dryRun, Tasks: nonNil(res.Tasks), Removed: nonNil(res.Removed)}
				if jerr := r.JSON(out); jerr != nil {
					return jerr
				}
				return err
			}

			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, path := range res.Removed {
				r.Printf("%s %s\n", verb, path)
			}
			if err != nil {
				return err
			}
			r.Success(fmt.Sprintf("Cleaned %d task(s), %d path(s)", len(res.Tasks), len(res.Removed)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without removing it")

	return cmd
}
