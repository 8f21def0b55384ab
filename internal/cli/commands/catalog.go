package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/export"
)

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Write the metadata catalog",
		Long: `Resolve the corpus and write one catalog row per table:
Workbook, Sheet, Tag, Description, SourceKind and SourcePath.

Rows for tables that resolved are written even when other tables failed;
the command still exits non-zero in that case.`,
		Example: `  # Catalog as CSV on stdout
  vedaprep catalog

  # Catalog written atomically to a file (JSON when the name ends in .json)
  vedaprep catalog --file output/catalog.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
				return err
			}

			res, resErr := cmdCtx.Engine.ResolveCorpus(cmd.Context())
			if res == nil {
				return resErr
			}
			for _, err := range splitErrors(resErr) {
				cmdCtx.Renderer.Error(err.Error())
			}

			if file != "" {
				err = export.WriteCatalogFile(file, res.Entries())
			} else {
				err = export.WriteCatalog(cmd.OutOrStdout(), res.Entries())
			}
			if err != nil {
				return err
			}
			if resErr != nil {
				return fmt.Errorf("resolution failed with %d error(s)", len(splitErrors(resErr)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Write the catalog to this file instead of stdout")

	return cmd
}
