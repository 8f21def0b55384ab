package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/cli/output"
	"github.com/leapstack-labs/vedaprep/internal/engine"
)

// ResolveOptions holds options for the resolve command.
type ResolveOptions struct {
	Write bool
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &ResolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve table documents into workbooks",
		Long: `Resolve every table document under the config directory into workbooks,
sheets and tagged tables, and report the result.

Every problem (parse errors, ambiguous metadata, duplicate tables, missing or
empty data files) is reported in one pass; the command fails if any occurred.`,
		Example: `  # Show the resolved workbooks
  vedaprep resolve

  # Resolve and write the catalog and table exports to the output directory
  vedaprep resolve --write`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Write, "write", false, "Write catalog.csv and per-table CSVs to the output directory")

	return cmd
}

func runResolve(cmd *cobra.Command, opts *ResolveOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if err := cmdCtx.Cfg.ValidateDirectories(); err != nil {
		return err
	}
	r := cmdCtx.Renderer

	res, resErr := cmdCtx.Engine.ResolveCorpus(cmd.Context())
	if res == nil {
		return resErr
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(resolveOutput(res)); err != nil {
			return err
		}
	default:
		renderResolution(r, res)
	}

	if resErr != nil {
		return fmt.Errorf("resolution failed with %d error(s)", len(splitErrors(resErr)))
	}

	if opts.Write {
		outDir := cmdCtx.Cfg.OutputDir
		catalog := filepath.Join(outDir, "catalog.csv")
		tables := filepath.Join(outDir, "tables")
		if err := engine.Export(res, []string{catalog, tables}); err != nil {
			return err
		}
		if r.EffectiveMode() != output.ModeJSON {
			r.Success(fmt.Sprintf("Wrote %s and %s", catalog, tables))
		}
	}
	return nil
}

func resolveOutput(res *engine.Resolution) output.ResolveOutput {
	out := output.ResolveOutput{
		Documents:  len(res.Documents),
		Workbooks:  []output.WorkbookSummary{},
		DurationMS: res.Duration.Milliseconds(),
	}
	for _, wb := range res.Workbooks() {
		ws := output.WorkbookSummary{Name: wb.Name}
		for _, sheet := range wb.Sheets() {
			ss := output.SheetSummary{Name: sheet.Name}
			for _, spec := range sheet.Tables {
				ss.Tags = append(ss.Tags, spec.TagName)
			}
			ws.Sheets = append(ws.Sheets, ss)
		}
		out.Workbooks = append(out.Workbooks, ws)
	}
	for _, err := range splitErrors(res.Errors) {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func renderResolution(r *output.Renderer, res *engine.Resolution) {
	r.Header(1, "Resolved Workbooks")

	header := []string{"Workbook", "Sheet", "Tag", "Source", "Description"}
	var rows [][]string
	for _, e := range res.Entries() {
		rows = append(rows, []string{e.Workbook, e.Sheet, e.Tag, string(e.SourceKind) + " " + e.SourcePath, e.Description})
	}
	if len(rows) > 0 {
		r.Table(header, rows)
	}

	r.Println("")
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Documents", fmt.Sprint(len(res.Documents))))
		r.Println(output.FormatKeyValue("Workbooks", fmt.Sprint(len(res.Workbooks()))))
		r.Println(output.FormatKeyValue("Tables", fmt.Sprint(len(res.Entries()))))
	} else {
		r.Muted(fmt.Sprintf("%d documents, %d workbooks, %d tables in %s",
			len(res.Documents), len(res.Workbooks()), len(res.Entries()), res.Duration.Round(1e6)))
	}

	for _, err := range splitErrors(res.Errors) {
		r.Error(err.Error())
	}
}
