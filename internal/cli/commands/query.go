package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	// sqlite driver for state database queries.
	_ "modernc.org/sqlite"
)

// openStateDBReadOnly opens the state database in read-only mode.
func openStateDBReadOnly(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path+"?mode=ro")
}

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
	Limit  int
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the build state database",
		Long: `Query the vedaprep state database directly.

Execute SQL against the state database to inspect build runs, task records,
recorded fingerprints and per-task history. The database is opened read-only.

When invoked without arguments, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  vedaprep query "SELECT * FROM v_runs"

  # List available tables
  vedaprep query tables

  # Show schema for a table
  vedaprep query schema task_records

  # Recent outcomes of one task
  vedaprep query history resolve

  # Output as JSON
  vedaprep query "SELECT * FROM v_task_records" --format json

  # Interactive mode
  vedaprep query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQueryViewsCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))
	cmd.AddCommand(newQueryHistoryCommand(opts))

	return cmd
}

// existingStatePath returns the configured state database path, failing
// when no build has created it yet.
func existingStatePath() (string, error) {
	cfg, err := getConfig()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(cfg.StatePath); os.IsNotExist(err) {
		return "", fmt.Errorf("state database not found at %s (run 'vedaprep build' first)", cfg.StatePath)
	}
	return cfg.StatePath, nil
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	statePath, err := existingStatePath()
	if err != nil {
		return err
	}

	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		return runQueryREPL(cmd, statePath, opts)
	}

	return executeAndRender(cmd.Context(), cmd.OutOrStdout(), statePath, sqlQuery, opts.Format)
}

func executeAndRender(ctx context.Context, w io.Writer, statePath, sqlQuery, format string, args ...any) error {
	db, err := openStateDBReadOnly(statePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := queryAndRender(ctx, w, db, sqlQuery, format, args...); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return nil
}

// newQueryTablesCommand creates the tables subcommand.
func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List all tables and views in the state database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statePath, err := existingStatePath()
			if err != nil {
				return err
			}
			return listTables(cmd, statePath, opts.Format, false)
		},
	}
}

// newQueryViewsCommand creates the views subcommand.
func newQueryViewsCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "List views only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statePath, err := existingStatePath()
			if err != nil {
				return err
			}
			return listTables(cmd, statePath, opts.Format, true)
		},
	}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show schema for a table or view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, err := existingStatePath()
			if err != nil {
				return err
			}
			return showSchema(cmd, statePath, args[0], opts.Format)
		},
	}
}

// historyQuery lists one task's recorded outcomes, newest first.
const historyQuery = `
	SELECT run_id, status, reason, started_at, execution_ms, error
	FROM task_runs
	WHERE task = ?
	ORDER BY started_at DESC
	LIMIT ?
`

// newQueryHistoryCommand creates the history subcommand.
func newQueryHistoryCommand(opts *QueryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <task>",
		Short: "Show recent outcomes of a task",
		Example: `  vedaprep query history resolve
  vedaprep query history stage1 --limit 5 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, err := existingStatePath()
			if err != nil {
				return err
			}
			return executeAndRender(cmd.Context(), cmd.OutOrStdout(), statePath, historyQuery, opts.Format, args[0], opts.Limit)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
