package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const replPrompt = "vedaprep> "

// recentRunsQuery backs the .runs command.
const recentRunsQuery = `SELECT id, status, started_at, tasks, executed, up_to_date, failed, blocked FROM v_runs LIMIT 10`

const replHelp = `Commands:
  .tables          List state tables and views
  .schema <name>   Show the columns of a table or view
  .runs            Show the ten most recent builds
  .history <task>  Show recent outcomes of a task
  .quit            Exit

SQL statements end with a semicolon.`

func runQueryREPL(cmd *cobra.Command, statePath string, opts *QueryOptions) error {
	db, err := openStateDBReadOnly(statePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     filepath.Join(filepath.Dir(statePath), "query_history"),
		AutoComplete:    replCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "vedaprep state (%s). Type .help for commands.\n", statePath)

	var pending strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			pending.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if err != nil {
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if pending.Len() == 0 && strings.HasPrefix(line, ".") {
			quit, err := runDotCommand(cmd.Context(), out, db, line, opts.Format)
			if err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		pending.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			pending.WriteString(" ")
			rl.SetPrompt("    ...> ")
			continue
		}
		rl.SetPrompt(replPrompt)
		query := strings.TrimSuffix(pending.String(), ";")
		pending.Reset()

		if err := queryAndRender(cmd.Context(), out, db, query, opts.Format); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

// queryAndRender runs one query against an open database.
func queryAndRender(ctx context.Context, w io.Writer, db *sql.DB, query, format string, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	return renderResults(w, rows, format)
}

// runDotCommand executes one REPL command and reports whether to exit.
func runDotCommand(ctx context.Context, w io.Writer, db *sql.DB, line, format string) (bool, error) {
	parts := strings.Fields(line)
	arg := func(usage string) (string, error) {
		if len(parts) < 2 {
			return "", errors.New("usage: " + usage)
		}
		return parts[1], nil
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true, nil
	case ".help":
		_, _ = fmt.Fprintln(w, replHelp)
		return false, nil
	case ".tables":
		return false, listTablesFromDB(ctx, w, db, format, false)
	case ".schema":
		name, err := arg(".schema <name>")
		if err != nil {
			return false, err
		}
		return false, showSchemaFromDB(ctx, w, db, name, format)
	case ".runs":
		return false, queryAndRender(ctx, w, db, recentRunsQuery, format)
	case ".history":
		task, err := arg(".history <task>")
		if err != nil {
			return false, err
		}
		return false, queryAndRender(ctx, w, db, historyQuery, format, task, 20)
	default:
		return false, fmt.Errorf("unknown command %s (type .help for commands)", parts[0])
	}
}

// replCompleter completes the REPL commands and the state table names.
func replCompleter() *readline.PrefixCompleter {
	names := make([]string, 0, len(stateObjects))
	for name := range stateObjects {
		names = append(names, name)
	}
	sort.Strings(names)

	objects := make([]readline.PrefixCompleterInterface, len(names))
	items := make([]readline.PrefixCompleterInterface, 0, len(names)+6)
	for i, name := range names {
		objects[i] = readline.PcItem(name)
		items = append(items, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema", objects...),
		readline.PcItem(".runs"),
		readline.PcItem(".history"),
		readline.PcItem(".quit"),
	)
	return readline.NewPrefixCompleter(items...)
}
