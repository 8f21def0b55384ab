package commands

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/cli/output"
)

// stateObjects describes the tables and views of the state database.
var stateObjects = map[string]string{
	"build_runs":        "one row per build invocation",
	"task_records":      "last successful run of each task",
	"task_fingerprints": "input and output fingerprints of each task record",
	"task_runs":         "every task outcome of every build",
	"v_runs":            "builds with outcome counts, newest first",
	"v_task_records":    "task records with fingerprint counts",
}

// resultSet is a fully read query result.
type resultSet struct {
	Columns []string
	Rows    [][]any
}

func readResultSet(rows *sql.Rows) (*resultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &resultSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	return rs, rows.Err()
}

// records returns the rows keyed by column.
func (rs *resultSet) records() []map[string]any {
	out := make([]map[string]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		rec := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			rec[col] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

func (rs *resultSet) cells() [][]string {
	out := make([][]string, len(rs.Rows))
	for i, row := range rs.Rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = formatValue(v)
		}
	}
	return out
}

// render writes the result as json, csv, md or (default) a text table.
func (rs *resultSet) render(w io.Writer, format string) error {
	switch format {
	case "json":
		return queryRenderer(w, output.ModeJSON).JSON(rs.records())
	case "csv":
		return writeCSV(w, rs.Columns, rs.cells())
	}

	mode := output.ModeText
	if output.Mode(format) == output.ModeMarkdown {
		mode = output.ModeMarkdown
	}
	r := queryRenderer(w, mode)
	if len(rs.Rows) == 0 {
		r.Println("(0 rows)")
		return nil
	}
	r.Table(rs.Columns, rs.cells())
	r.Printf("(%d rows)\n", len(rs.Rows))
	return nil
}

// queryRenderer renders query output without terminal styling so results
// stay stable when piped.
func queryRenderer(w io.Writer, mode output.OutputMode) *output.Renderer {
	return output.NewRendererWithTTY(w, w, false, mode)
}

func renderResults(w io.Writer, rows *sql.Rows, format string) error {
	rs, err := readResultSet(rows)
	if err != nil {
		return err
	}
	return rs.render(w, format)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func listTables(cmd *cobra.Command, statePath, format string, viewsOnly bool) error {
	db, err := openStateDBReadOnly(statePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return listTablesFromDB(cmd.Context(), cmd.OutOrStdout(), db, format, viewsOnly)
}

// listTablesFromDB lists the state tables and views with what each holds.
func listTablesFromDB(ctx context.Context, w io.Writer, db *sql.DB, format string, viewsOnly bool) error {
	query := `
		SELECT name, type
		FROM sqlite_master
		WHERE type IN ('table', 'view')
		AND name NOT LIKE 'sqlite_%'
		AND name NOT LIKE 'goose_%'`
	if viewsOnly {
		query += ` AND type = 'view'`
	}
	query += ` ORDER BY type DESC, name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	rs, err := readResultSet(rows)
	if err != nil {
		return err
	}
	rs.Columns = append(rs.Columns, "description")
	for i, row := range rs.Rows {
		name, _ := row[0].(string)
		rs.Rows[i] = append(row, stateObjects[name])
	}
	return rs.render(w, format)
}

func showSchema(cmd *cobra.Command, statePath, tableName, format string) error {
	db, err := openStateDBReadOnly(statePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return showSchemaFromDB(cmd.Context(), cmd.OutOrStdout(), db, tableName, format)
}

// columnInfo is one column of a state table or view.
type columnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	PK       bool   `json:"pk"`
}

type schemaOutput struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Description string       `json:"description,omitempty"`
	Columns     []columnInfo `json:"columns"`
}

func showSchemaFromDB(ctx context.Context, w io.Writer, db *sql.DB, tableName, format string) error {
	schema := schemaOutput{Name: tableName, Description: stateObjects[tableName]}
	err := db.QueryRowContext(ctx,
		`SELECT type FROM sqlite_master WHERE name = ? AND type IN ('table', 'view')`,
		tableName).Scan(&schema.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("table or view '%s' not found", tableName)
	}
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?)`, tableName)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var col columnInfo
		var notNull, pk int
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &pk); err != nil {
			return err
		}
		col.Nullable = notNull == 0
		col.PK = pk > 0
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if format == "json" {
		return queryRenderer(w, output.ModeJSON).JSON(schema)
	}

	mode := output.ModeText
	if output.Mode(format) == output.ModeMarkdown {
		mode = output.ModeMarkdown
	}
	r := queryRenderer(w, mode)
	title := "Table: " + tableName
	if schema.Type == "view" {
		title = "View: " + tableName
	}
	r.Header(2, title)
	if schema.Description != "" {
		r.Muted(schema.Description)
	}
	cells := make([][]string, len(schema.Columns))
	for i, col := range schema.Columns {
		nullable, key := "YES", ""
		if !col.Nullable {
			nullable = "NO"
		}
		if col.PK {
			key = "PK"
		}
		cells[i] = []string{col.Name, col.Type, nullable, key}
	}
	r.Table([]string{"Column", "Type", "Nullable", "Key"}, cells)
	return nil
}
