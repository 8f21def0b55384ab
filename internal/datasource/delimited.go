package datasource

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadDelimited loads a delimited text file with a header row. Cells are kept
// as strings so numeric precision is never lost. Files ending in .tsv are
// tab-separated; everything else is comma-separated.
func ReadDelimited(path string) (*core.Table, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is a declared DataLocation
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &core.MissingSourceError{Path: path, Err: err}
		}
		return nil, &core.SchemaError{Source: path, Msg: "unreadable", Err: err}
	}
	return ParseDelimited(path, content)
}

// ParseDelimited parses delimited content. path names the source in errors
// and selects the delimiter.
func ParseDelimited(path string, content []byte) (*core.Table, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(content))
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		reader.Comma = '\t'
	}

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &core.SchemaError{Source: path, Msg: "file is empty"}
	}
	if err != nil {
		return nil, &core.SchemaError{Source: path, Msg: "malformed header", Err: err}
	}

	seen := make(map[string]bool, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, &core.SchemaError{Source: path, Msg: fmt.Sprintf("column %d has an empty name", i+1)}
		}
		if seen[col] {
			return nil, &core.SchemaError{Source: path, Msg: fmt.Sprintf("duplicate column %q", col)}
		}
		seen[col] = true
		header[i] = col
	}

	var rows [][]any
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &core.SchemaError{Source: path, Msg: "malformed row", Err: err}
		}
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, &core.SchemaError{Source: path, Msg: "file has a header but no rows"}
	}
	return &core.Table{Columns: header, Rows: rows}, nil
}
