package datasource

import (
	"fmt"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// FromInline normalizes an inline payload into a table.
//
// Column-oriented: a mapping whose values are scalars or sequences of
// scalars. A scalar is a single value; shorter columns are padded with "".
//
// Record-oriented: a mapping whose values are all mappings, or a sequence of
// mappings. Each mapping is one row; columns appear in first-seen key order
// and missing cells are "".
func FromInline(payload any) (*core.Table, error) {
	switch p := payload.(type) {
	case *core.OrderedMap:
		if p.Len() == 0 {
			return nil, inlineError("payload is empty")
		}
		if allMappings(p) {
			rows := make([]*core.OrderedMap, 0, p.Len())
			for _, k := range p.Keys() {
				v, _ := p.Get(k)
				rows = append(rows, v.(*core.OrderedMap))
			}
			return fromRecords(rows)
		}
		return fromColumns(p)

	case []any:
		if len(p) == 0 {
			return nil, inlineError("payload is empty")
		}
		rows := make([]*core.OrderedMap, 0, len(p))
		for i, item := range p {
			m, ok := item.(*core.OrderedMap)
			if !ok {
				return nil, inlineError(fmt.Sprintf("record %d is not a mapping", i))
			}
			rows = append(rows, m)
		}
		return fromRecords(rows)

	default:
		return nil, inlineError(fmt.Sprintf("unsupported payload of type %T", payload))
	}
}

func fromColumns(m *core.OrderedMap) (*core.Table, error) {
	columns := m.Keys()
	values := make([][]any, len(columns))
	height := 0

	for i, col := range columns {
		raw, _ := m.Get(col)
		switch v := raw.(type) {
		case []any:
			for j, cell := range v {
				if !isScalar(cell) {
					return nil, inlineError(fmt.Sprintf("column %q item %d is not a scalar", col, j))
				}
			}
			values[i] = v
		case *core.OrderedMap:
			return nil, inlineError(fmt.Sprintf("column %q mixes a mapping with scalar columns", col))
		default:
			if !isScalar(raw) {
				return nil, inlineError(fmt.Sprintf("column %q has unsupported value %T", col, raw))
			}
			values[i] = []any{raw}
		}
		height = max(height, len(values[i]))
	}

	if height == 0 {
		return nil, inlineError("payload has no rows")
	}

	rows := make([][]any, height)
	for r := range rows {
		row := make([]any, len(columns))
		for c := range columns {
			if r < len(values[c]) {
				row[c] = values[c][r]
			} else {
				row[c] = ""
			}
		}
		rows[r] = row
	}
	return &core.Table{Columns: columns, Rows: rows}, nil
}

func fromRecords(records []*core.OrderedMap) (*core.Table, error) {
	var columns []string
	index := make(map[string]int)
	for i, rec := range records {
		for _, k := range rec.Keys() {
			v, _ := rec.Get(k)
			if !isScalar(v) {
				return nil, inlineError(fmt.Sprintf("record %d field %q is not a scalar", i, k))
			}
			if _, seen := index[k]; !seen {
				index[k] = len(columns)
				columns = append(columns, k)
			}
		}
	}
	if len(columns) == 0 {
		return nil, inlineError("records have no fields")
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for c, col := range columns {
			if v, ok := rec.Get(col); ok {
				row[c] = v
			} else {
				row[c] = ""
			}
		}
		rows[i] = row
	}
	return &core.Table{Columns: columns, Rows: rows}, nil
}

func allMappings(m *core.OrderedMap) bool {
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		if _, ok := v.(*core.OrderedMap); !ok {
			return false
		}
	}
	return true
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, int64, float64, bool:
		return true
	default:
		return false
	}
}

func inlineError(msg string) error {
	return &core.SchemaError{Source: core.InlineLocation, Msg: msg}
}
