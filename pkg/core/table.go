package core

import (
	"fmt"
	"reflect"
)

// SourceKind identifies where a table's rows come from.
type SourceKind string

// Source kinds as they appear in the metadata catalog.
const (
	SourceInline SourceKind = "Inline"
	SourceFile   SourceKind = "File"
)

// InlineLocation is the catalog SourcePath used for inline tables.
const InlineLocation = "inline"

// DataSource is the payload origin of a table: exactly one of Inline or FileRef.
type DataSource interface {
	Kind() SourceKind
	// Location is the referenced path for file sources and InlineLocation otherwise.
	Location() string
	isDataSource()
}

// Inline carries tabular data written directly in a configuration document.
//
// Payload is either a *OrderedMap (column- or record-oriented) or a []any of
// *OrderedMap records.
type Inline struct {
	Payload any
}

// Kind implements DataSource.
func (Inline) Kind() SourceKind { return SourceInline }

// Location implements DataSource.
func (Inline) Location() string { return InlineLocation }

func (Inline) isDataSource() {}

// FileRef points to an external delimited tabular file.
type FileRef struct {
	Path string
}

// Kind implements DataSource.
func (FileRef) Kind() SourceKind { return SourceFile }

// Location implements DataSource.
func (f FileRef) Location() string { return f.Path }

func (FileRef) isDataSource() {}

// SourcesEqual reports whether two data sources describe the same payload.
func SourcesEqual(a, b DataSource) bool {
	switch av := a.(type) {
	case Inline:
		bv, ok := b.(Inline)
		return ok && ValuesEqual(av.Payload, bv.Payload)
	case FileRef:
		bv, ok := b.(FileRef)
		return ok && av.Path == bv.Path
	default:
		return a == nil && b == nil
	}
}

// TableKey is the corpus-wide identity of a table.
type TableKey struct {
	Workbook string
	Table    string
}

func (k TableKey) String() string {
	return k.Workbook + "/" + k.Table
}

// TableSpec is the resolved, canonical description of one configuration table.
// Specs are value objects: they are built once by the resolver and never mutated.
type TableSpec struct {
	WorkbookName string
	TableName    string
	SheetName    string
	TagName      string
	UCSets       *OrderedMap // nil when the table declares none
	Description  string
	Source       DataSource
	Document     string // path of the declaring document
}

// Key returns the (WorkbookName, TableName) identity.
func (s TableSpec) Key() TableKey {
	return TableKey{Workbook: s.WorkbookName, Table: s.TableName}
}

// Equal reports whether two specs are identical.
func (s TableSpec) Equal(o TableSpec) bool {
	return s.WorkbookName == o.WorkbookName &&
		s.TableName == o.TableName &&
		s.SheetName == o.SheetName &&
		s.TagName == o.TagName &&
		s.UCSets.Equal(o.UCSets) &&
		s.Description == o.Description &&
		s.Document == o.Document &&
		SourcesEqual(s.Source, o.Source)
}

// Table is a materialized tabular payload: ordered column names and rows.
// Cells hold string, int64, float64 or bool values.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Record returns row i as an ordered column → value mapping.
func (t *Table) Record(i int) (*OrderedMap, error) {
	if i < 0 || i >= t.NumRows() {
		return nil, fmt.Errorf("row %d out of range (%d rows)", i, t.NumRows())
	}
	rec := NewOrderedMap()
	for j, col := range t.Columns {
		rec.Set(col, t.Rows[i][j])
	}
	return rec, nil
}

// Equal reports whether two tables have identical columns and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	return reflect.DeepEqual(t.Columns, o.Columns) && reflect.DeepEqual(t.Rows, o.Rows)
}

// Workbook groups the tables of one eventual output file, in first-registration order.
type Workbook struct {
	Name   string
	Tables []TableSpec
}

// Sheet is a derived grouping of a workbook's tables sharing a SheetName.
type Sheet struct {
	Workbook string
	Name     string
	Tables   []TableSpec
}

// Sheets groups the workbook's tables by SheetName. Sheets appear in the order
// their first table was registered; tables keep registration order within a sheet.
func (w *Workbook) Sheets() []Sheet {
	var sheets []Sheet
	index := make(map[string]int)
	for _, spec := range w.Tables {
		i, ok := index[spec.SheetName]
		if !ok {
			i = len(sheets)
			index[spec.SheetName] = i
			sheets = append(sheets, Sheet{Workbook: w.Name, Name: spec.SheetName})
		}
		sheets[i].Tables = append(sheets[i].Tables, spec)
	}
	return sheets
}

// CatalogEntry is one row of the metadata catalog.
type CatalogEntry struct {
	Workbook    string      `json:"workbook"`
	Sheet       string      `json:"sheet"`
	Tag         string      `json:"tag"`
	Table       string      `json:"table"`
	Description string      `json:"description"`
	SourceKind  SourceKind  `json:"source_kind"`
	SourcePath  string      `json:"source_path"`
	Document    string      `json:"document"`
	UCSets      *OrderedMap `json:"uc_sets,omitempty"`
}

// NewCatalogEntry builds the catalog row for spec.
func NewCatalogEntry(spec TableSpec) CatalogEntry {
	entry := CatalogEntry{
		Workbook:    spec.WorkbookName,
		Sheet:       spec.SheetName,
		Tag:         spec.TagName,
		Table:       spec.TableName,
		Description: spec.Description,
		Document:    spec.Document,
		UCSets:      spec.UCSets,
	}
	if spec.Source != nil {
		entry.SourceKind = spec.Source.Kind()
		entry.SourcePath = spec.Source.Location()
	}
	return entry
}

// TableData is one materialized table as a renderer consumes it.
type TableData struct {
	Key         TableKey
	Tag         string
	Description string
	UCSets      *OrderedMap
	Columns     []string
	Rows        [][]any
}

// SheetData lists the materialized tables of one (workbook, sheet) in
// registration order.
type SheetData struct {
	Workbook string
	Sheet    string
	Tables   []TableData
}
