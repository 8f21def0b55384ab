package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// LayoutFile is written at the root of every workbook directory.
const LayoutFile = "layout.json"

// Layout describes one workbook directory: its sheets and, per sheet, the
// tables in the order a renderer should stack them.
type Layout struct {
	Workbook string        `json:"workbook"`
	Sheets   []SheetLayout `json:"sheets"`
}

// SheetLayout lists the tables of one sheet.
type SheetLayout struct {
	Name   string        `json:"name"`
	Dir    string        `json:"dir"`
	Tables []TableLayout `json:"tables"`
}

// TableLayout points at one table file.
type TableLayout struct {
	Tag         string           `json:"tag"`
	Table       string           `json:"table"`
	File        string           `json:"file"`
	Description string           `json:"description,omitempty"`
	UCSets      *core.OrderedMap `json:"uc_sets,omitempty"`
	Columns     []string         `json:"columns"`
	Rows        int              `json:"rows"`
}

// WriteTables writes every sheet's tables to
// <dir>/<Workbook>/<Sheet>/<NN>_<Tag>.csv plus a layout.json per workbook,
// and returns the layouts. Each workbook directory is assembled in a temp
// directory and swapped in whole. Workbook directories from earlier runs
// that no longer exist are removed. Two workbooks, or two sheets of one
// workbook, whose names map to the same directory are an error.
func WriteTables(dir string, sheets []core.SheetData) ([]Layout, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	var order []string
	byWorkbook := make(map[string][]core.SheetData)
	for _, s := range sheets {
		if _, ok := byWorkbook[s.Workbook]; !ok {
			order = append(order, s.Workbook)
		}
		byWorkbook[s.Workbook] = append(byWorkbook[s.Workbook], s)
	}
	if err := checkNames("workbooks", order); err != nil {
		return nil, err
	}

	layouts := make([]Layout, 0, len(order))
	keep := make(map[string]bool, len(order))
	for _, wb := range order {
		layout, err := writeWorkbook(dir, wb, byWorkbook[wb])
		if err != nil {
			return nil, fmt.Errorf("workbook %s: %w", wb, err)
		}
		keep[SafeName(wb)] = true
		layouts = append(layouts, layout)
	}

	if err := pruneWorkbooks(dir, keep); err != nil {
		return nil, err
	}
	return layouts, nil
}

func writeWorkbook(dir, workbook string, sheets []core.SheetData) (Layout, error) {
	layout := Layout{Workbook: workbook}
	names := make([]string, len(sheets))
	for i, sheet := range sheets {
		names[i] = sheet.Sheet
	}
	if err := checkNames("sheets", names); err != nil {
		return layout, err
	}

	tmp, err := os.MkdirTemp(dir, "."+SafeName(workbook)+".tmp.*")
	if err != nil {
		return layout, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	for _, sheet := range sheets {
		sl := SheetLayout{Name: sheet.Sheet, Dir: SafeName(sheet.Sheet)}
		for i, tbl := range sheet.Tables {
			file := fmt.Sprintf("%02d_%s.csv", i+1, SafeName(tbl.Tag))
			data, err := encodeTable(tbl)
			if err != nil {
				return layout, fmt.Errorf("table %s: %w", tbl.Key, err)
			}
			if err := writeFileAtomic(filepath.Join(tmp, sl.Dir, file), data); err != nil {
				return layout, err
			}
			sl.Tables = append(sl.Tables, TableLayout{
				Tag:         tbl.Tag,
				Table:       tbl.Key.Table,
				File:        sl.Dir + "/" + file,
				Description: tbl.Description,
				UCSets:      tbl.UCSets,
				Columns:     tbl.Columns,
				Rows:        len(tbl.Rows),
			})
		}
		layout.Sheets = append(layout.Sheets, sl)
	}

	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return layout, err
	}
	if err := writeFileAtomic(filepath.Join(tmp, LayoutFile), append(data, '\n')); err != nil {
		return layout, err
	}

	if err := os.Chmod(tmp, 0o755); err != nil {
		return layout, err
	}
	final := filepath.Join(dir, SafeName(workbook))
	if err := os.RemoveAll(final); err != nil {
		return layout, err
	}
	if err := os.Rename(tmp, final); err != nil {
		return layout, err
	}
	committed = true
	return layout, syncDir(dir)
}

// pruneWorkbooks removes workbook directories (those holding a layout file)
// that are not in keep.
func pruneWorkbooks(dir string, keep map[string]bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || keep[e.Name()] {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(path, LayoutFile)); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

func encodeTable(tbl core.TableData) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(tbl.Columns); err != nil {
		return nil, err
	}
	row := make([]string, len(tbl.Columns))
	for _, r := range tbl.Rows {
		for i := range row {
			row[i] = ""
			if i < len(r) {
				row[i] = FormatCell(r[i])
			}
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

// FormatCell renders a cell value as text without losing precision.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// checkNames fails when two distinct names map to the same SafeName.
func checkNames(kind string, names []string) error {
	owner := make(map[string]string, len(names))
	for _, name := range names {
		safe := SafeName(name)
		if prev, ok := owner[safe]; ok && prev != name {
			return fmt.Errorf("%s %q and %q both export to directory %q", kind, prev, name, safe)
		}
		owner[safe] = name
	}
	return nil
}

// SafeName makes a workbook, sheet or tag usable as a single path element.
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
