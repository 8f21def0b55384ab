// Package export writes a resolution to disk: the metadata catalog and one
// delimited file per table, laid out by workbook and sheet for a renderer.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// CatalogHeader is the header row of the catalog CSV.
var CatalogHeader = []string{"Workbook", "Sheet", "Tag", "Description", "SourceKind", "SourcePath"}

// WriteCatalog writes one CSV row per entry, in order.
func WriteCatalog(w io.Writer, entries []core.CatalogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CatalogHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{e.Workbook, e.Sheet, e.Tag, e.Description, string(e.SourceKind), e.SourcePath}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCatalogFile writes the catalog to path atomically. A .json path gets
// the full entries as JSON; anything else gets CSV.
func WriteCatalogFile(path string, entries []core.CatalogEntry) error {
	var buf bytes.Buffer
	if isJSON(path) {
		if entries == nil {
			entries = []core.CatalogEntry{}
		}
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return err
		}
	} else if err := WriteCatalog(&buf, entries); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}
