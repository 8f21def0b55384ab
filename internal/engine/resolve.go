package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/leapstack-labs/vedaprep/internal/loader"
	"github.com/leapstack-labs/vedaprep/internal/registry"
	"github.com/leapstack-labs/vedaprep/internal/resolver"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// Resolution is the outcome of resolving a corpus. Tables that failed to
// resolve or materialize are absent; their errors are in Errors.
type Resolution struct {
	// Documents lists every document processed, in discovery order.
	Documents []string
	Catalog   *registry.Catalog
	// Tables holds the materialized payload of every catalog entry that
	// materialized successfully.
	Tables map[core.TableKey]*core.Table
	// Errors joins every author and source error encountered.
	Errors error
	// Duration is the wall time of the resolution.
	Duration time.Duration
}

// Workbooks returns the resolved workbooks in first-registration order.
func (r *Resolution) Workbooks() []*core.Workbook {
	return r.Catalog.Workbooks
}

// Entries returns the metadata catalog rows in first-registration order.
func (r *Resolution) Entries() []core.CatalogEntry {
	return r.Catalog.Entries
}

// Sheets returns, for every workbook and sheet, the ordered tables with
// their tag, columns and rows. Tables that failed to materialize are skipped.
func (r *Resolution) Sheets() []core.SheetData {
	var out []core.SheetData
	for _, wb := range r.Catalog.Workbooks {
		for _, sheet := range wb.Sheets() {
			st := core.SheetData{Workbook: wb.Name, Sheet: sheet.Name}
			for _, spec := range sheet.Tables {
				tbl, ok := r.Tables[spec.Key()]
				if !ok {
					continue
				}
				st.Tables = append(st.Tables, core.TableData{
					Key:         spec.Key(),
					Tag:         spec.TagName,
					Description: spec.Description,
					UCSets:      spec.UCSets,
					Columns:     tbl.Columns,
					Rows:        tbl.Rows,
				})
			}
			out = append(out, st)
		}
	}
	return out
}

// ResolveCorpus discovers, loads, resolves, registers and materializes every
// document under the config directory.
//
// Author errors (parse, resolution, duplicate key) drop the offending
// document or table; source errors drop only the affected table. Processing
// always continues so that every problem is reported in one pass. The
// returned error is Resolution.Errors, or a discovery failure with a nil
// Resolution.
func (e *Engine) ResolveCorpus(ctx context.Context) (*Resolution, error) {
	start := time.Now()
	e.logger.Info("resolving corpus", "config_dir", e.configDir)

	paths, err := loader.Discover(e.configDir)
	if err != nil {
		return nil, fmt.Errorf("document discovery failed: %w", err)
	}

	reg := registry.New()
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		errs = append(errs, e.registerDocument(reg, path)...)
	}

	catalog := reg.Finalize()
	res := &Resolution{
		Documents: paths,
		Catalog:   catalog,
		Tables:    make(map[core.TableKey]*core.Table, len(catalog.Entries)),
	}

	for _, wb := range catalog.Workbooks {
		for _, spec := range wb.Tables {
			tbl, err := e.data.Materialize(spec.Source)
			if err != nil {
				e.logger.Warn("table failed to materialize", "table", spec.Key().String(), "error", err)
				errs = append(errs, &core.TableError{Key: spec.Key(), Err: err})
				continue
			}
			res.Tables[spec.Key()] = tbl
		}
	}

	res.Errors = errors.Join(errs...)
	res.Duration = time.Since(start)
	e.logger.Info("corpus resolved",
		"documents", len(paths),
		"tables", len(catalog.Entries),
		"workbooks", len(catalog.Workbooks),
		"errors", len(errs),
		"duration_ms", res.Duration.Milliseconds())
	return res, res.Errors
}

// DataFiles returns the existing files referenced through DataLocation by the
// documents that currently resolve, sorted and without duplicates. Documents
// that fail contribute nothing; ResolveCorpus reports them.
func (e *Engine) DataFiles(ctx context.Context) ([]string, error) {
	paths, err := loader.Discover(e.configDir)
	if err != nil {
		return nil, fmt.Errorf("document discovery failed: %w", err)
	}

	quiet := resolver.New(nil)
	seen := make(map[string]bool)
	var files []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := loader.Load(path)
		if err != nil {
			continue
		}
		specs, _ := quiet.Resolve(doc)
		for _, spec := range specs {
			ref, ok := spec.Source.(core.FileRef)
			if !ok {
				continue
			}
			file := e.data.Path(ref)
			if seen[file] {
				continue
			}
			seen[file] = true
			if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
				files = append(files, file)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// registerDocument loads, resolves and registers one document.
func (e *Engine) registerDocument(reg *registry.TableRegistry, path string) []error {
	doc, err := loader.Load(path)
	if err != nil {
		e.logger.Warn("document skipped", "document", path, "error", err)
		return []error{err}
	}

	specs, err := e.resolver.Resolve(doc)
	if err != nil {
		e.logger.Warn("document skipped", "document", path, "error", err)
		return []error{err}
	}

	var errs []error
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			e.logger.Warn("table skipped", "document", path, "table", spec.Key().String(), "error", err)
			errs = append(errs, err)
		}
	}
	e.logger.Debug("document registered", "document", path, "tables", len(specs)-len(errs))
	return errs
}
