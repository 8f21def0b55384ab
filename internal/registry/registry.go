// Package registry accumulates table specs from every document of a run into
// workbooks and an ordered metadata catalog.
//
// A Registry is an explicit value: every run (and every test) builds its own,
// so no state leaks between independent resolutions.
package registry

import (
	"sync"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// Catalog is the finalized result of a run's registrations.
type Catalog struct {
	// Workbooks in first-registration order.
	Workbooks []*core.Workbook
	// Entries has one row per table, in first-registration order.
	Entries []core.CatalogEntry
}

// TableRegistry enforces (WorkbookName, TableName) uniqueness across a corpus.
type TableRegistry struct {
	mu sync.RWMutex

	// byKey maps table identity to its position in specs
	byKey map[core.TableKey]int

	// specs in registration order
	specs []core.TableSpec

	// workbookOrder lists workbook names by first registration
	workbookOrder []string
	workbooks     map[string]*core.Workbook
}

// New creates an empty registry.
func New() *TableRegistry {
	return &TableRegistry{
		byKey:     make(map[core.TableKey]int),
		workbooks: make(map[string]*core.Workbook),
	}
}

// Register adds spec. It fails with *core.DuplicateKeyError when the same
// (WorkbookName, TableName) was already registered by any document.
func (r *TableRegistry) Register(spec core.TableSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := spec.Key()
	if i, exists := r.byKey[key]; exists {
		return &core.DuplicateKeyError{
			Key:           key,
			FirstDocument: r.specs[i].Document,
			Document:      spec.Document,
		}
	}

	r.byKey[key] = len(r.specs)
	r.specs = append(r.specs, spec)

	wb, ok := r.workbooks[spec.WorkbookName]
	if !ok {
		wb = &core.Workbook{Name: spec.WorkbookName}
		r.workbooks[spec.WorkbookName] = wb
		r.workbookOrder = append(r.workbookOrder, spec.WorkbookName)
	}
	wb.Tables = append(wb.Tables, spec)
	return nil
}

// Lookup returns the spec registered under key.
func (r *TableRegistry) Lookup(key core.TableKey) (core.TableSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byKey[key]
	if !ok {
		return core.TableSpec{}, false
	}
	return r.specs[i], true
}

// Count returns the number of registered tables.
func (r *TableRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// Finalize returns the workbooks and metadata catalog. The result is a
// snapshot; later registrations do not change it.
func (r *TableRegistry) Finalize() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	catalog := &Catalog{
		Workbooks: make([]*core.Workbook, 0, len(r.workbookOrder)),
		Entries:   make([]core.CatalogEntry, 0, len(r.specs)),
	}
	for _, name := range r.workbookOrder {
		wb := r.workbooks[name]
		tables := make([]core.TableSpec, len(wb.Tables))
		copy(tables, wb.Tables)
		catalog.Workbooks = append(catalog.Workbooks, &core.Workbook{Name: name, Tables: tables})
	}
	for _, spec := range r.specs {
		catalog.Entries = append(catalog.Entries, core.NewCatalogEntry(spec))
	}
	return catalog
}
