// Package datasource materializes a table's DataSource into rows and columns.
package datasource

import (
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// Resolver materializes data sources. It has no side effects: identical
// sources always yield identical tables.
type Resolver struct {
	// BaseDir anchors relative FileRef paths.
	BaseDir string
}

// New creates a Resolver rooted at baseDir.
func New(baseDir string) *Resolver {
	return &Resolver{BaseDir: baseDir}
}

// Materialize returns the tabular payload of src.
func (r *Resolver) Materialize(src core.DataSource) (*core.Table, error) {
	switch s := src.(type) {
	case core.Inline:
		return FromInline(s.Payload)
	case core.FileRef:
		return ReadDelimited(r.Path(s))
	case nil:
		return nil, &core.SchemaError{Source: "<nil>", Msg: "table has no data source"}
	default:
		return nil, fmt.Errorf("unsupported data source %T", src)
	}
}

// Path returns the filesystem path a FileRef points to.
func (r *Resolver) Path(ref core.FileRef) string {
	if filepath.IsAbs(ref.Path) || r.BaseDir == "" {
		return filepath.Clean(ref.Path)
	}
	return filepath.Join(r.BaseDir, ref.Path)
}
