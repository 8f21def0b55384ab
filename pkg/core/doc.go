// Package core defines the shared language of the vedaprep system.
//
// This package contains:
//   - Domain entities (TableSpec, DataSource, Table, Workbook, CatalogEntry)
//   - The error taxonomy shared by every stage (ParseError, ResolutionError, ...)
//   - Build-state entities and the StateStore interface
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
