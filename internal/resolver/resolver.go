// Package resolver turns raw configuration documents into canonical table specs.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/vedaprep/internal/loader"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// Reserved keys recognized inside a table entry. Any other key is payload.
const (
	KeyWorkBookName = "WorkBookName"
	KeySheetName    = "SheetName"
	KeyTagName      = "TagName"
	KeyUCSets       = "UCSets"
	KeyDescription  = "Description"
	KeyDataLocation = "DataLocation"
	KeyData         = "Data"
)

var reservedKeys = map[string]bool{
	KeyWorkBookName: true,
	KeySheetName:    true,
	KeyTagName:      true,
	KeyUCSets:       true,
	KeyDescription:  true,
	KeyDataLocation: true,
	KeyData:         true,
}

// IsReserved reports whether key has a fixed meaning inside a table entry.
func IsReserved(key string) bool {
	return reservedKeys[key]
}

// Resolver converts raw document trees into TableSpecs.
// It holds no state between documents and is safe for concurrent use.
type Resolver struct {
	logger *slog.Logger
}

// New creates a Resolver. A nil logger discards output.
func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{logger: logger}
}

// Resolve converts every top-level table of doc into a TableSpec, in
// declaration order.
//
// Errors are author errors: when any table fails, Resolve returns no specs
// for the document and an error joining every failing table.
func (r *Resolver) Resolve(doc *loader.Document) ([]core.TableSpec, error) {
	defaultWorkbook := ""
	if raw, ok := doc.Root.Get(KeyWorkBookName); ok {
		s, isStr := raw.(string)
		if !isStr {
			return nil, &core.ResolutionError{
				Document: doc.Path,
				Field:    KeyWorkBookName,
				Msg:      fmt.Sprintf("must be a string, got %s", describeValue(raw)),
			}
		}
		defaultWorkbook = s
	}

	var (
		specs []core.TableSpec
		errs  []error
	)
	for _, name := range doc.Root.Keys() {
		if name == KeyWorkBookName {
			continue
		}
		raw, _ := doc.Root.Get(name)
		entry, ok := raw.(*core.OrderedMap)
		if !ok {
			errs = append(errs, &core.ResolutionError{
				Document: doc.Path,
				Table:    name,
				Msg:      fmt.Sprintf("top-level entry must be a table, got %s", describeValue(raw)),
			})
			continue
		}

		spec, err := r.resolveTable(doc.Path, name, entry, defaultWorkbook)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs = append(specs, spec)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}

func (r *Resolver) resolveTable(docPath, name string, entry *core.OrderedMap, defaultWorkbook string) (core.TableSpec, error) {
	fail := func(field, msg string, cause error) error {
		return &core.ResolutionError{Document: docPath, Table: name, Field: field, Msg: msg, Err: cause}
	}

	workbook, err := stringField(entry, KeyWorkBookName, defaultWorkbook)
	if err != nil {
		return core.TableSpec{}, fail(KeyWorkBookName, err.Error(), nil)
	}
	if workbook == "" {
		return core.TableSpec{}, fail(KeyWorkBookName, "no workbook: set WorkBookName on the table or the document", nil)
	}

	sheet, err := stringField(entry, KeySheetName, workbook)
	if err != nil {
		return core.TableSpec{}, fail(KeySheetName, err.Error(), nil)
	}
	tag, err := stringField(entry, KeyTagName, name)
	if err != nil {
		return core.TableSpec{}, fail(KeyTagName, err.Error(), nil)
	}
	description, err := stringField(entry, KeyDescription, "")
	if err != nil {
		return core.TableSpec{}, fail(KeyDescription, err.Error(), nil)
	}
	if description == "" {
		r.logger.Warn("table has no Description", "document", docPath, "table", name)
	}

	ucsets, err := resolveUCSets(entry)
	if err != nil {
		return core.TableSpec{}, fail(KeyUCSets, err.Error(), err)
	}

	source, ignored, err := resolveSource(entry)
	if err != nil {
		return core.TableSpec{}, fail(KeyData, err.Error(), nil)
	}
	if len(ignored) > 0 {
		r.logger.Warn("table fields ignored: the table has an explicit data source",
			"document", docPath, "table", name, "fields", ignored)
	}

	return core.TableSpec{
		WorkbookName: workbook,
		TableName:    name,
		SheetName:    sheet,
		TagName:      tag,
		UCSets:       ucsets,
		Description:  description,
		Source:       source,
		Document:     docPath,
	}, nil
}

// resolveSource picks the table's DataSource from the reserved keys present.
//
//	DataLocation only      → FileRef
//	Data only              → Inline(Data)
//	neither                → Inline(all non-reserved keys, as one mapping)
//	both                   → error
//
// With DataLocation or Data present, non-reserved keys are not data; they are
// returned as ignored.
func resolveSource(entry *core.OrderedMap) (source core.DataSource, ignored []string, err error) {
	location, hasLocation := entry.Get(KeyDataLocation)
	data, hasData := entry.Get(KeyData)
	payloadKeys := nonReservedKeys(entry)

	switch {
	case hasLocation && hasData:
		return nil, nil, errors.New("both Data and DataLocation are present; the data source is ambiguous")

	case hasLocation:
		path, ok := location.(string)
		if !ok || path == "" {
			return nil, nil, fmt.Errorf("DataLocation must be a non-empty string, got %s", describeValue(location))
		}
		return core.FileRef{Path: path}, payloadKeys, nil

	case hasData:
		switch payload := data.(type) {
		case *core.OrderedMap:
			return core.Inline{Payload: payload.Clone()}, payloadKeys, nil
		case []any:
			for i, item := range payload {
				if _, ok := item.(*core.OrderedMap); !ok {
					return nil, nil, fmt.Errorf("Data sequence item %d must be a mapping, got %s", i, describeValue(item))
				}
			}
			return core.Inline{Payload: cloneSequence(payload)}, payloadKeys, nil
		default:
			return nil, nil, fmt.Errorf("Data must be a mapping or a sequence of mappings, got %s", describeValue(data))
		}

	default:
		payload := core.NewOrderedMap()
		for _, k := range payloadKeys {
			v, _ := entry.Get(k)
			payload.Set(k, v)
		}
		return core.Inline{Payload: payload.Clone()}, nil, nil
	}
}

func resolveUCSets(entry *core.OrderedMap) (*core.OrderedMap, error) {
	raw, ok := entry.Get(KeyUCSets)
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return ParseUCSets(v)
	case *core.OrderedMap:
		return canonicalUCSets(v)
	default:
		return nil, fmt.Errorf("UCSets must be a mapping or a mapping literal string, got %s", describeValue(raw))
	}
}

func nonReservedKeys(entry *core.OrderedMap) []string {
	var keys []string
	for _, k := range entry.Keys() {
		if !IsReserved(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func stringField(entry *core.OrderedMap, key, fallback string) (string, error) {
	raw, ok := entry.Get(key)
	if !ok {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("must be a string, got %s", describeValue(raw))
	}
	return s, nil
}

func cloneSequence(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item.(*core.OrderedMap).Clone()
	}
	return out
}

func describeValue(v any) string {
	switch val := v.(type) {
	case *core.OrderedMap:
		return "a mapping"
	case []any:
		return "a sequence"
	case string:
		return fmt.Sprintf("string %q", val)
	case nil:
		return "nothing"
	default:
		return fmt.Sprintf("%T %v", v, v)
	}
}
