// Package loader parses configuration documents into ordered raw trees.
//
// Three syntaxes are supported, chosen by file extension: TOML, YAML and HCL.
// Every mapping in the result is a *core.OrderedMap that preserves
// declaration order; sequences are []any and scalars are string, int64,
// float64 or bool.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// Format identifies a document syntax.
type Format string

// Supported document formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// Document is one parsed configuration document.
type Document struct {
	Path   string
	Format Format
	Root   *core.OrderedMap
}

// FormatForPath returns the document format implied by the file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".hcl":
		return FormatHCL, true
	default:
		return "", false
	}
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from Discover or the caller
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &core.MissingSourceError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(path, content)
}

// Parse parses content using the format implied by path.
func Parse(path string, content []byte) (*Document, error) {
	format, ok := FormatForPath(path)
	if !ok {
		return nil, &core.ParseError{File: path, Msg: fmt.Sprintf("unsupported document extension %q", filepath.Ext(path))}
	}

	var (
		root *core.OrderedMap
		err  error
	)
	switch format {
	case FormatTOML:
		root, err = parseTOML(path, content)
	case FormatYAML:
		root, err = parseYAML(path, content)
	case FormatHCL:
		root, err = parseHCL(path, content)
	}
	if err != nil {
		return nil, err
	}
	return &Document{Path: path, Format: format, Root: root}, nil
}

// Discover walks dir recursively and returns every document path in lexical order.
func Discover(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, &core.MissingSourceError{Path: dir, Err: err}
		}
		return nil, fmt.Errorf("failed to stat config directory: %w", err)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := FormatForPath(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	sort.Strings(paths)
	return paths, nil
}
