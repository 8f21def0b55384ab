// Package fingerprint computes change-detection fingerprints for build inputs
// and outputs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// Mode selects how files are fingerprinted.
type Mode string

// Fingerprint modes.
const (
	ModeHash  Mode = "hash"  // sha256 of content
	ModeMtime Mode = "mtime" // size and modification time
)

// ParseMode validates a mode name. The empty string selects ModeHash.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeHash:
		return ModeHash, nil
	case ModeMtime:
		return ModeMtime, nil
	default:
		return "", fmt.Errorf("unknown fingerprint mode %q (want %q or %q)", s, ModeHash, ModeMtime)
	}
}

// Fingerprinter computes fingerprints in one mode.
type Fingerprinter struct {
	Mode Mode
}

// New creates a Fingerprinter.
func New(mode Mode) *Fingerprinter {
	if mode == "" {
		mode = ModeHash
	}
	return &Fingerprinter{Mode: mode}
}

// File fingerprints a single regular file.
func (f *Fingerprinter) File(path string) (string, error) {
	if f.Mode == ModeMtime {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("stat:%d:%d", info.Size(), info.ModTime().UnixNano()), nil
	}

	file, err := os.Open(path) //nolint:gosec // G304: declared task path
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Files fingerprints every path. A path that does not exist yields a
// *core.MissingSourceError.
func (f *Fingerprinter) Files(paths []string) (core.Fingerprints, error) {
	out := make(core.Fingerprints, len(paths))
	for _, p := range paths {
		fp, err := f.File(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &core.MissingSourceError{Path: p, Err: err}
			}
			return nil, err
		}
		out[p] = fp
	}
	return out, nil
}

// HasMeta reports whether pattern contains glob metacharacters.
func HasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[`)
}

// Expand resolves declared paths into the sorted set of regular files they
// cover: directories are walked recursively and glob patterns are matched.
// Entries that match nothing are returned in missing, in declaration order.
func Expand(declared []string) (files []string, missing []string, err error) {
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, entry := range declared {
		if HasMeta(entry) {
			matches, err := filepath.Glob(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("bad pattern %q: %w", entry, err)
			}
			found := false
			for _, m := range matches {
				n, err := walkFiles(m, add)
				if err != nil {
					return nil, nil, err
				}
				found = found || n > 0
			}
			if !found {
				missing = append(missing, entry)
			}
			continue
		}

		// an empty directory exists but contributes no files
		if _, err := walkFiles(entry, add); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, entry)
				continue
			}
			return nil, nil, err
		}
	}

	sort.Strings(files)
	return files, missing, nil
}

// walkFiles calls add for every regular file at or below root and returns
// how many were found.
func walkFiles(root string, add func(string)) (int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		add(root)
		return 1, nil
	}

	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() {
			add(path)
			count++
		}
		return nil
	})
	return count, err
}

// Covers reports whether path equals root or lies beneath it.
func Covers(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if root == path {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Overlaps reports whether a and b name the same path or one contains the other.
func Overlaps(a, b string) bool {
	return Covers(a, b) || Covers(b, a)
}

// MatchesPattern reports whether a declared input (path or glob) could be
// satisfied by the declared output.
func MatchesPattern(input, output string) bool {
	if !HasMeta(input) {
		return Covers(output, input) || Covers(input, output)
	}
	if ok, _ := filepath.Match(input, filepath.Clean(output)); ok {
		return true
	}
	// a glob below a directory output: compare the static prefix
	prefix := input
	if i := strings.IndexAny(prefix, `*?[`); i >= 0 {
		prefix = filepath.Dir(prefix[:i+1])
	}
	return Covers(output, prefix)
}
