// Package watch triggers rebuilds when watched directories change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/vedaprep/internal/fingerprint"
)

// DefaultDebounce is the quiet period after the last event before a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// Config holds watcher configuration.
type Config struct {
	// Paths are watched recursively; files are watched through their directory.
	Paths []string
	// Ignore lists paths (and everything beneath them) whose changes never
	// trigger a rebuild, such as build outputs and the state database.
	Ignore []string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Watcher batches filesystem events and invokes a callback per batch.
type Watcher struct {
	paths    []string
	ignore   []string
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a watcher.
func New(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{paths: cfg.Paths, ignore: cfg.Ignore, debounce: debounce, logger: logger}
}

// Run watches until ctx ends, calling onChange with the sorted changed paths
// of each debounced batch. Callbacks never overlap; events arriving during a
// callback form the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	for _, p := range w.paths {
		if err := w.add(fw, p); err != nil {
			return err
		}
	}
	w.logger.Info("watching for changes", "paths", w.paths, "debounce_ms", w.debounce.Milliseconds())

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.add(fw, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			onChange(ctx, changed)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// add watches path: directories recursively, files through their parent.
func (w *Watcher) add(fw *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		// a missing input may appear later; watch the nearest existing parent
		parent := filepath.Dir(path)
		if parent == path {
			return nil
		}
		return w.add(fw, parent)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fw.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) || (p != path && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, ig := range w.ignore {
		if fingerprint.Covers(ig, path) {
			return true
		}
	}
	base := filepath.Base(path)
	// editor swap files and our own atomic-write temp files
	return strings.HasPrefix(base, ".") && strings.Contains(base, ".tmp.") ||
		strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}
