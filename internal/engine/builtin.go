package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/vedaprep/internal/build"
	"github.com/leapstack-labs/vedaprep/internal/export"
)

// BuiltinResolve is the builtin action name for corpus resolution.
const BuiltinResolve = "resolve"

// resolveActionVersion changes whenever the export format changes, forcing
// resolve tasks to rerun.
const resolveActionVersion = "1"

// ResolveAction returns the builtin action that resolves the corpus and
// writes it to the task's declared outputs: a path ending in .csv or .json
// receives the catalog, any other path is a directory receiving the tables.
// The task fails when any document or table fails to resolve. Every file the
// corpus references through DataLocation is tracked as an input.
func (e *Engine) ResolveAction() build.Action {
	return &build.FuncAction{
		Name:    BuiltinResolve,
		Version: resolveActionVersion,
		Discover: func(ctx context.Context, _ *build.Task) ([]string, error) {
			return e.DataFiles(ctx)
		},
		Fn: func(ctx context.Context, t *build.Task) error {
			if len(t.Outputs) == 0 {
				return fmt.Errorf("builtin %s needs at least one output", BuiltinResolve)
			}
			res, err := e.ResolveCorpus(ctx)
			if err != nil {
				return err
			}
			return Export(res, t.Outputs)
		},
	}
}

// Export writes res to each output path, choosing catalog or table layout by
// extension.
func Export(res *Resolution, outputs []string) error {
	for _, out := range outputs {
		switch strings.ToLower(filepath.Ext(out)) {
		case ".csv", ".json":
			if err := export.WriteCatalogFile(out, res.Entries()); err != nil {
				return fmt.Errorf("failed to write catalog %s: %w", out, err)
			}
		default:
			if _, err := export.WriteTables(out, res.Sheets()); err != nil {
				return fmt.Errorf("failed to write tables to %s: %w", out, err)
			}
		}
	}
	return nil
}

// Builtins returns the builtin actions this engine provides.
func (e *Engine) Builtins() build.Builtins {
	return build.Builtins{BuiltinResolve: e.ResolveAction()}
}

// Pipeline resolves task definitions against root and assembles the build
// graph, with this engine's builtins available.
func (e *Engine) Pipeline(root string, defs []build.TaskDef) (*build.Pipeline, error) {
	tasks, err := build.FromDefs(root, defs, e.Builtins())
	if err != nil {
		return nil, err
	}
	return build.NewPipeline(root, tasks)
}
