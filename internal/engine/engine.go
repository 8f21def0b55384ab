// Package engine resolves a corpus of table documents into workbooks and
// wires the resolution into the build pipeline as a builtin task.
package engine

import (
	"log/slog"

	"github.com/leapstack-labs/vedaprep/internal/datasource"
	"github.com/leapstack-labs/vedaprep/internal/resolver"
)

// Engine resolves table documents.
type Engine struct {
	configDir string
	data      *datasource.Resolver
	resolver  *resolver.Resolver
	logger    *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// ConfigDir is the directory walked for table documents.
	ConfigDir string
	// DataDir anchors relative DataLocation paths.
	DataDir string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "config_dir", cfg.ConfigDir, "data_dir", cfg.DataDir)

	return &Engine{
		configDir: cfg.ConfigDir,
		data:      datasource.New(cfg.DataDir),
		resolver:  resolver.New(logger),
		logger:    logger,
	}
}

// ConfigDir returns the directory documents are discovered in.
func (e *Engine) ConfigDir() string {
	return e.configDir
}
