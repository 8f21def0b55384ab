package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vedaprep/internal/build"
	"github.com/leapstack-labs/vedaprep/internal/cli/config"
	"github.com/leapstack-labs/vedaprep/internal/cli/output"
	"github.com/leapstack-labs/vedaprep/internal/engine"
	"github.com/leapstack-labs/vedaprep/internal/fingerprint"
	"github.com/leapstack-labs/vedaprep/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())

	eng := engine.New(engine.Config{
		ConfigDir: cfg.ConfigDir,
		DataDir:   cfg.DataDir,
		Logger:    logger,
	})

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// it from the working directory when commands run standalone.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}

// DefaultTasks is the pipeline used when the project declares no tasks:
// resolve the config directory into the catalog and table exports.
func DefaultTasks(cfg *config.Config) []build.TaskDef {
	return []build.TaskDef{{
		Name:    engine.BuiltinResolve,
		Builtin: engine.BuiltinResolve,
		Inputs:  []string{cfg.ConfigDir},
		Outputs: []string{
			filepath.Join(cfg.OutputDir, "catalog.csv"),
			filepath.Join(cfg.OutputDir, "tables"),
		},
	}}
}

// Pipeline assembles the configured pipeline.
func (c *CommandContext) Pipeline() (*build.Pipeline, error) {
	defs := c.Cfg.Tasks
	if len(defs) == 0 {
		defs = DefaultTasks(c.Cfg)
	}
	p, err := c.Engine.Pipeline(c.Cfg.ProjectRoot, defs)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	return p, nil
}

// OpenStore opens the state database, creating it and its schema as needed.
// The caller closes it.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	store := state.NewSQLiteStore()
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return store, nil
}

// Orchestrator creates an orchestrator over store using the configured
// fingerprint mode and parallelism.
func (c *CommandContext) Orchestrator(store *state.SQLiteStore) *build.Orchestrator {
	return build.New(build.Config{
		Store:         store,
		Fingerprinter: fingerprint.New(c.Cfg.FingerprintMode()),
		Parallel:      c.Cfg.Parallel,
		Logger:        c.Logger,
	})
}

// splitErrors flattens an errors.Join tree one level.
func splitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// reportError summarizes a failed report as a single error naming every
// failed and blocked task.
func reportError(report *build.Report) error {
	if report.ExitCode() == 0 {
		return nil
	}
	var names []string
	for _, res := range report.Results {
		if res.Err != nil {
			names = append(names, res.Task)
		}
	}
	return fmt.Errorf("build failed: %s: %w", strings.Join(names, ", "), report.Err())
}
