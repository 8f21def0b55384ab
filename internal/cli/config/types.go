// Package config loads vedaprep project configuration.
//
// Values are layered with koanf: built-in defaults, then the project file
// (vedaprep.yaml), then VEDAPREP_* environment variables, then command-line
// flags that were explicitly set.
package config

import "github.com/leapstack-labs/vedaprep/internal/build"

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot anchors every relative path. It is inferred, never loaded.
	ProjectRoot  string          `koanf:"-"`
	ConfigDir    string          `koanf:"config_dir"`
	DataDir      string          `koanf:"data_dir"`
	OutputDir    string          `koanf:"output_dir"`
	StatePath    string          `koanf:"state_path"`
	Fingerprint  string          `koanf:"fingerprint"`
	Parallel     int             `koanf:"parallel"`
	Verbose      bool            `koanf:"verbose"`
	OutputFormat string          `koanf:"output"`
	Tasks        []build.TaskDef `koanf:"tasks"`
}

// Default configuration values.
const (
	DefaultConfigDir   = "config"
	DefaultDataDir     = "."
	DefaultOutputDir   = "output"
	DefaultStateFile   = ".vedaprep/state.db"
	DefaultFingerprint = "hash"
	DefaultParallel    = 1
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// ConfigFileNames are the project file names searched for, in order.
var ConfigFileNames = []string{"vedaprep.yaml", "vedaprep.yml"}

// EnvPrefix prefixes environment variables that override configuration.
const EnvPrefix = "VEDAPREP_"
