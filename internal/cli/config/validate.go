package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/leapstack-labs/vedaprep/internal/cli/output"
	"github.com/leapstack-labs/vedaprep/internal/fingerprint"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return fmt.Errorf("config_dir is required")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if _, err := fingerprint.ParseMode(c.Fingerprint); err != nil {
		return fmt.Errorf("invalid fingerprint setting: %w", err)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	format := strings.ToLower(c.OutputFormat)
	if format != "" && format != "md" && !slices.Contains(output.ValidModes(), format) {
		return fmt.Errorf("invalid output format %q (want one of %s)", c.OutputFormat, strings.Join(output.ValidModes(), ", "))
	}
	return nil
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	info, err := os.Stat(c.ConfigDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("config directory does not exist: %s\nHint: Create the directory or use --config-dir to specify a different path", c.ConfigDir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("config directory is not a directory: %s", c.ConfigDir)
	}
	return nil
}

// FingerprintMode returns the parsed fingerprint mode.
func (c *Config) FingerprintMode() fingerprint.Mode {
	mode, err := fingerprint.ParseMode(c.Fingerprint)
	if err != nil {
		return fingerprint.ModeHash
	}
	return mode
}
