// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/vedaprep/internal/cli/output"
	roottestutil "github.com/leapstack-labs/vedaprep/internal/testutil"
)

// ProjectFile is the vedaprep.yaml written by SetupTestProject: the builtin
// resolve task followed by a shell task counting catalog lines.
const ProjectFile = `tasks:
  - name: resolve
    builtin: resolve
    inputs: [config, data]
    outputs: [output/catalog.csv, output/tables]
  - name: count
    command: wc -l < output/catalog.csv > output/count.txt
    inputs: [output/catalog.csv]
    outputs: [output/count.txt]
`

// SetupTestProject creates a temporary project with two documents, one
// external data file and a two-task pipeline.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	roottestutil.WriteFiles(t, dir, map[string]string{
		"vedaprep.yaml": ProjectFile,
		"config/settings.toml": `WorkBookName = "SysSettings"

[StartYear]
Description = "First model year"
StartYear = 2023
`,
		"config/demand.yaml": `WorkBookName: Demand
Loads:
  Description: Base year loads
  DataLocation: data/loads.csv
`,
		"data/loads.csv": "Region,Load\nNI,10.5\nSI,7\n",
	})
	return dir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the captured stdout output.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the captured stderr output.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
