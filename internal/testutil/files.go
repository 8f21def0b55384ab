package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFiles creates every relative path → content pair under dir,
// creating parent directories as needed.
func WriteFiles(t testing.TB, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}

// ReadFile returns the content of dir/rel, failing the test on error.
func ReadFile(t testing.TB, dir, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel))) //nolint:gosec // test helper
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(b)
}
