package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vedaprep/internal/testutil"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHash, m)

	m, err = ParseMode("MTIME")
	require.NoError(t, err)
	assert.Equal(t, ModeMtime, m)

	_, err = ParseMode("md5")
	assert.Error(t, err)
}

func TestFingerprinter_Hash(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{"a.txt": "hello", "b.txt": "hello"})
	f := New(ModeHash)

	a, err := f.File(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	b, err := f.File(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "sha256:"))
	assert.Equal(t, a, b, "same content, same fingerprint")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world"), 0o600))
	b2, err := f.File(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
	assert.NotEqual(t, b, b2)
}

func TestFingerprinter_Mtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	testutil.WriteFiles(t, dir, map[string]string{"a.txt": "hello"})
	f := New(ModeMtime)

	first, err := f.File(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "stat:5:"))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	second, err := f.File(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestFingerprinter_FilesMissing(t *testing.T) {
	_, err := New(ModeHash).Files([]string{filepath.Join(t.TempDir(), "nope")})
	assert.ErrorIs(t, err, core.ErrMissingSource)
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"config/a.toml":     "",
		"config/sub/b.toml": "",
		"data/x.csv":        "",
		"data/y.csv":        "",
		"data/z.txt":        "",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o750))

	files, missing, err := Expand([]string{
		filepath.Join(dir, "config"),
		filepath.Join(dir, "data", "*.csv"),
		filepath.Join(dir, "data", "x.csv"), // duplicate via glob
		filepath.Join(dir, "empty"),
		filepath.Join(dir, "gone.csv"),
		filepath.Join(dir, "nothing", "*.csv"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "config", "a.toml"),
		filepath.Join(dir, "config", "sub", "b.toml"),
		filepath.Join(dir, "data", "x.csv"),
		filepath.Join(dir, "data", "y.csv"),
	}, files)
	assert.Equal(t, []string{
		filepath.Join(dir, "gone.csv"),
		filepath.Join(dir, "nothing", "*.csv"),
	}, missing)
}

func TestCoversAndOverlaps(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"out", "out", true},
		{"out", "out/a.csv", true},
		{"out", "output/a.csv", false},
		{"out/a.csv", "out", false},
		{"out", "../out", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Covers(filepath.FromSlash(tt.root), filepath.FromSlash(tt.path)), "%s covers %s", tt.root, tt.path)
	}

	assert.True(t, Overlaps("out/a.csv", "out"))
	assert.False(t, Overlaps("out/a", "out/b"))
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, MatchesPattern("out/a.csv", "out/a.csv"))
	assert.True(t, MatchesPattern("out/a.csv", "out"))
	assert.True(t, MatchesPattern("out", "out/a.csv"))
	assert.True(t, MatchesPattern("out/*.csv", "out/a.csv"))
	assert.True(t, MatchesPattern("out/sub/*.csv", "out"))
	assert.False(t, MatchesPattern("out/*.csv", "other/a.csv"))
}
