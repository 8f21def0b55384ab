package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vedaprep/internal/testutil"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

func newTestEngine(t *testing.T, files map[string]string) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteFiles(t, root, files)
	return New(Config{
		ConfigDir: filepath.Join(root, "config"),
		DataDir:   root,
		Logger:    testutil.NewTestLogger(t),
	}), root
}

func TestResolveCorpus_SingleDocument(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"config/vt_test.toml": `
WorkBookName = "VT_TEST"

[StartYear]
StartYear = 2023
`,
	})

	res, err := e.ResolveCorpus(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Workbooks(), 1)
	wb := res.Workbooks()[0]
	assert.Equal(t, "VT_TEST", wb.Name)
	sheets := wb.Sheets()
	require.Len(t, sheets, 1)
	assert.Equal(t, "VT_TEST", sheets[0].Name)
	require.Len(t, sheets[0].Tables, 1)
	assert.Equal(t, "StartYear", sheets[0].Tables[0].TagName)

	require.Len(t, res.Entries(), 1)
	entry := res.Entries()[0]
	assert.Equal(t, core.SourceInline, entry.SourceKind)
	assert.Equal(t, "inline", entry.SourcePath)

	tbl := res.Tables[core.TableKey{Workbook: "VT_TEST", Table: "StartYear"}]
	require.NotNil(t, tbl)
	assert.Equal(t, []string{"StartYear"}, tbl.Columns)
	require.Equal(t, 1, tbl.NumRows())
	row, err := tbl.Record(0)
	require.NoError(t, err)
	v, _ := row.Get("StartYear")
	assert.Equal(t, int64(2023), v)
}

func TestResolveCorpus_MergesDocumentsIntoOneWorkbook(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"config/a.toml": `
WorkBookName = "VT_TEST"

[A]
TagName = "TagA"
Value = 1
`,
		"config/b.yaml": `
WorkBookName: VT_TEST
B:
  TagName: TagB
  Value: 2
`,
	})

	res, err := e.ResolveCorpus(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Workbooks(), 1)
	sheets := res.Sheets()
	require.Len(t, sheets, 1)
	assert.Equal(t, "VT_TEST", sheets[0].Workbook)
	require.Len(t, sheets[0].Tables, 2)
	assert.Equal(t, "TagA", sheets[0].Tables[0].Tag)
	assert.Equal(t, "TagB", sheets[0].Tables[1].Tag)
	assert.Equal(t, [][]any{{int64(2)}}, sheets[0].Tables[1].Rows)
	assert.Len(t, res.Entries(), 2)
}

func TestResolveCorpus_Idempotent(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"config/one.toml": `
WorkBookName = "W"

[T1]
UCSets = "{'R_S': 'Allregions', 'T_S': ''}"
Description = "first"
Data.Region = ["NI", "SI"]
Data.Value = [1.5, 2]
`,
		"config/nested/two.hcl": `
WorkBookName = "W"

T2 {
  SheetName = "Other"
  DataLocation = "data/t2.csv"
}
`,
		"data/t2.csv": "Year,Value\n2023,0.1\n",
	})

	first, err := e.ResolveCorpus(context.Background())
	require.NoError(t, err)
	second, err := e.ResolveCorpus(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(Resolution{}, "Duration")); diff != "" {
		t.Errorf("resolution not idempotent (-first +second):\n%s", diff)
	}

	tbl := first.Tables[core.TableKey{Workbook: "W", Table: "T2"}]
	require.NotNil(t, tbl)
	assert.Equal(t, [][]any{{"2023", "0.1"}}, tbl.Rows)
}

func TestResolveCorpus_ReportsEveryProblem(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"config/01_good.toml": `
WorkBookName = "W"

[Good]
Value = 1

[MissingFile]
DataLocation = "data/absent.csv"

[EmptyFile]
DataLocation = "data/empty.csv"
`,
		"config/02_dup.toml": `
WorkBookName = "W"

[Good]
Value = 2

[Fresh]
Value = 3
`,
		"config/03_broken.yaml": "WorkBookName: [unclosed\n",
		"config/04_ambiguous.toml": `
WorkBookName = "W"

[Both]
DataLocation = "data/x.csv"
Data.Value = [1]
`,
		"data/empty.csv": "",
	})

	res, err := e.ResolveCorpus(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, err, res.Errors)

	assert.True(t, errors.Is(err, core.ErrDuplicateKey))
	assert.True(t, errors.Is(err, core.ErrParse))
	assert.True(t, errors.Is(err, core.ErrResolution))
	assert.True(t, errors.Is(err, core.ErrMissingSource))
	assert.True(t, errors.Is(err, core.ErrSchema))

	var dup *core.DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Good", dup.Key.Table)
	assert.Contains(t, dup.FirstDocument, "01_good.toml")
	assert.Contains(t, dup.Document, "02_dup.toml")

	// unaffected tables still resolve
	var tables []string
	for _, entry := range res.Entries() {
		tables = append(tables, entry.Table)
	}
	assert.Equal(t, []string{"Good", "MissingFile", "EmptyFile", "Fresh"}, tables)
	assert.Contains(t, res.Tables, core.TableKey{Workbook: "W", Table: "Good"})
	assert.Contains(t, res.Tables, core.TableKey{Workbook: "W", Table: "Fresh"})
	assert.NotContains(t, res.Tables, core.TableKey{Workbook: "W", Table: "MissingFile"})

	var tableErr *core.TableError
	require.True(t, errors.As(err, &tableErr))
	assert.Equal(t, "MissingFile", tableErr.Key.Table)

	// sheets skip tables that failed to materialize
	require.Len(t, res.Sheets(), 1)
	assert.Len(t, res.Sheets()[0].Tables, 2)
}

func TestResolveCorpus_MissingConfigDir(t *testing.T) {
	e := New(Config{ConfigDir: filepath.Join(t.TempDir(), "nope")})
	res, err := e.ResolveCorpus(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, core.ErrMissingSource))
}

func TestResolveCorpus_Cancelled(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"config/a.toml": "WorkBookName = \"W\"\n[A]\nV = 1\n",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.ResolveCorpus(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
