package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vedaprep/internal/testutil"
	"github.com/leapstack-labs/vedaprep/pkg/core"
)

func TestWriteCatalog(t *testing.T) {
	entries := []core.CatalogEntry{
		{Workbook: "VT_TEST", Sheet: "VT_TEST", Tag: "StartYear", SourceKind: core.SourceInline, SourcePath: core.InlineLocation},
		{Workbook: "BY_Trans", Sheet: "Fuels", Tag: "FI_T", Description: "fuel shares, road", SourceKind: core.SourceFile, SourcePath: "data/fuels.csv"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCatalog(&buf, entries))

	want := "Workbook,Sheet,Tag,Description,SourceKind,SourcePath\n" +
		"VT_TEST,VT_TEST,StartYear,,Inline,inline\n" +
		"BY_Trans,Fuels,FI_T,\"fuel shares, road\",File,data/fuels.csv\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCatalogFile(t *testing.T) {
	dir := t.TempDir()
	entries := []core.CatalogEntry{{Workbook: "W", Sheet: "W", Tag: "T", Table: "T", SourceKind: core.SourceInline, SourcePath: "inline"}}

	require.NoError(t, WriteCatalogFile(filepath.Join(dir, "out", "catalog.csv"), entries))
	assert.Contains(t, testutil.ReadFile(t, dir, "out/catalog.csv"), "W,W,T,,Inline,inline")

	require.NoError(t, WriteCatalogFile(filepath.Join(dir, "out", "catalog.json"), entries))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(testutil.ReadFile(t, dir, "out/catalog.json")), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "T", decoded[0]["table"])

	// no temp files left behind
	files, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func sampleSheets() []core.SheetData {
	uc := core.NewOrderedMap()
	uc.Set("R_S", "Allregions")
	return []core.SheetData{
		{
			Workbook: "VT_TEST",
			Sheet:    "VT_TEST",
			Tables: []core.TableData{
				{Key: core.TableKey{Workbook: "VT_TEST", Table: "A"}, Tag: "TFM_INS", UCSets: uc, Columns: []string{"Year", "Value"}, Rows: [][]any{{int64(2023), 1.5}, {int64(2024), "x"}}},
				{Key: core.TableKey{Workbook: "VT_TEST", Table: "B"}, Tag: "TFM_INS", Columns: []string{"Flag"}, Rows: [][]any{{true}}},
			},
		},
		{
			Workbook: "VT_TEST",
			Sheet:    "Other/Sheet",
			Tables: []core.TableData{
				{Key: core.TableKey{Workbook: "VT_TEST", Table: "C"}, Tag: "StartYear", Columns: []string{"StartYear"}, Rows: [][]any{{int64(2023)}}},
			},
		},
	}
}

func TestWriteTables(t *testing.T) {
	dir := t.TempDir()

	layouts, err := WriteTables(dir, sampleSheets())
	require.NoError(t, err)
	require.Len(t, layouts, 1)

	assert.Equal(t, "Year,Value\n2023,1.5\n2024,x\n", testutil.ReadFile(t, dir, "VT_TEST/VT_TEST/01_TFM_INS.csv"))
	assert.Equal(t, "Flag\ntrue\n", testutil.ReadFile(t, dir, "VT_TEST/VT_TEST/02_TFM_INS.csv"))
	assert.Equal(t, "StartYear\n2023\n", testutil.ReadFile(t, dir, "VT_TEST/Other_Sheet/01_StartYear.csv"))

	var layout Layout
	require.NoError(t, json.Unmarshal([]byte(testutil.ReadFile(t, dir, "VT_TEST/layout.json")), &layout))
	assert.Equal(t, "VT_TEST", layout.Workbook)
	require.Len(t, layout.Sheets, 2)
	assert.Equal(t, "Other/Sheet", layout.Sheets[1].Name)
	assert.Equal(t, "VT_TEST/01_TFM_INS.csv", layout.Sheets[0].Tables[0].File)
	assert.Equal(t, "A", layout.Sheets[0].Tables[0].Table)
	assert.Equal(t, 2, layout.Sheets[0].Tables[0].Rows)
}

func TestWriteTables_ReplacesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteTables(dir, sampleSheets())
	require.NoError(t, err)
	testutil.WriteFiles(t, dir, map[string]string{"notes/readme.txt": "keep me"})

	next := []core.SheetData{{
		Workbook: "BY_Trans",
		Sheet:    "BY_Trans",
		Tables:   []core.TableData{{Key: core.TableKey{Workbook: "BY_Trans", Table: "X"}, Tag: "FI_T", Columns: []string{"a"}}},
	}}
	_, err = WriteTables(dir, next)
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(dir, "VT_TEST"))
	assert.FileExists(t, filepath.Join(dir, "BY_Trans", "BY_Trans", "01_FI_T.csv"))
	assert.FileExists(t, filepath.Join(dir, "notes", "readme.txt"))
}

func TestWriteTables_NameCollisions(t *testing.T) {
	table := func(wb string) []core.TableData {
		return []core.TableData{{Key: core.TableKey{Workbook: wb, Table: "X"}, Tag: "FI_T", Columns: []string{"a"}}}
	}

	t.Run("workbooks", func(t *testing.T) {
		dir := t.TempDir()
		_, err := WriteTables(dir, sampleSheets())
		require.NoError(t, err)

		_, err = WriteTables(dir, []core.SheetData{
			{Workbook: "A/B", Sheet: "S", Tables: table("A/B")},
			{Workbook: "A_B", Sheet: "S", Tables: table("A_B")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `workbooks "A/B" and "A_B" both export to directory "A_B"`)
		// nothing was replaced or pruned
		assert.NoDirExists(t, filepath.Join(dir, "A_B"))
		assert.FileExists(t, filepath.Join(dir, "VT_TEST", "VT_TEST", "01_TFM_INS.csv"))
	})

	t.Run("sheets", func(t *testing.T) {
		dir := t.TempDir()
		_, err := WriteTables(dir, []core.SheetData{
			{Workbook: "W", Sheet: "S/1", Tables: table("W")},
			{Workbook: "W", Sheet: "S_1", Tables: table("W")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `workbook W: sheets "S/1" and "S_1" both export to directory "S_1"`)
		assert.NoDirExists(t, filepath.Join(dir, "W"))
	})
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{int64(-42), "-42"},
		{0.1, "0.1"},
		{1e21, "1e+21"},
		{123456789.123456789, "1.2345678912345679e+08"},
		{false, "false"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCell(tt.in), "FormatCell(%v)", tt.in)
	}
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "VT_TEST", SafeName("VT_TEST"))
	assert.Equal(t, "a_b_c", SafeName("a/b\\c"))
	assert.Equal(t, "_", SafeName(".."))
	assert.Equal(t, "_", SafeName("  "))
}
