package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := map[string]OutputMode{
		"":         ModeAuto,
		"auto":     ModeAuto,
		"TEXT":     ModeText,
		"md":       ModeMarkdown,
		"markdown": ModeMarkdown,
		"json":     ModeJSON,
		"yaml":     ModeAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, Mode(in), "Mode(%q)", in)
	}
}

func TestEffectiveMode(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, ModeText, NewRendererWithTTY(&out, &out, true, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &out, false, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(&out, &out, true, ModeJSON).EffectiveMode())
	assert.False(t, NewRenderer(&out, &out, ModeAuto).IsTTY(), "a buffer is never a terminal")
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"Task", "Status"}, [][]string{{"a|b", "ok"}})
	assert.Equal(t, "| Task | Status |\n| --- | --- |\n| a\\|b | ok |\n", got)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Summary", FormatHeader(2, "Summary"))
	assert.Equal(t, "# x", FormatHeader(0, "x"))
	assert.Equal(t, "- **Tasks:** 3", FormatKeyValue("Tasks", "3"))
	assert.Equal(t, "```csv\na,b\n```", FormatCodeBlock("csv", "a,b\n"))
}

func TestStatusLine_Markdown(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeMarkdown)
	r.StatusLine("executed", "resolve", "forced")
	r.StatusLine("failed", "stage1", "")
	assert.Equal(t, "- **Executed** resolve (forced)\n- **Failed** stage1\n", out.String())
}

func TestRenderer_TextHasNoANSIWithoutTTY(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeText)
	r.Header(1, "Build")
	r.StatusLine("executed", "resolve", "forced")
	r.Table([]string{"A"}, [][]string{{"1"}})
	assert.NotContains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "Executed")
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &out, false, ModeJSON)
	require.NoError(t, r.JSON(CleanOutput{Tasks: []string{"a"}, Removed: []string{}}))
	assert.True(t, strings.HasPrefix(out.String(), "{\n  \"dry_run\": false"))
}
