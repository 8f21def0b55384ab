package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUCSets(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantKeys []string
		want     map[string]any
	}{
		{
			name:     "single quotes",
			src:      "{'R_S': 'Allregions', 'T_S': ''}",
			wantKeys: []string{"R_S", "T_S"},
			want:     map[string]any{"R_S": "Allregions", "T_S": ""},
		},
		{
			name:     "double quotes and trailing comma",
			src:      `{"R_E": "NI",}`,
			wantKeys: []string{"R_E"},
			want:     map[string]any{"R_E": "NI"},
		},
		{
			name:     "numbers and booleans",
			src:      "{'a': 1, 'b': -2.5, 'c': True, 'd': false}",
			wantKeys: []string{"a", "b", "c", "d"},
			want:     map[string]any{"a": int64(1), "b": -2.5, "c": true, "d": false},
		},
		{
			name: "blank",
			src:  "  ",
		},
		{
			name: "empty mapping",
			src:  "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUCSets(tt.src)
			require.NoError(t, err)
			if tt.wantKeys == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.wantKeys, got.Keys())
			for k, v := range tt.want {
				gv, ok := got.Get(k)
				require.True(t, ok, k)
				assert.Equal(t, v, gv, k)
			}
		})
	}
}

func TestParseUCSets_Rejects(t *testing.T) {
	inputs := []string{
		"__import__('os').system('rm -rf /')",
		"{'a': open('x')}",
		"{'a': b}",
		"{'a': 1 + 2}",
		"{'a': [1, 2]}",
		"{'a': {'b': 1}}",
		"{'a': None}",
		"{1: 'x'}",
		"{'a': 1, 'a': 2}",
		"['a', 'b']",
		"'just a string'",
		"{'a': 'x' if True else 'y'}",
		"{'a': -'x'}",
		"{'a': ",
		"{'a': b'bytes'}",
	}

	for _, src := range inputs {
		t.Run(src, func(t *testing.T) {
			got, err := ParseUCSets(src)
			assert.Error(t, err)
			assert.Nil(t, got)
		})
	}
}
