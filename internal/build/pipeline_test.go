package build

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vedaprep/internal/dag"
)

func noop() Action {
	return &FuncAction{Name: "noop", Version: "1", Fn: func(context.Context, *Task) error { return nil }}
}

func task(root, name string, inputs, outputs []string, after ...string) *Task {
	return &Task{
		Name:    name,
		Inputs:  resolvePaths(root, inputs),
		Outputs: resolvePaths(root, outputs),
		After:   after,
		Dir:     root,
		Action:  noop(),
	}
}

func TestNewPipeline_Edges(t *testing.T) {
	root := t.TempDir()
	p, err := NewPipeline(root, []*Task{
		task(root, "extract", []string{"raw/a.csv"}, []string{"stage/extract"}),
		task(root, "transform", []string{"stage/extract/part.csv"}, []string{"stage/transform.csv"}),
		task(root, "report", []string{"stage/*.csv"}, []string{"out/report.csv"}),
		task(root, "publish", nil, []string{"out/published"}, "report"),
		task(root, "lint", []string{"raw"}, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"extract"}, p.Upstream("transform"))
	assert.Equal(t, []string{"transform"}, p.Upstream("report"))
	assert.Equal(t, []string{"report"}, p.Upstream("publish"))
	assert.Empty(t, p.Upstream("lint"))
	assert.Equal(t, []string{"transform"}, p.Downstream("extract"))
	assert.Equal(t, 3, p.EdgeCount())

	levels, err := p.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"extract", "lint"}, {"transform"}, {"report"}, {"publish"}}, levels)
}

func TestNewPipeline_Errors(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		tasks   []*Task
		wantErr string
		isCycle bool
	}{
		{
			name: "duplicate name",
			tasks: []*Task{
				task(root, "a", nil, []string{"x"}),
				task(root, "a", nil, []string{"y"}),
			},
			wantErr: `duplicate task name "a"`,
		},
		{
			name: "unknown after",
			tasks: []*Task{
				task(root, "a", nil, []string{"x"}, "ghost"),
			},
			wantErr: `unknown task "ghost"`,
		},
		{
			name: "overlapping outputs",
			tasks: []*Task{
				task(root, "a", nil, []string{"out"}),
				task(root, "b", nil, []string{"out/b.csv"}),
			},
			wantErr: "overlapping outputs out and out/b.csv",
		},
		{
			name: "glob output",
			tasks: []*Task{
				task(root, "a", nil, []string{"out/*.csv"}),
			},
			wantErr: "must not be a pattern",
		},
		{
			name: "cycle through files",
			tasks: []*Task{
				task(root, "a", []string{"b.out"}, []string{"a.out"}),
				task(root, "b", []string{"a.out"}, []string{"b.out"}),
			},
			isCycle: true,
		},
		{
			name: "cycle through after",
			tasks: []*Task{
				task(root, "a", nil, nil, "b"),
				task(root, "b", nil, nil, "a"),
			},
			isCycle: true,
		},
		{
			name: "task reads its own output",
			tasks: []*Task{
				task(root, "a", []string{"data.csv"}, []string{"data.csv"}),
			},
			wantErr: "reads its own output",
			isCycle: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPipeline(root, tt.tasks)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			if tt.isCycle {
				assert.True(t, errors.Is(err, dag.ErrCycle), "expected cycle error, got %v", err)
			}
		})
	}
}

func TestPipeline_Select(t *testing.T) {
	root := t.TempDir()
	p, err := NewPipeline(root, []*Task{
		task(root, "a", nil, []string{"a.out"}),
		task(root, "b", []string{"a.out"}, []string{"b.out"}),
		task(root, "c", []string{"b.out"}, []string{"c.out"}),
		task(root, "d", nil, []string{"d.out"}),
	})
	require.NoError(t, err)

	sub, err := p.Select([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sub.Names())

	all, err := p.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all.Names(), 4)

	_, err = p.Select([]string{"zzz"})
	assert.Error(t, err)
}

func TestPipeline_Dependents(t *testing.T) {
	root := t.TempDir()
	p, err := NewPipeline(root, []*Task{
		task(root, "a", nil, []string{"a.out"}),
		task(root, "b", []string{"a.out"}, []string{"b.out"}),
		task(root, "c", []string{"b.out"}, []string{"c.out"}),
		task(root, "d", nil, []string{"d.out"}, "b"),
	})
	require.NoError(t, err)

	sub, err := p.Dependents([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, sub.Names())
	assert.Equal(t, 2, sub.EdgeCount())

	all, err := p.Dependents(nil)
	require.NoError(t, err)
	assert.Len(t, all.Names(), 4)

	_, err = p.Dependents([]string{"zzz"})
	assert.Error(t, err)
}

func TestPipeline_Rel(t *testing.T) {
	root := t.TempDir()
	p, err := NewPipeline(root, nil)
	require.NoError(t, err)

	assert.Equal(t, "out/a.csv", p.Rel(filepath.Join(root, "out", "a.csv")))
	outside := filepath.Join(filepath.Dir(root), "elsewhere.csv")
	assert.Equal(t, filepath.ToSlash(outside), p.Rel(outside))
}

func TestFromDefs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("VEDAPREP_TEST_TOOL", "python3")

	builtins := Builtins{"resolve": noop()}
	tasks, err := FromDefs(root, []TaskDef{
		{
			Name:    "convert",
			Command: "${VEDAPREP_TEST_TOOL} convert.py --year ${YEAR}",
			Inputs:  []string{"raw/a.csv", "", "/abs/b.csv"},
			Outputs: []string{"out"},
			Dir:     "scripts",
			Env:     map[string]string{"YEAR": "2023"},
		},
		{Name: "resolve", Builtin: "resolve", After: []string{"convert"}},
	}, builtins)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	convert := tasks[0]
	cmd, ok := convert.Action.(*CommandAction)
	require.True(t, ok)
	assert.Equal(t, "python3 convert.py --year 2023", cmd.Command)
	assert.Equal(t, []string{filepath.Join(root, "raw", "a.csv"), "/abs/b.csv"}, convert.Inputs)
	assert.Equal(t, filepath.Join(root, "scripts"), convert.Dir)
	assert.Equal(t, root, tasks[1].Dir)
	assert.Equal(t, []string{"convert"}, tasks[1].After)

	errCases := []struct {
		name string
		def  TaskDef
		want string
	}{
		{"no name", TaskDef{Command: "true"}, "name is required"},
		{"no action", TaskDef{Name: "x"}, "either command or builtin"},
		{"both actions", TaskDef{Name: "x", Command: "true", Builtin: "resolve"}, "mutually exclusive"},
		{"unknown builtin", TaskDef{Name: "x", Builtin: "nope"}, "unknown builtin"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromDefs(root, []TaskDef{tc.def}, builtins)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestTask_Signature(t *testing.T) {
	base := &Task{Name: "a", Dir: "/p", Action: &CommandAction{Command: "make"}}
	same := &Task{Name: "a", Dir: "/p", Action: &CommandAction{Command: "make"}}
	assert.Equal(t, base.Signature(), same.Signature())

	changed := []*Task{
		{Name: "a", Dir: "/p", Action: &CommandAction{Command: "make all"}},
		{Name: "a", Dir: "/q", Action: &CommandAction{Command: "make"}},
		{Name: "a", Dir: "/p", Env: map[string]string{"X": "1"}, Action: &CommandAction{Command: "make"}},
		{Name: "a", Dir: "/p", Action: &FuncAction{Name: "make", Version: "1"}},
	}
	for i, c := range changed {
		assert.NotEqual(t, base.Signature(), c.Signature(), "variant %d", i)
	}
}
