package build

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"

	"github.com/leapstack-labs/vedaprep/internal/dag"
	"github.com/leapstack-labs/vedaprep/internal/fingerprint"
)

// Pipeline is a validated task graph.
type Pipeline struct {
	root  string
	tasks map[string]*Task
	graph *dag.Graph[*Task]
}

// NewPipeline validates tasks and derives their dependency graph.
//
// Task B depends on task A when one of B's inputs equals, contains or lies
// under one of A's outputs, or when B lists A in After. Duplicate names,
// unknown After targets, outputs shared between tasks, glob outputs and
// cycles are all rejected; every problem found is reported.
func NewPipeline(root string, tasks []*Task) (*Pipeline, error) {
	p := &Pipeline{
		root:  filepath.Clean(root),
		tasks: make(map[string]*Task, len(tasks)),
		graph: dag.NewGraph[*Task](),
	}

	var errs []error
	for _, t := range tasks {
		if _, dup := p.tasks[t.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate task name %q", t.Name))
			continue
		}
		if t.Action == nil {
			errs = append(errs, fmt.Errorf("task %s has no action", t.Name))
		}
		for _, out := range t.Outputs {
			if fingerprint.HasMeta(out) {
				errs = append(errs, fmt.Errorf("task %s: output %s must not be a pattern", t.Name, p.Rel(out)))
			}
		}
		p.tasks[t.Name] = t
		p.graph.AddNode(t.Name, t)
	}

	names := p.Names()
	for i, a := range names {
		for _, b := range names[i+1:] {
			if err := p.checkOverlap(p.tasks[a], p.tasks[b]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, name := range names {
		child := p.tasks[name]
		for _, up := range child.After {
			if _, ok := p.tasks[up]; !ok {
				errs = append(errs, fmt.Errorf("task %s: after references unknown task %q", name, up))
				continue
			}
			if err := p.graph.AddEdge(up, name); err != nil {
				errs = append(errs, fmt.Errorf("task %s: %w", name, err))
			}
		}
		for _, parentName := range names {
			if p.feeds(p.tasks[parentName], child) {
				if err := p.graph.AddEdge(parentName, name); err != nil {
					errs = append(errs, fmt.Errorf("task %s reads its own output: %w", name, err))
				}
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := p.graph.FindCycle(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) checkOverlap(a, b *Task) error {
	for _, ao := range a.Outputs {
		for _, bo := range b.Outputs {
			if fingerprint.Overlaps(ao, bo) {
				return fmt.Errorf("tasks %s and %s declare overlapping outputs %s and %s",
					a.Name, b.Name, p.Rel(ao), p.Rel(bo))
			}
		}
	}
	return nil
}

// feeds reports whether any output of parent satisfies an input of child.
func (p *Pipeline) feeds(parent, child *Task) bool {
	for _, out := range parent.Outputs {
		for _, in := range child.Inputs {
			if fingerprint.MatchesPattern(in, out) {
				return true
			}
		}
	}
	return false
}

// Root returns the project root the task paths were resolved against.
func (p *Pipeline) Root() string { return p.root }

// Task returns the named task.
func (p *Pipeline) Task(name string) (*Task, bool) {
	t, ok := p.tasks[name]
	return t, ok
}

// Names returns all task names, sorted.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.tasks))
	for name := range p.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Upstream returns the direct dependencies of a task.
func (p *Pipeline) Upstream(name string) []string {
	return p.graph.GetParents(name)
}

// Downstream returns the direct dependents of a task.
func (p *Pipeline) Downstream(name string) []string {
	return p.graph.GetChildren(name)
}

// EdgeCount returns the number of dependency edges.
func (p *Pipeline) EdgeCount() int { return p.graph.EdgeCount() }

// Levels returns the tasks grouped into execution levels. Tasks in one level
// do not depend on each other.
func (p *Pipeline) Levels() ([][]string, error) {
	return p.graph.GetExecutionLevels()
}

// Select returns a pipeline restricted to targets and everything they depend
// on. No targets selects every task.
func (p *Pipeline) Select(targets []string) (*Pipeline, error) {
	if len(targets) == 0 {
		return p, nil
	}
	if err := p.checkNames(targets); err != nil {
		return nil, err
	}

	keep := slices.Clone(targets)
	for _, t := range targets {
		keep = append(keep, p.graph.GetUpstreamNodes(t)...)
	}
	return p.restrict(keep), nil
}

// Dependents returns a pipeline restricted to targets and every task that
// depends on them. No targets selects every task.
func (p *Pipeline) Dependents(targets []string) (*Pipeline, error) {
	if len(targets) == 0 {
		return p, nil
	}
	if err := p.checkNames(targets); err != nil {
		return nil, err
	}
	return p.restrict(p.graph.GetAffectedNodes(targets)), nil
}

func (p *Pipeline) checkNames(names []string) error {
	for _, n := range names {
		if _, ok := p.tasks[n]; !ok {
			return fmt.Errorf("unknown task %q", n)
		}
	}
	return nil
}

func (p *Pipeline) restrict(ids []string) *Pipeline {
	sub := &Pipeline{root: p.root, tasks: make(map[string]*Task, len(ids))}
	for _, id := range ids {
		sub.tasks[id] = p.tasks[id]
	}
	sub.graph = p.graph.Subgraph(ids)
	return sub
}

// Rel returns path relative to the project root in slash form; paths outside
// the root are returned unchanged. Record keys use this form so a project
// can move without invalidating its state.
func (p *Pipeline) Rel(path string) string {
	if !fingerprint.Covers(p.root, path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
