package dag

import (
	"errors"
	"reflect"
	"testing"
)

func chain(ids ...string) *Graph[int] {
	g := NewGraph[int]()
	for i, id := range ids {
		g.AddNode(id, i)
	}
	for i := 1; i < len(ids); i++ {
		_ = g.AddEdge(ids[i-1], ids[i])
	}
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := chain("a", "b", "c")

	if got := g.IDs(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected nodes %v", got)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}

	g.AddNode("a", 42)
	node, ok := g.nodes["a"]
	if !ok || node.Data != 42 {
		t.Errorf("expected payload to be replaced, got %+v", node)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("re-adding a node must keep its edges, got %d edges", g.EdgeCount())
	}
}

func TestGraph_AddEdge_Invalid(t *testing.T) {
	g := NewGraph[string]()
	g.AddNode("a", "")

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
	if err := g.AddEdge("a", "a"); !errors.Is(err, ErrCycle) {
		t.Errorf("expected cycle error for self-loop, got %v", err)
	}
}

func TestGraph_DuplicateEdges(t *testing.T) {
	g := chain("a", "b")
	_ = g.AddEdge("a", "b")

	if g.EdgeCount() != 1 {
		t.Errorf("expected duplicate edge to be ignored, got %d edges", g.EdgeCount())
	}
	if got := g.GetParents("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("unexpected parents %v", got)
	}
}

func TestGraph_FindCycle(t *testing.T) {
	g := chain("a", "b", "c")
	if err := g.FindCycle(); err != nil {
		t.Fatalf("expected no cycle, got %v", err)
	}

	_ = g.AddEdge("c", "a")
	err := g.FindCycle()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected cycle, got %v", err)
	}

	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	want := []string{"a", "b", "c", "a"}
	if !reflect.DeepEqual(cerr.Path, want) {
		t.Errorf("expected path %v, got %v", want, cerr.Path)
	}

	if _, err := g.GetExecutionLevels(); err == nil {
		t.Error("expected execution levels to fail on a cycle")
	}
}

func TestGraph_GetExecutionLevels(t *testing.T) {
	g := NewGraph[int]()
	for _, id := range []string{"extract", "resolve", "transform_a", "transform_b", "report", "standalone"} {
		g.AddNode(id, 0)
	}
	_ = g.AddEdge("extract", "transform_a")
	_ = g.AddEdge("extract", "transform_b")
	_ = g.AddEdge("transform_a", "report")
	_ = g.AddEdge("resolve", "report")

	levels, err := g.GetExecutionLevels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{
		{"extract", "resolve", "standalone"},
		{"transform_a", "transform_b"},
		{"report"},
	}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("expected %v, got %v", want, levels)
	}
}

func TestGraph_Reachability(t *testing.T) {
	g := chain("a", "b", "c")
	g.AddNode("x", 0)
	_ = g.AddEdge("x", "c")

	if got := g.GetAffectedNodes([]string{"b", "missing"}); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("unexpected affected nodes %v", got)
	}
	if got := g.GetUpstreamNodes("c"); !reflect.DeepEqual(got, []string{"a", "b", "x"}) {
		t.Errorf("unexpected upstream nodes %v", got)
	}
	if got := g.GetAffectedNodes([]string{"x", "a"}); !reflect.DeepEqual(got, []string{"a", "b", "c", "x"}) {
		t.Errorf("unexpected affected nodes %v", got)
	}
}

func TestGraph_Subgraph(t *testing.T) {
	g := chain("a", "b", "c", "d")

	sub := g.Subgraph([]string{"b", "c", "missing"})
	if got := sub.IDs(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("unexpected nodes %v", got)
	}
	if sub.EdgeCount() != 1 {
		t.Errorf("expected 1 edge, got %d", sub.EdgeCount())
	}
	if node := sub.nodes["c"]; node.Data != 2 {
		t.Errorf("expected payload to be carried over, got %d", node.Data)
	}
}
