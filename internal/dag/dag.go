// Package dag provides the directed acyclic graph used to order build tasks.
// It detects cycles, groups nodes into execution levels and answers
// upstream and downstream reachability.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrCycle is matched by every *CycleError.
var ErrCycle = errors.New("dependency cycle")

// CycleError reports a cycle; Path starts and ends with the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Is implements errors.Is.
func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// Node is a vertex carrying a payload.
type Node[T any] struct {
	ID   string
	Data T
}

// Graph is a directed graph where an edge parent → child means the child
// depends on the parent.
type Graph[T any] struct {
	nodes   map[string]*Node[T]
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:   make(map[string]*Node[T]),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node, replacing the payload if the node exists.
func (g *Graph[T]) AddNode(id string, data T) {
	if node, exists := g.nodes[id]; exists {
		node.Data = data
		return
	}
	g.nodes[id] = &Node[T]{ID: id, Data: data}
	g.edges[id] = nil
	g.parents[id] = nil
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Duplicate edges are ignored.
func (g *Graph[T]) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return &CycleError{Path: []string{parentID, parentID}}
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
		sort.Strings(g.edges[parentID])
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
		sort.Strings(g.parents[childID])
	}
	return nil
}

// GetParents returns the direct dependencies of a node, sorted.
func (g *Graph[T]) GetParents(id string) []string {
	return slices.Clone(g.parents[id])
}

// GetChildren returns the direct dependents of a node, sorted.
func (g *Graph[T]) GetChildren(id string) []string {
	return slices.Clone(g.edges[id])
}

// IDs returns every node ID, sorted.
func (g *Graph[T]) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph[T]) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// FindCycle returns a *CycleError describing one cycle, or nil. Traversal
// order is deterministic so the reported cycle is stable.
func (g *Graph[T]) FindCycle() error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var found []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = inProgress
		stack = append(stack, id)
		for _, child := range g.edges[id] {
			switch state[child] {
			case inProgress:
				start := slices.Index(stack, child)
				found = append(slices.Clone(stack[start:]), child)
				return true
			case unvisited:
				if dfs(child) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.IDs() {
		if state[id] == unvisited && dfs(id) {
			return &CycleError{Path: found}
		}
	}
	return nil
}

// GetExecutionLevels groups nodes by depth. Nodes at level N depend only on
// nodes at levels below N, so each level can run in parallel once the
// previous one has finished. Each level is sorted.
func (g *Graph[T]) GetExecutionLevels() ([][]string, error) {
	if err := g.FindCycle(); err != nil {
		return nil, err
	}

	assigned := make(map[string]int, len(g.nodes))
	var levelOf func(id string) int
	levelOf = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			level = max(level, levelOf(parentID)+1)
		}
		assigned[id] = level
		return level
	}

	var levels [][]string
	for _, id := range g.IDs() {
		level := levelOf(id)
		for len(levels) <= level {
			levels = append(levels, nil)
		}
		levels[level] = append(levels[level], id)
	}
	return levels, nil
}

// GetAffectedNodes returns the given nodes and everything downstream of them, sorted.
func (g *Graph[T]) GetAffectedNodes(changedIDs []string) []string {
	affected := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, childID := range g.edges[id] {
			mark(childID)
		}
	}

	for _, id := range changedIDs {
		if _, exists := g.nodes[id]; exists {
			mark(id)
		}
	}
	return sortedKeys(affected)
}

// GetUpstreamNodes returns every transitive dependency of id, sorted.
func (g *Graph[T]) GetUpstreamNodes(id string) []string {
	upstream := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !upstream[parentID] {
				upstream[parentID] = true
				mark(parentID)
			}
		}
	}

	mark(id)
	return sortedKeys(upstream)
}

// Subgraph returns a new graph containing only the given nodes and the edges between them.
func (g *Graph[T]) Subgraph(nodeIDs []string) *Graph[T] {
	sub := NewGraph[T]()
	for _, id := range nodeIDs {
		if node, exists := g.nodes[id]; exists {
			sub.AddNode(id, node.Data)
		}
	}
	for _, id := range sub.IDs() {
		for _, childID := range g.edges[id] {
			if _, ok := sub.nodes[childID]; ok {
				_ = sub.AddEdge(id, childID)
			}
		}
	}
	return sub
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
