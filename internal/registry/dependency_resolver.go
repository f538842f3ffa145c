package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/toolsascode/bfm/info/internal/backends"
	"github.com/toolsascode/bfm/info/internal/version"
)

// MigrationNode represents a node in the dependency graph
type MigrationNode struct {
	Migration *backends.MigrationScript
	ID        string
	InDegree  int
	Visited   bool
}

// DependencyGraph represents a graph of migration dependencies
type DependencyGraph struct {
	nodes map[string]*MigrationNode
	edges map[string][]string // from -> to (dependencies)
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*MigrationNode),
		edges: make(map[string][]string),
	}
}

// AddNode adds a migration node to the graph
func (g *DependencyGraph) AddNode(migration *backends.MigrationScript) {
	id := migration.ID()
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &MigrationNode{Migration: migration, ID: id}
		g.edges[id] = []string{}
	}
}

// AddEdge adds a dependency edge from 'from' to 'to' (from depends on to).
// Edges between unknown nodes are ignored.
func (g *DependencyGraph) AddEdge(from, to string) {
	if _, exists := g.nodes[from]; !exists {
		return
	}
	if _, exists := g.nodes[to]; !exists {
		return
	}
	g.edges[from] = append(g.edges[from], to)
}

// sortedIDs returns node IDs in version order so traversal is deterministic
func (g *DependencyGraph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return g.less(ids[i], ids[j]) })
	return ids
}

func (g *DependencyGraph) less(a, b string) bool {
	va, errA := version.Parse(g.nodes[a].Migration.Version)
	vb, errB := version.Parse(g.nodes[b].Migration.Version)
	if errA == nil && errB == nil && !va.Equal(vb) {
		return va.Less(vb)
	}
	return a < b
}

// DetectCycles detects cycles in the dependency graph using DFS
func (g *DependencyGraph) DetectCycles() ([]string, error) {
	for _, node := range g.nodes {
		node.Visited = false
	}

	path := make(map[string]bool)
	var cyclePath []string

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		node := g.nodes[nodeID]
		if node.Visited {
			return false
		}
		if path[nodeID] {
			cyclePath = append(cyclePath, nodeID)
			return true
		}

		path[nodeID] = true
		for _, depID := range g.edges[nodeID] {
			if dfs(depID) {
				cyclePath = append(cyclePath, nodeID)
				return true
			}
		}
		delete(path, nodeID)
		node.Visited = true
		return false
	}

	for _, nodeID := range g.sortedIDs() {
		if g.nodes[nodeID].Visited {
			continue
		}
		if dfs(nodeID) {
			for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
				cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
			}
			return cyclePath, fmt.Errorf("circular dependency detected: %s", strings.Join(cyclePath, " -> "))
		}
	}

	return nil, nil
}

// TopologicalSort orders migrations so that dependencies come first, using
// Kahn's algorithm with version order as the tie breaker
func (g *DependencyGraph) TopologicalSort() ([]*backends.MigrationScript, error) {
	if _, err := g.DetectCycles(); err != nil {
		return nil, err
	}

	dependents := make(map[string][]string)
	for from, toList := range g.edges {
		for _, to := range toList {
			dependents[to] = append(dependents[to], from)
		}
	}
	for nodeID := range g.nodes {
		g.nodes[nodeID].InDegree = len(g.edges[nodeID])
	}

	var queue []string
	for _, nodeID := range g.sortedIDs() {
		if g.nodes[nodeID].InDegree == 0 {
			queue = append(queue, nodeID)
		}
	}

	sorted := make([]*backends.MigrationScript, 0, len(g.nodes))
	processed := make(map[string]bool)

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]
		if processed[currentID] {
			continue
		}
		processed[currentID] = true
		sorted = append(sorted, g.nodes[currentID].Migration)

		for _, dependentID := range dependents[currentID] {
			g.nodes[dependentID].InDegree--
			if g.nodes[dependentID].InDegree == 0 && !processed[dependentID] {
				queue = append(queue, dependentID)
			}
		}
		sort.Slice(queue, func(i, j int) bool { return g.less(queue[i], queue[j]) })
	}

	if len(sorted) < len(g.nodes) {
		var unprocessed []string
		for _, nodeID := range g.sortedIDs() {
			if !processed[nodeID] {
				unprocessed = append(unprocessed, nodeID)
			}
		}
		return nil, fmt.Errorf("not all migrations could be sorted (possible cycle): %s", strings.Join(unprocessed, ", "))
	}

	return sorted, nil
}

// DependencyResolver checks that migration dependencies exist and are acyclic
type DependencyResolver struct {
	registry Registry
}

// NewDependencyResolver creates a new dependency resolver
func NewDependencyResolver(reg Registry) *DependencyResolver {
	return &DependencyResolver{registry: reg}
}

// findDependencyTarget finds migration(s) matching a dependency specification
func (r *DependencyResolver) findDependencyTarget(dep backends.Dependency) ([]*backends.MigrationScript, error) {
	var candidates []*backends.MigrationScript

	for _, migration := range r.registry.GetAll() {
		if dep.Connection != "" && migration.Connection != dep.Connection {
			continue
		}
		if dep.Schema != "" && migration.Schema != dep.Schema {
			continue
		}
		if dep.TargetType == "version" {
			if migration.Version == dep.Target {
				candidates = append(candidates, migration)
			}
		} else if migration.Name == dep.Target {
			candidates = append(candidates, migration)
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("dependency target not found: connection=%s, schema=%s, target=%s, type=%s",
			dep.Connection, dep.Schema, dep.Target, dep.TargetType)
	}
	return candidates, nil
}

// buildDependencyGraph adds every migration as a node and an edge for each
// dependency that is part of the same set; missing targets are reported
func (r *DependencyResolver) buildDependencyGraph(migrations []*backends.MigrationScript) (*DependencyGraph, []string) {
	graph := NewDependencyGraph()
	var missing []string

	for _, migration := range migrations {
		graph.AddNode(migration)
	}

	link := func(from *backends.MigrationScript, targets []*backends.MigrationScript) {
		for _, target := range targets {
			graph.AddEdge(from.ID(), target.ID())
		}
	}

	for _, migration := range migrations {
		for _, dep := range migration.StructuredDependencies {
			targets, err := r.findDependencyTarget(dep)
			if err != nil {
				missing = append(missing, fmt.Sprintf("migration %s_%s: %v", migration.Version, migration.Name, err))
				continue
			}
			link(migration, targets)
		}

		for _, depName := range migration.Dependencies {
			targets := r.registry.GetMigrationByName(depName)
			if len(targets) == 0 {
				missing = append(missing, fmt.Sprintf("migration %s_%s: dependency '%s' not found", migration.Version, migration.Name, depName))
				continue
			}
			link(migration, targets)
		}
	}

	return graph, missing
}

// ResolveDependencies validates dependencies and returns the migrations in
// dependency order
func (r *DependencyResolver) ResolveDependencies(migrations []*backends.MigrationScript) ([]*backends.MigrationScript, error) {
	if len(migrations) == 0 {
		return migrations, nil
	}

	graph, missing := r.buildDependencyGraph(migrations)
	if len(missing) > 0 {
		return nil, fmt.Errorf("dependency validation failed: %s", strings.Join(missing, "; "))
	}

	return graph.TopologicalSort()
}
