package graph

import (
	"fmt"

	"github.com/vk/conductor/internal/config"
)

// Graph is the validated dependency graph over enabled and disabled
// components alike. It is immutable once Build returns.
type Graph struct {
	nodes map[string]*node
	// order holds every component id in topological order, ties broken by
	// declaration order.
	order []string
	// position maps a component id to its index in order.
	position map[string]int
	// group maps a component id to its parallel group index, or -1.
	group map[string]int
}

type node struct {
	id         string
	deps       map[string]*node
	dependents map[string]*node
}

// Build constructs the graph from a validated model: create a node per
// component, link edges from the dependency lists, verify parallel groups,
// reject cycles, and compute the topological order.
func Build(model *config.Model) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]*node, len(model.Components)),
		position: make(map[string]int, len(model.Components)),
		group:    make(map[string]int, len(model.Components)),
	}

	for _, c := range model.Components {
		g.nodes[c.ID] = &node{
			id:         c.ID,
			deps:       make(map[string]*node),
			dependents: make(map[string]*node),
		}
		g.group[c.ID] = -1
	}
	for _, c := range model.Components {
		for _, dep := range c.DependsOn {
			from, ok := g.nodes[dep]
			if !ok {
				return nil, &config.Error{Reason: fmt.Sprintf("component %q depends on unknown component %q", c.ID, dep)}
			}
			to := g.nodes[c.ID]
			to.deps[dep] = from
			from.dependents[c.ID] = to
		}
	}

	for gi, members := range model.ParallelGroups {
		for _, id := range members {
			g.group[id] = gi
		}
		// Members must be mutually independent. Direct edges were rejected
		// by config validation; paths through other components are caught
		// here.
		for _, a := range members {
			for _, b := range members {
				if a != b && g.hasPath(a, b) {
					return nil, &config.Error{Reason: fmt.Sprintf("parallel group members %q and %q are connected through the graph", a, b)}
				}
			}
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	g.computeOrder(model)
	return g, nil
}

// detectCycles runs a depth-first search with a recursion-stack set. Any
// back edge is a fatal configuration error.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		visiting[n.id] = true
		for _, dep := range n.deps {
			if visiting[dep.id] {
				return &config.Error{Reason: fmt.Sprintf("dependency cycle involving %q", dep.id)}
			}
			if !visited[dep.id] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, n.id)
		visited[n.id] = true
		return nil
	}

	for _, n := range g.nodes {
		if !visited[n.id] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeOrder runs Kahn's algorithm. Among simultaneously-ready nodes the
// declared configuration order wins, which makes the result stable across
// invocations.
func (g *Graph) computeOrder(model *config.Model) {
	declared := make(map[string]int, len(model.Components))
	for i, c := range model.Components {
		declared[c.ID] = i
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.deps)
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	g.order = g.order[:0]
	for len(ready) > 0 {
		// Pick the ready node declared earliest.
		best := 0
		for i := 1; i < len(ready); i++ {
			if declared[ready[i]] < declared[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)

		g.position[id] = len(g.order)
		g.order = append(g.order, id)

		for depID := range g.nodes[id].dependents {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				ready = append(ready, depID)
			}
		}
	}
}

// hasPath reports whether to is reachable from from along dependency edges
// in either direction of declaration (from → ... → to).
func (g *Graph) hasPath(from, to string) bool {
	seen := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == to {
			return true
		}
		seen[id] = true
		for depID := range g.nodes[id].dependents {
			if !seen[depID] && walk(depID) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// Order returns every component id in execution order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Position returns the topological position of a component id.
func (g *Graph) Position(id string) int {
	return g.position[id]
}

// Dependencies returns the ids a component depends on.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.deps))
	for depID := range n.deps {
		out = append(out, depID)
	}
	return out
}

// Dependents returns the ids that depend on a component.
func (g *Graph) Dependents(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.dependents))
	for depID := range n.dependents {
		out = append(out, depID)
	}
	return out
}

// Group returns the parallel group index of a component, or -1.
func (g *Graph) Group(id string) int {
	return g.group[id]
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.nodes)
}
