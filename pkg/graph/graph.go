// Package graph builds the "must-start-before" dependency graph of a
// fleet and derives a deterministic start order from it.
package graph

import (
	"fmt"
	"strings"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// Node is one instance in the dependency graph.
type Node struct {
	ID   fleet.InstanceID `json:"id"`
	Role fleet.Role       `json:"role"`
}

// Edge means "From depends on To": To must reach RUNNING before From
// starts.
type Edge struct {
	From fleet.InstanceID `json:"from"`
	To   fleet.InstanceID `json:"to"`
}

// Graph is the compiled dependency structure of a fleet.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	order      []fleet.InstanceID
	deps       map[fleet.InstanceID][]fleet.InstanceID
	dependents map[fleet.InstanceID][]fleet.InstanceID
}

// Build derives the dependency graph for the given instances and computes
// a topological start order. Edge rules:
//
//   - a request collector depends on the monitoring service for the same
//     chain; a fleet that declares the collector without that monitoring
//     service is invalid
//   - the reverse proxy depends on every instance that exposes a public
//     route
//   - explicit depends_on entries from the declaration are added as-is
//
// Instances keep their declaration order as the tie break, so the computed
// order is deterministic. Build also records each instance's dependency
// set on the instance itself.
func Build(instances []*fleet.Instance) (*Graph, error) {
	g := &Graph{
		deps:       make(map[fleet.InstanceID][]fleet.InstanceID, len(instances)),
		dependents: make(map[fleet.InstanceID][]fleet.InstanceID, len(instances)),
	}

	byID := make(map[fleet.InstanceID]*fleet.Instance, len(instances))
	monitoringByChain := make(map[string]fleet.InstanceID)
	for _, inst := range instances {
		if _, dup := byID[inst.ID]; dup {
			return nil, fleet.DuplicateInstanceError{ID: inst.ID}
		}
		byID[inst.ID] = inst
		g.Nodes = append(g.Nodes, Node{ID: inst.ID, Role: inst.Role})
		if inst.Role == fleet.RoleMonitoring {
			monitoringByChain[inst.Chain.Name] = inst.ID
		}
	}

	addEdge := func(from, to fleet.InstanceID) error {
		if _, ok := byID[to]; !ok {
			return fleet.UnknownDependencyError{From: from, To: to}
		}
		for _, existing := range g.deps[from] {
			if existing == to {
				return nil
			}
		}
		g.Edges = append(g.Edges, Edge{From: from, To: to})
		g.deps[from] = append(g.deps[from], to)
		g.dependents[to] = append(g.dependents[to], from)
		return nil
	}

	for _, inst := range instances {
		switch inst.Role {
		case fleet.RoleRequestCollector:
			ms, ok := monitoringByChain[inst.Chain.Name]
			if !ok {
				return nil, fleet.UnknownDependencyError{
					From: inst.ID,
					To:   fleet.MakeID(fleet.RoleMonitoring, inst.Chain.Name, 0),
				}
			}
			if err := addEdge(inst.ID, ms); err != nil {
				return nil, err
			}
		case fleet.RoleReverseProxy:
			for _, other := range instances {
				if other.Role.Public() {
					if err := addEdge(inst.ID, other.ID); err != nil {
						return nil, err
					}
				}
			}
		}
		for _, dep := range inst.DependsOn {
			if err := addEdge(inst.ID, dep); err != nil {
				return nil, err
			}
		}
	}

	order, err := g.topoSort(instances)
	if err != nil {
		return nil, err
	}
	g.order = order

	for _, inst := range instances {
		inst.DependsOn = append([]fleet.InstanceID(nil), g.deps[inst.ID]...)
	}

	return g, nil
}

// topoSort runs Kahn's algorithm with a queue kept in declaration order.
func (g *Graph) topoSort(instances []*fleet.Instance) ([]fleet.InstanceID, error) {
	indegree := make(map[fleet.InstanceID]int, len(instances))
	for _, inst := range instances {
		indegree[inst.ID] = len(g.deps[inst.ID])
	}

	var queue []fleet.InstanceID
	for _, inst := range instances {
		if indegree[inst.ID] == 0 {
			queue = append(queue, inst.ID)
		}
	}

	order := make([]fleet.InstanceID, 0, len(instances))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		// Scan dependents in declaration order so newly freed nodes are
		// enqueued deterministically.
		freed := make(map[fleet.InstanceID]bool, len(g.dependents[id]))
		for _, dependent := range g.dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				freed[dependent] = true
			}
		}
		for _, inst := range instances {
			if freed[inst.ID] {
				queue = append(queue, inst.ID)
			}
		}
	}

	if len(order) != len(instances) {
		return nil, fleet.DependencyCycleError{Path: g.findCycle(indegree)}
	}
	return order, nil
}

// findCycle walks the unresolved remainder of the graph to name one cycle
// for the error message.
func (g *Graph) findCycle(indegree map[fleet.InstanceID]int) []fleet.InstanceID {
	var start fleet.InstanceID
	for _, n := range g.Nodes {
		if indegree[n.ID] > 0 {
			start = n.ID
			break
		}
	}
	if start == "" {
		return nil
	}

	seen := make(map[fleet.InstanceID]int)
	path := []fleet.InstanceID{}
	current := start
	for {
		if at, ok := seen[current]; ok {
			return append(path[at:], current)
		}
		seen[current] = len(path)
		path = append(path, current)

		next := fleet.InstanceID("")
		for _, dep := range g.deps[current] {
			if indegree[dep] > 0 {
				next = dep
				break
			}
		}
		if next == "" {
			return path
		}
		current = next
	}
}

// TopoOrder returns a copy of the topological start order (dependencies
// first).
func (g *Graph) TopoOrder() []fleet.InstanceID {
	order := make([]fleet.InstanceID, len(g.order))
	copy(order, g.order)
	return order
}

// Dependencies returns the instances id must wait for.
func (g *Graph) Dependencies(id fleet.InstanceID) []fleet.InstanceID {
	return append([]fleet.InstanceID(nil), g.deps[id]...)
}

// Dependents returns the instances waiting on id.
func (g *Graph) Dependents(id fleet.InstanceID) []fleet.InstanceID {
	return append([]fleet.InstanceID(nil), g.dependents[id]...)
}

// DOT exports Graphviz DOT text for the validate command.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph fleet {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[fleet.InstanceID]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.ID] = alias
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\\n(%s)\"];\n", alias, n.ID, n.Role))
	}
	for _, e := range g.Edges {
		b.WriteString(fmt.Sprintf("  %s -> %s;\n", aliases[e.From], aliases[e.To]))
	}
	b.WriteString("}\n")
	return b.String()
}
