package core

import (
	"sort"
)

// Graph represents a directed acyclic graph of declarations. Nodes are keyed
// by ConfigItem.Key(); requisites name declaration IDs, so one requisite
// may expand to several nodes.
type Graph struct {
	Nodes    map[string]ConfigItem
	Edges    map[string][]string // Adjacency list: requisite -> dependents
	InDegree map[string]int

	order map[string]int
	byID  map[string][]string
}

// NewGraph creates a new empty graph
func NewGraph() *Graph {
	return &Graph{
		Nodes:    make(map[string]ConfigItem),
		Edges:    make(map[string][]string),
		InDegree: make(map[string]int),
		order:    make(map[string]int),
		byID:     make(map[string][]string),
	}
}

// BuildGraph constructs the graph from a list of ConfigItems
func (g *Graph) BuildGraph(items []ConfigItem) error {
	for i, item := range items {
		key := item.Key()
		if _, exists := g.Nodes[key]; exists {
			return DeclarationError("duplicate declaration: %s", key)
		}
		g.Nodes[key] = item
		g.Edges[key] = []string{}
		g.InDegree[key] = 0
		g.order[key] = i
		g.byID[item.ID] = append(g.byID[item.ID], key)
	}

	for _, item := range items {
		key := item.Key()
		seen := make(map[string]bool)
		for _, dep := range item.DependsOn {
			targets, exists := g.byID[dep]
			if !exists {
				return DeclarationError("'%s' requires unknown declaration '%s'", item.ID, dep)
			}
			for _, target := range targets {
				if target == key || seen[target] {
					continue
				}
				seen[target] = true
				g.Edges[target] = append(g.Edges[target], key)
				g.InDegree[key]++
			}
		}
	}

	return nil
}

// TopologicalSort returns layers of items; every item comes after all of
// its requisites. Within a layer, declaration order is kept.
func (g *Graph) TopologicalSort() ([][]ConfigItem, error) {
	// Kahn's Algorithm
	inDegree := make(map[string]int, len(g.InDegree))
	for k, v := range g.InDegree {
		inDegree[k] = v
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	g.sortByOrder(queue)

	var layers [][]ConfigItem
	processed := 0

	for len(queue) > 0 {
		var layer []ConfigItem
		var next []string

		for _, key := range queue {
			layer = append(layer, g.Nodes[key])
			processed++

			for _, neighbor := range g.Edges[key] {
				inDegree[neighbor]--
				if inDegree[neighbor] == 0 {
					next = append(next, neighbor)
				}
			}
		}

		layers = append(layers, layer)
		g.sortByOrder(next)
		queue = next
	}

	if processed != len(g.Nodes) {
		return nil, DeclarationError("circular requisite detected")
	}

	return layers, nil
}

func (g *Graph) sortByOrder(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		return g.order[keys[i]] < g.order[keys[j]]
	})
}

// Flatten returns the layers as a single execution order.
func Flatten(layers [][]ConfigItem) []ConfigItem {
	var out []ConfigItem
	for _, layer := range layers {
		out = append(out, layer...)
	}
	return out
}
