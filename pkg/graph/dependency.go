// Package graph implements the workflow dependency graph: building the
// prerequisite map from the edge list, finding executable nodes, and
// projecting node statuses onto edge styles for the diagram.
package graph

import (
	"log/slog"
	"slices"

	"github.com/macadamia-hq/macadamia/pkg/models"
)

// DependencyMap maps each node ID to the sorted set of node IDs that must
// reach completed before it may start.
type DependencyMap map[string][]string

// DependenciesOf returns the prerequisite IDs for a node. Unknown nodes have
// no prerequisites.
func (m DependencyMap) DependenciesOf(nodeID string) []string {
	return m[nodeID]
}

// BuildDependencyMap builds the prerequisite map for a workflow graph. Every
// node appears as a key, with an empty set when nothing precedes it. Edges
// whose source or target is not in the node set are logged and skipped, and
// duplicate edges between the same pair collapse to a single dependency.
//
// Cycles are detected and logged but do not abort construction: the map is
// returned as built and the caller decides what to do with unsatisfiable
// nodes (the runner marks them failed once nothing else can make progress).
func BuildDependencyMap(nodes []*models.Node, edges []*models.Edge) DependencyMap {
	logger := slog.With("module", "graph")

	exists := make(map[string]bool, len(nodes))
	deps := make(map[string]map[string]bool, len(nodes))

	for _, node := range nodes {
		exists[node.ID] = true
		deps[node.ID] = make(map[string]bool)
	}

	for _, edge := range edges {
		if !exists[edge.Source] || !exists[edge.Target] {
			logger.Warn("Skipping edge referencing unknown node",
				"edge_id", edge.ID,
				"source", edge.Source,
				"target", edge.Target)

			continue
		}

		deps[edge.Target][edge.Source] = true
	}

	result := make(DependencyMap, len(deps))
	for nodeID, set := range deps {
		ids := make([]string, 0, len(set))
		for depID := range set {
			ids = append(ids, depID)
		}

		slices.Sort(ids)
		result[nodeID] = ids
	}

	for _, nodeID := range DetectCycles(result) {
		logger.Warn("Circular dependency detected", "node_id", nodeID)
	}

	return result
}

// DetectCycles returns the sorted IDs of nodes sitting on a dependency cycle.
// Traversal is depth-first with an on-stack marker set and always terminates,
// even on cyclic input.
func DetectCycles(depMap DependencyMap) []string {
	visited := make(map[string]bool, len(depMap))
	onStack := make(map[string]bool, len(depMap))
	cyclic := make(map[string]bool)

	var visit func(nodeID string)

	visit = func(nodeID string) {
		visited[nodeID] = true
		onStack[nodeID] = true

		for _, depID := range depMap[nodeID] {
			if onStack[depID] {
				cyclic[nodeID] = true
				cyclic[depID] = true

				continue
			}

			if !visited[depID] {
				visit(depID)
			}
		}

		onStack[nodeID] = false
	}

	// Iterate in sorted order so repeated calls report the same nodes.
	roots := make([]string, 0, len(depMap))
	for nodeID := range depMap {
		roots = append(roots, nodeID)
	}

	slices.Sort(roots)

	for _, nodeID := range roots {
		if !visited[nodeID] {
			visit(nodeID)
		}
	}

	result := make([]string, 0, len(cyclic))
	for nodeID := range cyclic {
		result = append(result, nodeID)
	}

	slices.Sort(result)

	return result
}
