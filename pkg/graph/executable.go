package graph

import (
	"slices"

	"github.com/macadamia-hq/macadamia/pkg/models"
)

// StatusByNode holds the current execution status of each node. Nodes absent
// from the map are treated as pending.
type StatusByNode map[string]models.NodeStatus

// Get returns the status for a node, defaulting to pending.
func (s StatusByNode) Get(nodeID string) models.NodeStatus {
	if status, ok := s[nodeID]; ok {
		return status
	}

	return models.NodeStatusPending
}

// ExecutableNodes returns the sorted IDs of nodes whose own status is pending
// and whose every prerequisite has completed. Nodes with no prerequisites are
// immediately executable. Pure; callers poll it as statuses change.
func ExecutableNodes(depMap DependencyMap, status StatusByNode) []string {
	executable := make([]string, 0, len(depMap))

	for nodeID, deps := range depMap {
		if status.Get(nodeID) != models.NodeStatusPending {
			continue
		}

		satisfied := true

		for _, depID := range deps {
			if status.Get(depID) != models.NodeStatusCompleted {
				satisfied = false

				break
			}
		}

		if satisfied {
			executable = append(executable, nodeID)
		}
	}

	slices.Sort(executable)

	return executable
}

// PendingNodes returns the sorted IDs of nodes still pending. When
// ExecutableNodes is empty and PendingNodes is not, the remaining nodes are
// starved: some prerequisite failed or sits on a cycle, and they can never
// run.
func PendingNodes(depMap DependencyMap, status StatusByNode) []string {
	pending := make([]string, 0, len(depMap))

	for nodeID := range depMap {
		if status.Get(nodeID) == models.NodeStatusPending {
			pending = append(pending, nodeID)
		}
	}

	slices.Sort(pending)

	return pending
}

// StarvedNodes returns the sorted IDs of pending nodes that can never become
// executable: a prerequisite failed, sits on a cycle, or is itself starved.
// The runner marks these failed instead of polling forever.
func StarvedNodes(depMap DependencyMap, status StatusByNode) []string {
	onCycle := make(map[string]bool)
	for _, nodeID := range DetectCycles(depMap) {
		onCycle[nodeID] = true
	}

	starved := make(map[string]bool, len(depMap))
	memo := make(map[string]bool, len(depMap))

	var isStarved func(nodeID string) bool

	isStarved = func(nodeID string) bool {
		if done, ok := memo[nodeID]; ok {
			return done
		}

		// Memoize before recursing; cycle members are starved already, so
		// a provisional false for the rest is safe.
		memo[nodeID] = false

		if status.Get(nodeID) == models.NodeStatusFailed || onCycle[nodeID] {
			memo[nodeID] = true

			return true
		}

		for _, depID := range depMap.DependenciesOf(nodeID) {
			if isStarved(depID) {
				memo[nodeID] = true

				return true
			}
		}

		return false
	}

	for nodeID := range depMap {
		if status.Get(nodeID) == models.NodeStatusPending && isStarved(nodeID) {
			starved[nodeID] = true
		}
	}

	result := make([]string, 0, len(starved))
	for nodeID := range starved {
		result = append(result, nodeID)
	}

	slices.Sort(result)

	return result
}
