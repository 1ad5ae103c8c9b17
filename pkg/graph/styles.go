package graph

import "github.com/macadamia-hq/macadamia/pkg/models"

// EdgeStyleKind names the visual treatment of a diagram edge.
type EdgeStyleKind string

const (
	EdgeStyleActive    EdgeStyleKind = "active"
	EdgeStyleCompleted EdgeStyleKind = "completed"
	EdgeStyleFailed    EdgeStyleKind = "failed"
	EdgeStyleDefault   EdgeStyleKind = "default"
)

// EdgeStyle is the rendering hint for one edge. Purely cosmetic: it keeps the
// diagram synchronized with execution progress and carries no execution
// semantics.
type EdgeStyle struct {
	EdgeID   string        `json:"edge_id"`
	Kind     EdgeStyleKind `json:"kind"`
	Animated bool          `json:"animated"`
}

// ProjectEdgeStyles derives a style for every edge from the endpoint
// statuses. Rules are evaluated top-down, first match wins:
//
//	completed -> running   active, animated
//	running   -> pending   active
//	completed -> completed completed
//	failed on either end   failed
//	otherwise              default
func ProjectEdgeStyles(edges []*models.Edge, status StatusByNode) []EdgeStyle {
	styles := make([]EdgeStyle, 0, len(edges))

	for _, edge := range edges {
		source := status.Get(edge.Source)
		target := status.Get(edge.Target)

		style := EdgeStyle{EdgeID: edge.ID, Kind: EdgeStyleDefault}

		switch {
		case source == models.NodeStatusCompleted && target == models.NodeStatusRunning:
			style.Kind = EdgeStyleActive
			style.Animated = true
		case source == models.NodeStatusRunning && target == models.NodeStatusPending:
			style.Kind = EdgeStyleActive
		case source == models.NodeStatusCompleted && target == models.NodeStatusCompleted:
			style.Kind = EdgeStyleCompleted
		case source == models.NodeStatusFailed || target == models.NodeStatusFailed:
			style.Kind = EdgeStyleFailed
		}

		styles = append(styles, style)
	}

	return styles
}
