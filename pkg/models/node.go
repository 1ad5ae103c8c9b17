package models

// NodeType is the engineering discipline tag carried by a workflow node.
type NodeType string

const (
	NodeTypeSimulation  NodeType = "simulation"
	NodeTypeGeometry    NodeType = "geometry"
	NodeTypeSpecs       NodeType = "specs"
	NodeTypeMaterial    NodeType = "material"
	NodeTypeResource    NodeType = "resource"
	NodeTypeStandard    NodeType = "standard"
	NodeTypeIntegration NodeType = "integration"
)

// NodeTypes lists every valid node type.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeTypeSimulation,
		NodeTypeGeometry,
		NodeTypeSpecs,
		NodeTypeMaterial,
		NodeTypeResource,
		NodeTypeStandard,
		NodeTypeIntegration,
	}
}

// NodeStatus defines the possible states of a node during execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// Node is a single typed step in a workflow graph. The payload carries
// type-specific fields (geometry dimensions, material properties, simulation
// parameters) validated against the JSON schema registered for the type.
type Node struct {
	ID        string         `json:"id"       validate:"required"`
	Type      NodeType       `json:"type"     validate:"required"`
	Label     string         `json:"label"    validate:"required,min=1"`
	Status    NodeStatus     `json:"status"`
	Progress  int            `json:"progress" validate:"min=0,max=100"`
	Payload   map[string]any `json:"payload"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Edge is a directed dependency between two nodes of the same workflow: the
// target may not start before the source has completed.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}
