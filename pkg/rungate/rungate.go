// Package rungate guards against concurrent executions of the same workflow.
// The gate is advisory: it cuts down duplicate work, while the durable run
// status in the database stays the source of truth.
package rungate

import "context"

// Gate tracks which workflows are currently executing.
type Gate interface {
	// Acquire claims the workflow for execution. It returns false when
	// another execution already holds the claim.
	Acquire(ctx context.Context, workflowID string) (bool, error)

	// Release gives the claim back. Releasing an unclaimed workflow is a
	// no-op.
	Release(ctx context.Context, workflowID string) error

	// IsRunning reports whether the workflow is currently claimed.
	IsRunning(ctx context.Context, workflowID string) (bool, error)
}
