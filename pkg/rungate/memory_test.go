package rungate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGate_AcquireIsExclusive(t *testing.T) {
	gate := NewMemoryGate()
	ctx := context.Background()

	acquired, err := gate.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	// Second execution of the same workflow is refused.
	acquired, err = gate.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, acquired)

	// Other workflows are unaffected.
	acquired, err = gate.Acquire(ctx, "wf-2")
	require.NoError(t, err)
	assert.True(t, acquired)

	running, err := gate.IsRunning(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, running)
}

func TestMemoryGate_ReleaseAllowsReacquire(t *testing.T) {
	gate := NewMemoryGate()
	ctx := context.Background()

	acquired, err := gate.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, gate.Release(ctx, "wf-1"))

	running, err := gate.IsRunning(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, running)

	acquired, err = gate.Acquire(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryGate_ReleaseUnclaimedIsNoop(t *testing.T) {
	gate := NewMemoryGate()

	assert.NoError(t, gate.Release(context.Background(), "wf-never-ran"))
}
