package schedule

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadamia-hq/macadamia/pkg/eventbus"
	"github.com/macadamia-hq/macadamia/pkg/events"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence/file"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func TestScheduler_ReloadRegistersScheduledWorkflows(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	scheduled := &models.Workflow{
		Title:       "Nightly check",
		Description: "Re-run the analysis every night",
		Schedule:    "0 2 * * *",
		Owner:       "user-1",
	}
	unscheduled := &models.Workflow{
		Title:       "Manual only",
		Description: "Run on demand",
	}
	badSpec := &models.Workflow{
		Title:       "Broken schedule",
		Description: "Invalid cron spec",
		Schedule:    "not-a-cron",
	}

	require.NoError(t, p.WorkflowRepository().Save(ctx, scheduled))
	require.NoError(t, p.WorkflowRepository().Save(ctx, unscheduled))
	require.NoError(t, p.WorkflowRepository().Save(ctx, badSpec))

	s := NewScheduler(p, &recordingPublisher{}, slog.Default())

	require.NoError(t, s.reload(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.entries, 1)
	assert.Contains(t, s.entries, scheduled.ID)
	assert.NotContains(t, s.entries, badSpec.ID, "invalid specs must be skipped, not fatal")
}

func TestScheduler_ReloadDropsRemovedSchedules(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := &models.Workflow{
		Title:       "Nightly check",
		Description: "Re-run the analysis every night",
		Schedule:    "0 2 * * *",
	}
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	s := NewScheduler(p, &recordingPublisher{}, slog.Default())
	require.NoError(t, s.reload(ctx))

	s.mu.Lock()
	require.Len(t, s.entries, 1)
	s.mu.Unlock()

	workflow.Schedule = ""
	require.NoError(t, p.WorkflowRepository().Update(ctx, workflow, 1))

	require.NoError(t, s.reload(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.entries)
}

func TestScheduler_FirePublishesRunRequested(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewScheduler(file.NewPersistence(t.TempDir()), pub, slog.Default())

	s.fire("wf-1", "user-1")()
	s.fire("wf-1", "user-1")()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)

	first, ok := pub.events[0].(events.WorkflowRunRequested)
	require.True(t, ok)
	second := pub.events[1].(events.WorkflowRunRequested)

	assert.Equal(t, "wf-1", first.WorkflowID)
	assert.Equal(t, "user-1", first.UserID)
	assert.NotEmpty(t, first.RunID)
	assert.NotEqual(t, first.RunID, second.RunID, "each firing gets its own run ID")
}
