// Package schedule fires run-requested events for workflows that carry a cron
// schedule. It runs inside the worker process.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/macadamia-hq/macadamia/pkg/eventbus"
	"github.com/macadamia-hq/macadamia/pkg/events"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// defaultRefreshInterval controls how often the schedule set is reloaded from
// persistence so edits take effect without a restart.
const defaultRefreshInterval = time.Minute

// Scheduler keeps cron entries in sync with scheduled workflows and publishes
// a run-requested event each time one fires.
type Scheduler struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	refresh     time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // workflowID -> entry
	specs   map[string]string       // workflowID -> cron spec
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Entries are loaded on Start and refreshed
// periodically afterwards.
func NewScheduler(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "scheduler"),
		refresh:     defaultRefreshInterval,
		cron:        cron.New(),
		entries:     make(map[string]cron.EntryID),
		specs:       make(map[string]string),
	}
}

// Start loads the current schedule set and begins firing. It returns after
// spawning the refresh loop.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.reload(ctx); err != nil {
		return err
	}

	s.cron.Start()

	go func() {
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.reload(ctx); err != nil {
					s.logger.ErrorContext(ctx, "Failed to refresh schedules", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop halts firing and the refresh loop. Running jobs finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// reload diffs the stored schedule set against the registered cron entries.
func (s *Scheduler) reload(ctx context.Context) error {
	page, err := s.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{Limit: 100})
	if err != nil {
		return err
	}

	scheduled := make(map[string]*models.Workflow)

	for _, workflow := range page.Workflows {
		if workflow.Schedule != "" {
			scheduled[workflow.ID] = workflow
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for workflowID, entryID := range s.entries {
		workflow, still := scheduled[workflowID]
		if still && s.specs[workflowID] == workflow.Schedule {
			continue
		}

		s.cron.Remove(entryID)
		delete(s.entries, workflowID)
		delete(s.specs, workflowID)
	}

	for workflowID, workflow := range scheduled {
		if _, registered := s.entries[workflowID]; registered {
			continue
		}

		entryID, err := s.cron.AddFunc(workflow.Schedule, s.fire(workflowID, workflow.Owner))
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping workflow with invalid cron spec",
				"workflow_id", workflowID,
				"schedule", workflow.Schedule,
				"error", err)

			continue
		}

		s.entries[workflowID] = entryID
		s.specs[workflowID] = workflow.Schedule

		s.logger.InfoContext(ctx, "Registered workflow schedule",
			"workflow_id", workflowID,
			"schedule", workflow.Schedule)
	}

	return nil
}

// fire publishes a run-requested event with a fresh run ID per firing.
func (s *Scheduler) fire(workflowID, ownerID string) func() {
	return func() {
		ctx := context.Background()

		event := events.WorkflowRunRequested{
			BaseEvent: events.NewBaseEvent(events.WorkflowRunRequestedEvent, workflowID),
			RunID:     uuid.New().String(),
			UserID:    ownerID,
		}

		if err := s.publisher.Publish(ctx, workflowID, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish scheduled run request",
				"workflow_id", workflowID,
				"error", err)
		}
	}
}
