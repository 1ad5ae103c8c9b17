package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// RunRepository stores each run as runs/<id>.json.
type RunRepository struct {
	root string
	mu   *sync.Mutex
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string, mu *sync.Mutex) *RunRepository {
	return &RunRepository{root: root, mu: mu}
}

func (rr *RunRepository) dir() string {
	return filepath.Join(rr.root, "runs")
}

func (rr *RunRepository) path(id string) string {
	return filepath.Join(rr.dir(), id+".json")
}

func (rr *RunRepository) read(id string) (*models.WorkflowRun, error) {
	data, err := os.ReadFile(rr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var run models.WorkflowRun

	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

func (rr *RunRepository) write(run *models.WorkflowRun) error {
	if err := os.MkdirAll(rr.dir(), dirPerm); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	if err := os.WriteFile(rr.path(run.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	return nil
}

// Create inserts a run record, refusing duplicates by ID.
func (rr *RunRepository) Create(_ context.Context, run *models.WorkflowRun) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, err := os.Stat(rr.path(run.ID)); err == nil {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	}

	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	return rr.write(run)
}

// GetByID returns a run by its ID.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.read(id)
}

// Update rewrites an existing run record.
func (rr *RunRepository) Update(_ context.Context, run *models.WorkflowRun) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, err := rr.read(run.ID); err != nil {
		return persistence.NewRunError("Update", run.ID, persistence.ErrRunNotFound)
	}

	run.UpdatedAt = time.Now().UTC()

	return rr.write(run)
}

func (rr *RunRepository) byWorkflow(workflowID string) ([]*models.WorkflowRun, error) {
	root := os.DirFS(rr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.WorkflowRun, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.read(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

// ListByWorkflow returns the most recent runs for a workflow, newest first.
func (rr *RunRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	runs, err := rr.byWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// LatestByWorkflow returns the most recent run for a workflow.
func (rr *RunRepository) LatestByWorkflow(_ context.Context, workflowID string) (*models.WorkflowRun, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	runs, err := rr.byWorkflow(workflowID)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		return nil, persistence.NewRunError("LatestByWorkflow", workflowID, persistence.ErrRunNotFound)
	}

	return runs[0], nil
}
