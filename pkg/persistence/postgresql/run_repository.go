package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

const uniqueViolation = "23505"

// RunRepository handles workflow run history.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
	id
  , workflow_id
  , user_id
  , resource_ids
  , status
  , status_message
  , result
  , output_resource_id
  , created_at
  , updated_at
  , completed_at
`

func (r *RunRepository) scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run         models.WorkflowRun
		userID      sql.NullString
		resourceIDs []byte
		outputID    sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&userID,
		&resourceIDs,
		&run.Status,
		&run.StatusMessage,
		&run.Result,
		&outputID,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.UserID = userID.String

	if len(resourceIDs) > 0 {
		if err := json.Unmarshal(resourceIDs, &run.ResourceIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resource ids: %w", err)
		}
	}

	if outputID.Valid {
		run.OutputResourceID = &outputID.String
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}

// Create inserts a run record. Inserting the same run ID twice returns
// ErrRunAlreadyExists, which the worker uses to deduplicate redelivered
// execution requests.
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	resourceIDs := run.ResourceIDs
	if resourceIDs == nil {
		resourceIDs = []string{}
	}

	encoded, err := json.Marshal(resourceIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal resource ids: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (id, workflow_id, user_id, resource_ids, status, status_message, result, output_resource_id, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		nullableString(run.UserID),
		encoded,
		string(run.Status),
		run.StatusMessage,
		run.Result,
		nullableStringPtr(run.OutputResourceID),
		run.CreatedAt,
		run.UpdatedAt,
		nullableTime(run.CompletedAt),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
		}

		return persistence.NewRunError("Create", run.ID, err)
	}

	return nil
}

// GetByID returns a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := fmt.Sprintf("SELECT %s FROM workflow_runs WHERE id = $1", runColumns)

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// Update rewrites the mutable columns of a run record.
func (r *RunRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	run.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE workflow_runs
		SET status = $1
		  , status_message = $2
		  , result = $3
		  , output_resource_id = $4
		  , updated_at = $5
		  , completed_at = $6
		WHERE id = $7
	`

	result, err := r.db.ExecContext(ctx, query,
		string(run.Status),
		run.StatusMessage,
		run.Result,
		nullableStringPtr(run.OutputResourceID),
		run.UpdatedAt,
		nullableTime(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	if affected == 0 {
		return persistence.NewRunError("Update", run.ID, persistence.ErrRunNotFound)
	}

	return nil
}

// ListByWorkflow returns the most recent runs for a workflow, newest first.
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(
		"SELECT %s FROM workflow_runs WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2",
		runColumns,
	)

	rows, err := r.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LatestByWorkflow returns the most recent run for a workflow.
func (r *RunRepository) LatestByWorkflow(ctx context.Context, workflowID string) (*models.WorkflowRun, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM workflow_runs WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT 1",
		runColumns,
	)

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("LatestByWorkflow", workflowID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

func nullableStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}
