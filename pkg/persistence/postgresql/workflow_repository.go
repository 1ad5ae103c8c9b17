package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , title
  , description
  , instructions
  , status
  , owner
  , schedule
  , version
  , created_at
  , updated_at
  , last_run
  , deleted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		owner    sql.NullString
		lastRun  sql.NullTime
		deleted  sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Title,
		&workflow.Description,
		&workflow.Instructions,
		&workflow.Status,
		&owner,
		&workflow.Schedule,
		&workflow.Version,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&lastRun,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	workflow.Owner = owner.String

	if lastRun.Valid {
		workflow.LastRun = &lastRun.Time
	}

	if deleted.Valid {
		workflow.DeletedAt = &deleted.Time
	}

	return &workflow, nil
}

// List returns a page of workflows with total count metadata.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowPage, error) {
	where := "WHERE deleted_at IS NULL"
	args := []any{}

	if opts.OwnerID != "" {
		args = append(args, opts.OwnerID)
		where += fmt.Sprintf(" AND owner = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	args = append(args, limit, opts.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM workflows %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		workflowColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return &persistence.WorkflowPage{
		Workflows:   workflows,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(workflows)) < total,
	}, nil
}

// GetByID returns a workflow with its nodes, edges, and attached resource IDs.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := fmt.Sprintf("SELECT %s FROM workflows WHERE id = $1 AND deleted_at IS NULL", workflowColumns)

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := r.loadNodes(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load workflow nodes: %w", err)
	}

	edges, err := r.loadEdges(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load workflow edges: %w", err)
	}

	resourceIDs, err := r.loadResourceIDs(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load workflow resource ids: %w", err)
	}

	workflow.Nodes = nodes
	workflow.Edges = edges
	workflow.ResourceIDs = resourceIDs

	return nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflowID string) ([]*models.Node, error) {
	query := `
		SELECT id, node_type, label, status, progress, payload, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	nodes := make([]*models.Node, 0)

	for rows.Next() {
		var (
			node    models.Node
			payload []byte
		)

		err := rows.Scan(&node.ID, &node.Type, &node.Label, &node.Status, &node.Progress, &payload, &node.PositionX, &node.PositionY)
		if err != nil {
			return nil, err
		}

		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &node.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal node payload: %w", err)
			}
		}

		nodes = append(nodes, &node)
	}

	return nodes, rows.Err()
}

func (r *WorkflowRepository) loadEdges(ctx context.Context, workflowID string) ([]*models.Edge, error) {
	query := `
		SELECT id, source_node_id, target_node_id
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	edges := make([]*models.Edge, 0)

	for rows.Next() {
		var edge models.Edge

		err := rows.Scan(&edge.ID, &edge.Source, &edge.Target)
		if err != nil {
			return nil, err
		}

		edges = append(edges, &edge)
	}

	return edges, rows.Err()
}

func (r *WorkflowRepository) loadResourceIDs(ctx context.Context, workflowID string) ([]string, error) {
	query := `
		SELECT resource_id
		FROM workflows_resources
		WHERE workflow_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Save inserts a workflow together with its nodes and edges.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.Version == 0 {
		workflow.Version = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO workflows (id, title, description, instructions, status, owner, schedule, version, created_at, updated_at, last_run)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = tx.ExecContext(ctx, query,
		workflow.ID,
		workflow.Title,
		workflow.Description,
		workflow.Instructions,
		string(workflow.Status),
		nullableString(workflow.Owner),
		workflow.Schedule,
		workflow.Version,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		nullableTime(workflow.LastRun),
	)
	if err != nil {
		_ = tx.Rollback()

		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if err := r.insertGraph(ctx, tx, workflow); err != nil {
		_ = tx.Rollback()

		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update replaces the workflow and its graph if the stored version still
// matches expectedVersion, bumping the version on success.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow, expectedVersion int64) error {
	workflow.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		UPDATE workflows
		SET title = $1
		  , description = $2
		  , instructions = $3
		  , status = $4
		  , schedule = $5
		  , version = version + 1
		  , updated_at = $6
		WHERE id = $7 AND version = $8 AND deleted_at IS NULL
	`

	result, err := tx.ExecContext(ctx, query,
		workflow.Title,
		workflow.Description,
		workflow.Instructions,
		string(workflow.Status),
		workflow.Schedule,
		workflow.UpdatedAt,
		workflow.ID,
		expectedVersion,
	)
	if err != nil {
		_ = tx.Rollback()

		return persistence.NewWorkflowError("Update", workflow.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()

		return persistence.NewWorkflowError("Update", workflow.ID, err)
	}

	if affected == 0 {
		_ = tx.Rollback()

		// Either the row is gone or a concurrent writer bumped the version.
		if _, getErr := r.GetByID(ctx, workflow.ID); getErr != nil {
			return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrVersionConflict)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID); err != nil {
		_ = tx.Rollback()

		return persistence.NewWorkflowError("Update", workflow.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM workflow_edges WHERE workflow_id = $1", workflow.ID); err != nil {
		_ = tx.Rollback()

		return persistence.NewWorkflowError("Update", workflow.ID, err)
	}

	if err := r.insertGraph(ctx, tx, workflow); err != nil {
		_ = tx.Rollback()

		return persistence.NewWorkflowError("Update", workflow.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	workflow.Version = expectedVersion + 1

	return nil
}

func (r *WorkflowRepository) insertGraph(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	nodeQuery := `
		INSERT INTO workflow_nodes (workflow_id, id, node_type, label, status, progress, payload, position_x, position_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, node := range workflow.Nodes {
		status := node.Status
		if status == "" {
			status = models.NodeStatusPending
		}

		payload, err := json.Marshal(node.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal node payload: %w", err)
		}

		_, err = tx.ExecContext(ctx, nodeQuery,
			workflow.ID, node.ID, string(node.Type), node.Label,
			string(status), node.Progress, payload, node.PositionX, node.PositionY,
		)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	edgeQuery := `
		INSERT INTO workflow_edges (workflow_id, id, source_node_id, target_node_id)
		VALUES ($1, $2, $3, $4)
	`

	for _, edge := range workflow.Edges {
		id := edge.ID
		if id == "" {
			id = uuid.New().String()
		}

		_, err := tx.ExecContext(ctx, edgeQuery, workflow.ID, id, edge.Source, edge.Target)
		if err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", id, err)
		}
	}

	return nil
}

// UpdateStatus transitions the workflow status without touching the version
// counter, so the execution job never conflicts with user edits.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, lastRun *time.Time) error {
	query := `
		UPDATE workflows
		SET status = $1
		  , last_run = COALESCE($2, last_run)
		  , updated_at = $3
		WHERE id = $4 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, string(status), nullableTime(lastRun), time.Now().UTC(), id)
	if err != nil {
		return persistence.NewWorkflowError("UpdateStatus", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("UpdateStatus", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("UpdateStatus", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := "UPDATE workflows SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL"

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// AttachResource links a resource to a workflow. Attaching twice is a no-op.
func (r *WorkflowRepository) AttachResource(ctx context.Context, workflowID, resourceID string) error {
	query := `
		INSERT INTO workflows_resources (workflow_id, resource_id)
		VALUES ($1, $2)
		ON CONFLICT (workflow_id, resource_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, workflowID, resourceID)
	if err != nil {
		return persistence.NewWorkflowError("AttachResource", workflowID, err)
	}

	return nil
}

// DetachResource removes a resource link from a workflow.
func (r *WorkflowRepository) DetachResource(ctx context.Context, workflowID, resourceID string) error {
	query := "DELETE FROM workflows_resources WHERE workflow_id = $1 AND resource_id = $2"

	result, err := r.db.ExecContext(ctx, query, workflowID, resourceID)
	if err != nil {
		return persistence.NewWorkflowError("DetachResource", workflowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("DetachResource", workflowID, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("DetachResource", workflowID, persistence.ErrResourceNotAttached)
	}

	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}
