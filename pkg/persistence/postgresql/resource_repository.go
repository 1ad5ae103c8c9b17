package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/macadamia-hq/macadamia/pkg/models"
	"github.com/macadamia-hq/macadamia/pkg/persistence"
)

// ResourceRepository handles resource-related database operations.
type ResourceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewResourceRepository creates a new resource repository.
func NewResourceRepository(db *sql.DB, logger *slog.Logger) *ResourceRepository {
	return &ResourceRepository{db: db, logger: logger}
}

const resourceColumns = `
	id
  , title
  , description
  , content_as_text
  , file_type
  , status
  , owner
  , created_at
  , updated_at
`

func (r *ResourceRepository) scanResource(row rowScanner) (*models.Resource, error) {
	var (
		resource models.Resource
		owner    sql.NullString
	)

	err := row.Scan(
		&resource.ID,
		&resource.Title,
		&resource.Description,
		&resource.ContentAsText,
		&resource.FileType,
		&resource.Status,
		&owner,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	resource.Owner = owner.String

	return &resource, nil
}

// List returns resources, optionally filtered by owner, newest first.
func (r *ResourceRepository) List(ctx context.Context, ownerID string) ([]*models.Resource, error) {
	query := fmt.Sprintf("SELECT %s FROM resources", resourceColumns)
	args := []any{}

	if ownerID != "" {
		query += " WHERE owner = $1"
		args = append(args, ownerID)
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	resources := make([]*models.Resource, 0)

	for rows.Next() {
		resource, err := r.scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}

		resources = append(resources, resource)
	}

	return resources, rows.Err()
}

// GetByID returns a resource by its ID.
func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	query := fmt.Sprintf("SELECT %s FROM resources WHERE id = $1", resourceColumns)

	resource, err := r.scanResource(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrResourceNotFound
		}

		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}

	return resource, nil
}

// GetByIDs returns the resources for the given IDs. Missing IDs are skipped,
// mirroring how the execution job treats detached-in-the-meantime resources.
func (r *ResourceRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Resource, error) {
	if len(ids) == 0 {
		return []*models.Resource{}, nil
	}

	query := fmt.Sprintf(
		"SELECT %s FROM resources WHERE id = ANY($1) ORDER BY created_at",
		resourceColumns,
	)

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	resources := make([]*models.Resource, 0, len(ids))

	for rows.Next() {
		resource, err := r.scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}

		resources = append(resources, resource)
	}

	return resources, rows.Err()
}

// Save inserts or replaces a resource.
func (r *ResourceRepository) Save(ctx context.Context, resource *models.Resource) error {
	now := time.Now().UTC()

	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}

	resource.UpdatedAt = now

	if resource.ID == "" {
		resource.ID = uuid.New().String()
	}

	if resource.Status == "" {
		resource.Status = models.ResourceStatusProcessing
	}

	query := `
		INSERT INTO resources (id, title, description, content_as_text, file_type, status, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title
		  , description = EXCLUDED.description
		  , content_as_text = EXCLUDED.content_as_text
		  , file_type = EXCLUDED.file_type
		  , status = EXCLUDED.status
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		resource.ID,
		resource.Title,
		resource.Description,
		resource.ContentAsText,
		resource.FileType,
		string(resource.Status),
		nullableString(resource.Owner),
		resource.CreatedAt,
		resource.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save resource %s: %w", resource.ID, err)
	}

	return nil
}

// UpdateContent stores freshly extracted text and the processing outcome.
func (r *ResourceRepository) UpdateContent(ctx context.Context, id, contentAsText string, status models.ResourceStatus) error {
	query := `
		UPDATE resources
		SET content_as_text = $1, status = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, contentAsText, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update resource %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update resource %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrResourceNotFound
	}

	return nil
}

// Delete removes a resource and its workflow attachments (cascade).
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM resources WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete resource %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete resource %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrResourceNotFound
	}

	return nil
}
