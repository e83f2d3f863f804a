package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tracelight-ai/codegraph-engine/pkg/apperrors"
	"github.com/tracelight-ai/codegraph-engine/pkg/database"
	"github.com/tracelight-ai/codegraph-engine/pkg/models"
)

// SourceFilter narrows a List call. Zero values mean "no filter".
type SourceFilter struct {
	Tenant      string
	SourceType  models.SourceType
	EnabledOnly bool
}

// SourceRepository defines the interface for source registry data access.
type SourceRepository interface {
	// Register inserts a source or updates its non-key fields if the derived
	// source_id already exists (idempotent upsert, last writer wins).
	Register(ctx context.Context, source *models.CodeSource) error
	Get(ctx context.Context, sourceID string) (*models.CodeSource, error)
	List(ctx context.Context, filter SourceFilter) ([]*models.CodeSource, error)
	// UpdateRevision records a successfully analyzed revision and timestamp.
	UpdateRevision(ctx context.Context, sourceID, revision string, analyzedAt time.Time) error
	SetEnabled(ctx context.Context, sourceID string, enabled bool) error
	Delete(ctx context.Context, sourceID string) error
}

// sourceRepository implements SourceRepository using PostgreSQL.
type sourceRepository struct {
	db *database.DB
}

// NewSourceRepository creates a new source registry repository.
func NewSourceRepository(db *database.DB) SourceRepository {
	return &sourceRepository{db: db}
}

// Register inserts or updates a code source. The primary key is the derived
// source_id, so re-registering the same (tenant, type, path) never creates a
// duplicate row.
func (r *sourceRepository) Register(ctx context.Context, source *models.CodeSource) error {
	if source.SourceID == "" {
		source.SourceID = models.DeriveSourceID(source.Tenant, source.SourceType, source.Path)
	}
	if source.Name == "" {
		source.Name = source.Path
	}

	now := time.Now()
	source.CreatedAt = now
	source.UpdatedAt = now

	languages, err := json.Marshal(source.Languages)
	if err != nil {
		return fmt.Errorf("failed to marshal languages: %w", err)
	}

	query := `
		INSERT INTO code_sources (source_id, tenant, source_type, path, name, languages, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_id) DO UPDATE
		SET tenant = EXCLUDED.tenant,
		    source_type = EXCLUDED.source_type,
		    path = EXCLUDED.path,
		    name = EXCLUDED.name,
		    languages = EXCLUDED.languages,
		    enabled = EXCLUDED.enabled,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		source.SourceID,
		source.Tenant,
		source.SourceType,
		source.Path,
		source.Name,
		languages,
		source.Enabled,
		source.CreatedAt,
		source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to register source: %w", err)
	}

	return nil
}

// Get retrieves a source by ID.
func (r *sourceRepository) Get(ctx context.Context, sourceID string) (*models.CodeSource, error) {
	query := `
		SELECT source_id, tenant, source_type, path, name, languages,
		       last_analyzed_revision, last_analyzed_time, enabled, created_at, updated_at
		FROM code_sources
		WHERE source_id = $1`

	source, err := scanSource(r.db.QueryRow(ctx, query, sourceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return source, nil
}

// List retrieves sources matching the filter, most recently updated first.
func (r *sourceRepository) List(ctx context.Context, filter SourceFilter) ([]*models.CodeSource, error) {
	query := `
		SELECT source_id, tenant, source_type, path, name, languages,
		       last_analyzed_revision, last_analyzed_time, enabled, created_at, updated_at
		FROM code_sources
		WHERE ($1 = '' OR tenant = $1)
		  AND ($2 = '' OR source_type = $2)
		  AND (NOT $3 OR enabled)
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, filter.Tenant, string(filter.SourceType), filter.EnabledOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.CodeSource
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}

	return sources, nil
}

// UpdateRevision advances the last analyzed revision for a source. Called by
// the orchestrator only after a successful publish.
func (r *sourceRepository) UpdateRevision(ctx context.Context, sourceID, revision string, analyzedAt time.Time) error {
	query := `
		UPDATE code_sources
		SET last_analyzed_revision = $2, last_analyzed_time = $3, updated_at = $4
		WHERE source_id = $1`

	result, err := r.db.Exec(ctx, query, sourceID, revision, analyzedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update revision: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// SetEnabled toggles whether a source participates in orchestration.
func (r *sourceRepository) SetEnabled(ctx context.Context, sourceID string, enabled bool) error {
	query := `UPDATE code_sources SET enabled = $2, updated_at = $3 WHERE source_id = $1`

	result, err := r.db.Exec(ctx, query, sourceID, enabled, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes a source from the registry. Published graph data and stored
// artifacts are not removed here; cleanup is an explicit separate call.
func (r *sourceRepository) Delete(ctx context.Context, sourceID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM code_sources WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// scanSource reads one code_sources row.
func scanSource(row pgx.Row) (*models.CodeSource, error) {
	var source models.CodeSource
	var languages []byte

	err := row.Scan(
		&source.SourceID,
		&source.Tenant,
		&source.SourceType,
		&source.Path,
		&source.Name,
		&languages,
		&source.LastAnalyzedRevision,
		&source.LastAnalyzedTime,
		&source.Enabled,
		&source.CreatedAt,
		&source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(languages, &source.Languages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal languages: %w", err)
	}

	return &source, nil
}

// Ensure sourceRepository implements SourceRepository at compile time.
var _ SourceRepository = (*sourceRepository)(nil)
