package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/resourcekit/internal/db"
	"github.com/rpattn/resourcekit/internal/domain"
)

const resourceColumns = `id, lookup_key, family_id, fields, version, created_at, updated_at`

const historyColumns = `id, resource_id, lookup_key, family_id, fields, version, change_type, changed_at`

// postgresRepository implements ResourceRepository on a pgx pool
type postgresRepository struct {
	conn     *db.Connection
	registry *domain.Registry
}

// NewPostgresRepository creates a repository backed by the resources and
// resource_history tables.
func NewPostgresRepository(conn *db.Connection, reg *domain.Registry) ResourceRepository {
	return &postgresRepository{conn: conn, registry: reg}
}

// Create creates a new resource
func (r *postgresRepository) Create(ctx context.Context, resource domain.Resource) (domain.Resource, error) {
	if !r.registry.IsLookupKey(resource.LookupKey) {
		return domain.Resource{}, fmt.Errorf("%w: %s", domain.ErrUnknownLookupKey, resource.LookupKey)
	}
	fieldsJSON, err := resource.FieldsJSON()
	if err != nil {
		return domain.Resource{}, fmt.Errorf("failed to marshal fields: %w", err)
	}
	if resource.Version == 0 {
		resource.Version = 1
	}

	var created domain.Resource
	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO resources (id, lookup_key, family_id, fields, version)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+resourceColumns,
			resource.ID, string(resource.LookupKey), resource.FamilyID, fieldsJSON, resource.Version,
		)
		created, err = scanResource(row)
		if err != nil {
			return fmt.Errorf("failed to create resource: %w", err)
		}
		return insertHistory(ctx, tx, domain.NewResourceHistory(created, domain.ChangeTypeCreate))
	})
	if err != nil {
		return domain.Resource{}, err
	}
	return created, nil
}

// GetByID retrieves a resource by ID
func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Resource, error) {
	row := r.conn.Pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	resource, err := scanResource(row)
	if err != nil {
		return domain.Resource{}, notFound(err, id, "failed to get resource")
	}
	return resource, nil
}

// GetByIDs retrieves multiple resources by their IDs.
func (r *postgresRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Resource, error) {
	if len(ids) == 0 {
		return []domain.Resource{}, nil
	}

	rows, err := r.conn.Pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get resources by IDs: %w", err)
	}
	defer rows.Close()

	resources := make([]domain.Resource, 0, len(ids))
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get resources by IDs: %w", err)
	}
	return resources, nil
}

// List retrieves one page of resources of a type
func (r *postgresRepository) List(ctx context.Context, key domain.LookupKey, limit int, offset int) ([]domain.Resource, int, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.Pool.Query(ctx, `
		SELECT `+resourceColumns+`, count(*) OVER() AS total_count
		FROM resources
		WHERE lookup_key = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		string(key), limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	resources := []domain.Resource{}
	totalCount := 0
	for rows.Next() {
		var (
			resource   domain.Resource
			lookupKey  string
			fieldsJSON []byte
			total      int64
		)
		if err := rows.Scan(&resource.ID, &lookupKey, &resource.FamilyID, &fieldsJSON, &resource.Version, &resource.CreatedAt, &resource.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan resource: %w", err)
		}
		resource.LookupKey = domain.LookupKey(lookupKey)
		if resource.Fields, err = domain.FromJSONFields(fieldsJSON); err != nil {
			return nil, 0, fmt.Errorf("failed to decode fields for resource %s: %w", resource.ID, err)
		}
		totalCount = int(total)
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list resources: %w", err)
	}

	if len(resources) == 0 && offset > 0 {
		if err := r.conn.Pool.QueryRow(ctx, `SELECT count(*) FROM resources WHERE lookup_key = $1`, string(key)).Scan(&totalCount); err != nil {
			return nil, 0, fmt.Errorf("failed to count resources: %w", err)
		}
	}
	return resources, totalCount, nil
}

// Patch merges fields into a stored resource
func (r *postgresRepository) Patch(ctx context.Context, id uuid.UUID, fields domain.Object) (domain.Resource, error) {
	return r.patch(ctx, id, nil, fields)
}

// PatchVersion merges fields if the stored resource is still at expected.
// The row is locked for the check and the write.
func (r *postgresRepository) PatchVersion(ctx context.Context, id uuid.UUID, expected int64, fields domain.Object) (domain.Resource, error) {
	return r.patch(ctx, id, &expected, fields)
}

func (r *postgresRepository) patch(ctx context.Context, id uuid.UUID, expected *int64, fields domain.Object) (domain.Resource, error) {
	var updated domain.Resource
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		current, err := scanResource(tx.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, id, "failed to load resource")
		}
		if err := checkVersion(current, expected); err != nil {
			return err
		}

		next := current.WithPatch(fields)
		next.FamilyID = r.registry.FamilyID(next.LookupKey, next.Fields)
		updated, err = updateResource(ctx, tx, next, current.Version)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, domain.NewResourceHistory(updated, domain.ChangeTypeUpdate))
	})
	if err != nil {
		return domain.Resource{}, err
	}
	return updated, nil
}

// Delete deletes a resource, keeping its history
func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		current, err := scanResource(tx.QueryRow(ctx, `DELETE FROM resources WHERE id = $1 RETURNING `+resourceColumns, id))
		if err != nil {
			return notFound(err, id, "failed to delete resource")
		}
		current.UpdatedAt = time.Now()
		return insertHistory(ctx, tx, domain.NewResourceHistory(current, domain.ChangeTypeDelete))
	})
}

// ListHistory returns every recorded change of a resource, oldest first
func (r *postgresRepository) ListHistory(ctx context.Context, id uuid.UUID) ([]domain.ResourceHistory, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT `+historyColumns+`
		FROM resource_history
		WHERE resource_id = $1
		ORDER BY changed_at, version`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource history: %w", err)
	}
	defer rows.Close()

	var entries []domain.ResourceHistory
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list resource history: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entries, nil
}

// GetHistoryByVersion returns the state of a resource at version
func (r *postgresRepository) GetHistoryByVersion(ctx context.Context, id uuid.UUID, version int64) (domain.ResourceHistory, error) {
	return historyByVersion(ctx, r.conn.Pool, id, version)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func historyByVersion(ctx context.Context, q querier, id uuid.UUID, version int64) (domain.ResourceHistory, error) {
	row := q.QueryRow(ctx, `
		SELECT `+historyColumns+`
		FROM resource_history
		WHERE resource_id = $1 AND version = $2 AND change_type <> 'DELETE'
		ORDER BY changed_at DESC
		LIMIT 1`, id, version)
	entry, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResourceHistory{}, fmt.Errorf("%w: %s version %d", ErrNotFound, id, version)
		}
		return domain.ResourceHistory{}, fmt.Errorf("failed to load resource history: %w", err)
	}
	return entry, nil
}

// Rollback restores a previous version as a new version
func (r *postgresRepository) Rollback(ctx context.Context, id uuid.UUID, toVersion int64) (domain.Resource, error) {
	var restored domain.Resource
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		snapshot, err := historyByVersion(ctx, tx, id, toVersion)
		if err != nil {
			return err
		}

		current, currentErr := scanResource(tx.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1 FOR UPDATE`, id))
		if currentErr == nil {
			next := current.WithFields(snapshot.Fields)
			next.FamilyID = r.registry.FamilyID(next.LookupKey, next.Fields)
			next.Version = current.Version + 1
			if restored, err = updateResource(ctx, tx, next, current.Version); err != nil {
				return err
			}
			return insertHistory(ctx, tx, domain.NewResourceHistory(restored, domain.ChangeTypeUpdate))
		}
		if !errors.Is(currentErr, pgx.ErrNoRows) {
			return fmt.Errorf("failed to fetch resource for rollback: %w", currentErr)
		}

		var maxVersion int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM resource_history WHERE resource_id = $1`, id).Scan(&maxVersion); err != nil {
			return fmt.Errorf("failed to compute next resource version: %w", err)
		}
		fieldsJSON, err := json.Marshal(snapshot.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO resources (id, lookup_key, family_id, fields, version, created_at)
			VALUES ($1, $2, $3, $4, $5,
				COALESCE((SELECT MIN(changed_at) FROM resource_history WHERE resource_id = $1), now()))
			RETURNING `+resourceColumns,
			id, string(snapshot.LookupKey), r.registry.FamilyID(snapshot.LookupKey, snapshot.Fields), fieldsJSON, maxVersion+1,
		)
		if restored, err = scanResource(row); err != nil {
			return fmt.Errorf("failed to restore deleted resource: %w", err)
		}
		return insertHistory(ctx, tx, domain.NewResourceHistory(restored, domain.ChangeTypeCreate))
	})
	if err != nil {
		return domain.Resource{}, err
	}
	return restored, nil
}

// updateResource writes next over the row still at version from. A row that
// moved on is reported as ErrVersionConflict.
func updateResource(ctx context.Context, tx pgx.Tx, next domain.Resource, from int64) (domain.Resource, error) {
	fieldsJSON, err := next.FieldsJSON()
	if err != nil {
		return domain.Resource{}, fmt.Errorf("failed to marshal fields: %w", err)
	}
	row := tx.QueryRow(ctx, `
		UPDATE resources
		SET fields = $2, family_id = $3, version = $4, updated_at = now()
		WHERE id = $1 AND version = $5
		RETURNING `+resourceColumns,
		next.ID, fieldsJSON, next.FamilyID, next.Version, from,
	)
	updated, err := scanResource(row)
	if err != nil {
		return domain.Resource{}, updateError(err, next.ID, from)
	}
	return updated, nil
}

func updateError(err error, id uuid.UUID, from int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s is no longer at version %d", ErrVersionConflict, id, from)
	}
	return fmt.Errorf("failed to update resource: %w", err)
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry domain.ResourceHistory) error {
	fieldsJSON, err := json.Marshal(entry.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal history fields: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO resource_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ResourceID, string(entry.LookupKey), entry.FamilyID, fieldsJSON, entry.Version, entry.ChangeType, entry.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record resource history: %w", err)
	}
	return nil
}

func scanResource(row pgx.Row) (domain.Resource, error) {
	var (
		resource   domain.Resource
		lookupKey  string
		fieldsJSON []byte
	)
	if err := row.Scan(&resource.ID, &lookupKey, &resource.FamilyID, &fieldsJSON, &resource.Version, &resource.CreatedAt, &resource.UpdatedAt); err != nil {
		return domain.Resource{}, err
	}
	return buildResource(resource, lookupKey, fieldsJSON)
}

func buildResource(resource domain.Resource, lookupKey string, fieldsJSON []byte) (domain.Resource, error) {
	fields, err := domain.FromJSONFields(fieldsJSON)
	if err != nil {
		return domain.Resource{}, fmt.Errorf("failed to decode fields for resource %s: %w", resource.ID, err)
	}
	resource.LookupKey = domain.LookupKey(lookupKey)
	resource.Fields = fields
	return resource, nil
}

func scanHistory(row pgx.Row) (domain.ResourceHistory, error) {
	var (
		entry      domain.ResourceHistory
		lookupKey  string
		fieldsJSON []byte
	)
	if err := row.Scan(&entry.ID, &entry.ResourceID, &lookupKey, &entry.FamilyID, &fieldsJSON, &entry.Version, &entry.ChangeType, &entry.ChangedAt); err != nil {
		return domain.ResourceHistory{}, err
	}
	fields, err := domain.FromJSONFields(fieldsJSON)
	if err != nil {
		return domain.ResourceHistory{}, fmt.Errorf("failed to decode history fields for resource %s: %w", entry.ResourceID, err)
	}
	entry.LookupKey = domain.LookupKey(lookupKey)
	entry.Fields = fields
	return entry, nil
}

func notFound(err error, id uuid.UUID, message string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%s: %w", message, err)
}
