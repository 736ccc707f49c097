package repository

import (
	"context"
	"errors"

	"github.com/rpattn/resourcekit/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a resource or history version does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrVersionConflict is returned by PatchVersion when the stored version
	// is not the expected one.
	ErrVersionConflict = errors.New("resource version conflict")
)

// ResourceRepository defines the interface for resource operations. Every
// write records a history entry.
type ResourceRepository interface {
	Create(ctx context.Context, resource domain.Resource) (domain.Resource, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Resource, error)
	// GetByIDs returns the resources that exist, in no particular order.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Resource, error)
	// List returns one page of resources of a type, oldest first, and the
	// total count. A non-positive limit returns every remaining resource.
	List(ctx context.Context, key domain.LookupKey, limit int, offset int) ([]domain.Resource, int, error)
	// Patch merges fields into the stored resource and bumps its version.
	Patch(ctx context.Context, id uuid.UUID, fields domain.Object) (domain.Resource, error)
	// PatchVersion is Patch applied only while the stored version equals
	// expected; otherwise nothing is written and ErrVersionConflict is
	// returned.
	PatchVersion(ctx context.Context, id uuid.UUID, expected int64, fields domain.Object) (domain.Resource, error)
	Delete(ctx context.Context, id uuid.UUID) error

	ListHistory(ctx context.Context, id uuid.UUID) ([]domain.ResourceHistory, error)
	GetHistoryByVersion(ctx context.Context, id uuid.UUID, version int64) (domain.ResourceHistory, error)
	// Rollback restores the fields of a previous version as a new version,
	// recreating the resource if it was deleted.
	Rollback(ctx context.Context, id uuid.UUID, toVersion int64) (domain.Resource, error)
}
