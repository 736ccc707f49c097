package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/resourcekit/internal/domain"
)

// memoryRepository implements ResourceRepository in process memory.
type memoryRepository struct {
	registry *domain.Registry

	mu        sync.RWMutex
	resources map[uuid.UUID]domain.Resource
	history   map[uuid.UUID][]domain.ResourceHistory
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(reg *domain.Registry) ResourceRepository {
	return &memoryRepository{
		registry:  reg,
		resources: make(map[uuid.UUID]domain.Resource),
		history:   make(map[uuid.UUID][]domain.ResourceHistory),
	}
}

// Create stores a new resource
func (r *memoryRepository) Create(ctx context.Context, resource domain.Resource) (domain.Resource, error) {
	if !r.registry.IsLookupKey(resource.LookupKey) {
		return domain.Resource{}, fmt.Errorf("%w: %s", domain.ErrUnknownLookupKey, resource.LookupKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[resource.ID]; exists {
		return domain.Resource{}, fmt.Errorf("resource %s already exists", resource.ID)
	}
	if resource.Version == 0 {
		resource.Version = 1
	}
	stored := copyResource(resource)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
		stored.UpdatedAt = stored.CreatedAt
	}

	r.resources[stored.ID] = stored
	r.record(stored, domain.ChangeTypeCreate)
	return copyResource(stored), nil
}

// GetByID retrieves a resource by ID
func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resource, ok := r.resources[id]
	if !ok {
		return domain.Resource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyResource(resource), nil
}

// GetByIDs retrieves the resources that exist among ids
func (r *memoryRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Resource, 0, len(ids))
	for _, id := range ids {
		if resource, ok := r.resources[id]; ok {
			out = append(out, copyResource(resource))
		}
	}
	return out, nil
}

// List retrieves one page of resources of a type
func (r *memoryRepository) List(ctx context.Context, key domain.LookupKey, limit int, offset int) ([]domain.Resource, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []domain.Resource
	for _, resource := range r.resources {
		if resource.LookupKey == key {
			matching = append(matching, resource)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		if !matching[i].CreatedAt.Equal(matching[j].CreatedAt) {
			return matching[i].CreatedAt.Before(matching[j].CreatedAt)
		}
		return matching[i].ID.String() < matching[j].ID.String()
	})

	total := len(matching)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	page := make([]domain.Resource, 0, end-offset)
	for _, resource := range matching[offset:end] {
		page = append(page, copyResource(resource))
	}
	return page, total, nil
}

// Patch merges fields into a stored resource
func (r *memoryRepository) Patch(ctx context.Context, id uuid.UUID, fields domain.Object) (domain.Resource, error) {
	return r.patch(id, nil, fields)
}

// PatchVersion merges fields if the stored resource is still at expected
func (r *memoryRepository) PatchVersion(ctx context.Context, id uuid.UUID, expected int64, fields domain.Object) (domain.Resource, error) {
	return r.patch(id, &expected, fields)
}

func (r *memoryRepository) patch(id uuid.UUID, expected *int64, fields domain.Object) (domain.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.resources[id]
	if !ok {
		return domain.Resource{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := checkVersion(current, expected); err != nil {
		return domain.Resource{}, err
	}
	next := current.WithPatch(fields)
	next.FamilyID = r.registry.FamilyID(next.LookupKey, next.Fields)

	r.resources[id] = next
	r.record(next, domain.ChangeTypeUpdate)
	return copyResource(next), nil
}

// Delete removes a resource, keeping its history
func (r *memoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.resources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.resources, id)
	current.UpdatedAt = time.Now()
	r.record(current, domain.ChangeTypeDelete)
	return nil
}

// ListHistory returns every recorded change of a resource, oldest first
func (r *memoryRepository) ListHistory(ctx context.Context, id uuid.UUID) ([]domain.ResourceHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, ok := r.history[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := make([]domain.ResourceHistory, len(entries))
	for i, entry := range entries {
		out[i] = copyHistory(entry)
	}
	return out, nil
}

// GetHistoryByVersion returns the state of a resource at version
func (r *memoryRepository) GetHistoryByVersion(ctx context.Context, id uuid.UUID, version int64) (domain.ResourceHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.historyAt(id, version)
}

func (r *memoryRepository) historyAt(id uuid.UUID, version int64) (domain.ResourceHistory, error) {
	entries := r.history[id]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Version == version && entries[i].ChangeType != domain.ChangeTypeDelete {
			return copyHistory(entries[i]), nil
		}
	}
	return domain.ResourceHistory{}, fmt.Errorf("%w: %s version %d", ErrNotFound, id, version)
}

// Rollback restores a previous version as a new version
func (r *memoryRepository) Rollback(ctx context.Context, id uuid.UUID, toVersion int64) (domain.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, err := r.historyAt(id, toVersion)
	if err != nil {
		return domain.Resource{}, err
	}

	if current, ok := r.resources[id]; ok {
		next := current.WithFields(snapshot.Fields)
		next.FamilyID = r.registry.FamilyID(next.LookupKey, next.Fields)
		next.Version = current.Version + 1
		r.resources[id] = next
		r.record(next, domain.ChangeTypeUpdate)
		return copyResource(next), nil
	}

	var maxVersion int64
	var createdAt time.Time
	for _, entry := range r.history[id] {
		if entry.Version > maxVersion {
			maxVersion = entry.Version
		}
		if entry.ChangeType == domain.ChangeTypeCreate {
			createdAt = entry.ChangedAt
		}
	}
	restored := domain.Resource{
		ID:        id,
		LookupKey: snapshot.LookupKey,
		FamilyID:  r.registry.FamilyID(snapshot.LookupKey, snapshot.Fields),
		Fields:    snapshot.Fields.Clone(),
		Version:   maxVersion + 1,
		CreatedAt: createdAt,
		UpdatedAt: time.Now(),
	}
	r.resources[id] = restored
	r.record(restored, domain.ChangeTypeCreate)
	return copyResource(restored), nil
}

func (r *memoryRepository) record(resource domain.Resource, changeType string) {
	r.history[resource.ID] = append(r.history[resource.ID], domain.NewResourceHistory(resource, changeType))
}

func copyResource(resource domain.Resource) domain.Resource {
	out := resource
	out.Fields = resource.Fields.Clone()
	if resource.FamilyID != nil {
		id := *resource.FamilyID
		out.FamilyID = &id
	}
	return out
}

func copyHistory(entry domain.ResourceHistory) domain.ResourceHistory {
	out := entry
	out.Fields = entry.Fields.Clone()
	if entry.FamilyID != nil {
		id := *entry.FamilyID
		out.FamilyID = &id
	}
	return out
}

// checkVersion fails with ErrVersionConflict when expected is set and does
// not match current.
func checkVersion(current domain.Resource, expected *int64) error {
	if expected == nil || current.Version == *expected {
		return nil
	}
	return fmt.Errorf("%w: %s is at version %d, expected %d", ErrVersionConflict, current.ID, current.Version, *expected)
}
