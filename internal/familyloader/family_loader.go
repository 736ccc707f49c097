// Package familyloader batches family resource lookups made while filtering
// a page of resources.
package familyloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/filters"
	"github.com/rpattn/resourcekit/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// FamilyLoader loads resources by id, coalescing concurrent requests into a
// single repository call.
type FamilyLoader struct {
	Loader *dataloader.Loader
}

func NewFamilyLoader(repo repository.ResourceRepository) *FamilyLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		// Convert keys to []uuid.UUID
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results := make([]*dataloader.Result, len(keys))
				for j := range results {
					results[j] = &dataloader.Result{Error: fmt.Errorf("invalid UUID: %w", err)}
				}
				return results
			}
			ids[i] = id
		}

		// Fetch resources in batch
		resources, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Map UUID -> resource for ordering
		resourceMap := make(map[uuid.UUID]domain.Resource, len(resources))
		for _, r := range resources {
			resourceMap[r.ID] = r
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if r, ok := resourceMap[id]; ok {
				results[i] = &dataloader.Result{Data: r}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &FamilyLoader{Loader: loader}
}

// Load returns the resource with id, or nil when it does not exist.
func (l *FamilyLoader) Load(ctx context.Context, id uuid.UUID) (*domain.Resource, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return nil, err
	}
	resource, ok := data.(domain.Resource)
	if !ok {
		return nil, nil
	}
	return &resource, nil
}

// LoadMany resolves the family of every resource in one batch. The result
// maps family id to family resource; missing families are absent.
func (l *FamilyLoader) LoadMany(ctx context.Context, resources []domain.Resource) (map[uuid.UUID]domain.Resource, error) {
	seen := make(map[uuid.UUID]bool)
	var keys dataloader.Keys
	for _, r := range resources {
		if r.FamilyID == nil || seen[*r.FamilyID] {
			continue
		}
		seen[*r.FamilyID] = true
		keys = append(keys, dataloader.StringKey(r.FamilyID.String()))
	}

	out := make(map[uuid.UUID]domain.Resource, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	data, errs := l.Loader.LoadMany(ctx, keys)()
	for i, item := range data {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if family, ok := item.(domain.Resource); ok {
			out[family.ID] = family
		}
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Filter returns the resources of type key that pass active, in order. The
// families of the page are loaded in one batch. A nil active keeps every
// resource.
func (l *FamilyLoader) Filter(ctx context.Context, engine *filters.Engine, active *domain.ActiveFilters, key domain.LookupKey, resources []domain.Resource) ([]domain.Resource, error) {
	if active == nil {
		return resources, nil
	}
	families, err := l.LoadMany(ctx, resources)
	if err != nil {
		return nil, fmt.Errorf("load families: %w", err)
	}

	out := make([]domain.Resource, 0, len(resources))
	for _, r := range resources {
		var family domain.Object
		if r.FamilyID != nil {
			if f, ok := families[*r.FamilyID]; ok {
				family = f.Fields
			}
		}
		ok, err := engine.PassesFilters(active, key, r.Fields, family)
		if err != nil {
			return nil, fmt.Errorf("filter %s %s: %w", key, r.ID, err)
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
