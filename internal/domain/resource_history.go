package domain

import (
	"time"

	"github.com/google/uuid"
)

// Change types recorded in resource history.
const (
	ChangeTypeCreate = "CREATE"
	ChangeTypeUpdate = "UPDATE"
	ChangeTypeDelete = "DELETE"
)

// ResourceHistory captures a historical snapshot of a resource version.
type ResourceHistory struct {
	ID         uuid.UUID  `json:"id"`
	ResourceID uuid.UUID  `json:"resource_id"`
	LookupKey  LookupKey  `json:"lookup_key"`
	FamilyID   *uuid.UUID `json:"family_id,omitempty"`
	Fields     Object     `json:"fields"`
	Version    int64      `json:"version"`
	ChangeType string     `json:"change_type"`
	ChangedAt  time.Time  `json:"changed_at"`
}

// NewResourceHistory records the state of r after a change.
func NewResourceHistory(r Resource, changeType string) ResourceHistory {
	return ResourceHistory{
		ID:         uuid.New(),
		ResourceID: r.ID,
		LookupKey:  r.LookupKey,
		FamilyID:   copyID(r.FamilyID),
		Fields:     r.Fields.Clone(),
		Version:    r.Version,
		ChangeType: changeType,
		ChangedAt:  r.UpdatedAt,
	}
}
