package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CustomPropertiesField holds a resource's user-defined properties.
const CustomPropertiesField = "custom_properties"

// Resource is a metadata record of one registered type.
type Resource struct {
	ID        uuid.UUID  `json:"id"`
	LookupKey LookupKey  `json:"lookup_key"`
	FamilyID  *uuid.UUID `json:"family_id,omitempty"`
	Fields    Object     `json:"fields"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewResource creates a new resource with a fresh ID.
func NewResource(key LookupKey, familyID *uuid.UUID, fields Object) Resource {
	now := time.Now()
	return Resource{
		ID:        uuid.New(),
		LookupKey: key,
		FamilyID:  copyID(familyID),
		Fields:    fields.Clone(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithFields returns a new resource whose fields are replaced.
func (r Resource) WithFields(fields Object) Resource {
	return Resource{
		ID:        r.ID,
		LookupKey: r.LookupKey,
		FamilyID:  copyID(r.FamilyID),
		Fields:    fields.Clone(),
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: time.Now(),
	}
}

// WithPatch returns a new resource with patch merged over its fields. Custom
// properties are merged key by key rather than replaced wholesale.
func (r Resource) WithPatch(patch Object) Resource {
	merged := MergeFields(r.Fields, patch)
	next := r.WithFields(merged)
	next.Version = r.Version + 1
	return next
}

// MergeFields overlays patch on base without modifying either.
func MergeFields(base, patch Object) Object {
	merged := base.Clone()
	for key, value := range patch {
		if key == CustomPropertiesField {
			existing, _ := merged[key].(Object)
			incoming, ok := value.(Object)
			if ok {
				combined := existing.Clone()
				for name, prop := range incoming {
					combined[name] = Clone(prop)
				}
				merged[key] = combined
				continue
			}
		}
		merged[key] = Clone(value)
	}
	return merged
}

// CustomProperties returns the resource's custom property map, or an empty
// object when it has none.
func (r Resource) CustomProperties() Object {
	props, ok := r.Fields[CustomPropertiesField].(Object)
	if !ok {
		return Object{}
	}
	return props
}

// FieldsJSON encodes the fields for storage.
func (r Resource) FieldsJSON() (json.RawMessage, error) {
	if r.Fields == nil {
		r.Fields = Object{}
	}
	return json.Marshal(r.Fields)
}

// FromJSONFields decodes stored fields.
func FromJSONFields(fieldsJSON json.RawMessage) (Object, error) {
	if len(fieldsJSON) == 0 {
		return Object{}, nil
	}
	return DecodeObject(fieldsJSON)
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	out := *id
	return &out
}
