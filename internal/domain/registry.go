package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// LookupKey names a resource type.
type LookupKey string

// ErrUnknownLookupKey is returned when a lookup key is not registered.
var ErrUnknownLookupKey = errors.New("unknown lookup key")

// FamilyRelation links a resource type to the family type it inherits
// defaults from. Field names the child field holding the family reference.
type FamilyRelation struct {
	FamilyKey LookupKey `json:"family_key"`
	Field     string    `json:"field"`
}

// LookupDefinition describes one resource type.
type LookupDefinition struct {
	Key         LookupKey                  `json:"key"`
	DisplayName string                     `json:"display_name"`
	Endpoint    string                     `json:"endpoint"`
	Fields      map[string]FieldDescriptor `json:"fields"`
	Family      *FamilyRelation            `json:"family,omitempty"`
}

// Registry is the static table of resource types, their fields and the
// autocomplete keys. It is built once and never mutated afterwards.
type Registry struct {
	baseURL      string
	order        []LookupKey
	lookups      map[LookupKey]LookupDefinition
	autocomplete map[string]string
}

// NewRegistry validates the definitions and builds an immutable registry.
// autocomplete maps autocomplete keys to their endpoint slugs.
func NewRegistry(baseURL string, definitions []LookupDefinition, autocomplete map[string]string) (*Registry, error) {
	r := &Registry{
		baseURL:      strings.TrimRight(baseURL, "/"),
		lookups:      make(map[LookupKey]LookupDefinition, len(definitions)),
		autocomplete: make(map[string]string, len(autocomplete)),
	}

	for _, def := range definitions {
		if def.Key == "" {
			return nil, fmt.Errorf("lookup definition missing key")
		}
		if _, exists := r.lookups[def.Key]; exists {
			return nil, fmt.Errorf("duplicate lookup key %s", def.Key)
		}
		if strings.TrimSpace(def.Endpoint) == "" {
			return nil, fmt.Errorf("lookup key %s missing endpoint", def.Key)
		}
		r.lookups[def.Key] = copyDefinition(def)
		r.order = append(r.order, def.Key)
	}

	for key, endpoint := range autocomplete {
		if _, clash := r.lookups[LookupKey(key)]; clash {
			return nil, fmt.Errorf("autocomplete key %s collides with a lookup key", key)
		}
		if strings.TrimSpace(endpoint) == "" {
			return nil, fmt.Errorf("autocomplete key %s missing endpoint", key)
		}
		r.autocomplete[key] = endpoint
	}

	for _, key := range r.order {
		def := r.lookups[key]
		if def.Family == nil {
			continue
		}
		if _, ok := r.lookups[def.Family.FamilyKey]; !ok {
			return nil, fmt.Errorf("lookup key %s declares unknown family %s", key, def.Family.FamilyKey)
		}
		if def.Family.FamilyKey == key {
			return nil, fmt.Errorf("lookup key %s cannot be its own family", key)
		}
	}

	for _, key := range r.order {
		for name, field := range r.lookups[key].Fields {
			if field.Type.IsPrimitive() {
				continue
			}
			if r.ParseTypeName(string(field.Type)) == TypeString {
				return nil, fmt.Errorf("field %s.%s has unknown type %s", key, name, field.Type)
			}
		}
	}

	return r, nil
}

func copyDefinition(def LookupDefinition) LookupDefinition {
	fields := make(map[string]FieldDescriptor, len(def.Fields))
	for name, field := range def.Fields {
		fields[name] = field
	}
	def.Fields = fields
	if def.Family != nil {
		family := *def.Family
		def.Family = &family
	}
	return def
}

// BaseURL returns the root used for resource URLs.
func (r *Registry) BaseURL() string {
	return r.baseURL
}

// LookupKeys returns the registered lookup keys in declaration order.
func (r *Registry) LookupKeys() []LookupKey {
	out := make([]LookupKey, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns a copy of the definition for key.
func (r *Registry) Lookup(key LookupKey) (LookupDefinition, bool) {
	def, ok := r.lookups[key]
	if !ok {
		return LookupDefinition{}, false
	}
	return copyDefinition(def), true
}

// Field returns the descriptor for one field of a resource type.
func (r *Registry) Field(key LookupKey, name string) (FieldDescriptor, bool) {
	def, ok := r.lookups[key]
	if !ok {
		return FieldDescriptor{}, false
	}
	field, ok := def.Fields[name]
	return field, ok
}

// FieldNames returns the fields of a resource type ordered by descending
// priority, then name.
func (r *Registry) FieldNames(key LookupKey) []string {
	def, ok := r.lookups[key]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(def.Fields))
	for name := range def.Fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		left, right := def.Fields[names[i]], def.Fields[names[j]]
		if left.Priority != right.Priority {
			return left.Priority > right.Priority
		}
		return names[i] < names[j]
	})
	return names
}

// FamilyOf returns the family relation of a resource type, if it has one.
func (r *Registry) FamilyOf(key LookupKey) (FamilyRelation, bool) {
	def, ok := r.lookups[key]
	if !ok || def.Family == nil {
		return FamilyRelation{}, false
	}
	return *def.Family, true
}

// IsLookupKey reports whether key is registered.
func (r *Registry) IsLookupKey(key LookupKey) bool {
	_, ok := r.lookups[key]
	return ok
}

// IsAutocompleteKey reports whether key is a registered autocomplete key.
func (r *Registry) IsAutocompleteKey(key string) bool {
	_, ok := r.autocomplete[key]
	return ok
}

// AutocompleteKeys returns the autocomplete keys sorted by name.
func (r *Registry) AutocompleteKeys() []string {
	keys := make([]string, 0, len(r.autocomplete))
	for key := range r.autocomplete {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ParseTypeName maps a raw tag to a TypeName. Primitive tags pass through;
// reference tags are accepted only when their key is registered. Anything
// else is treated as an opaque string.
func (r *Registry) ParseTypeName(tag string) TypeName {
	t := TypeName(tag)
	if t.IsPrimitive() {
		return t
	}
	if r.IsReferenceType(t) {
		return t
	}
	return TypeString
}

// IsReferenceType reports whether t is a reference tag with a registered key.
func (r *Registry) IsReferenceType(t TypeName) bool {
	if !t.IsReference() {
		return false
	}
	key := t.ReferenceKey()
	return r.IsLookupKey(LookupKey(key)) || r.IsAutocompleteKey(key)
}

// Endpoint returns the endpoint slug of a lookup or autocomplete key.
func (r *Registry) Endpoint(key string) (string, bool) {
	if def, ok := r.lookups[LookupKey(key)]; ok {
		return def.Endpoint, true
	}
	endpoint, ok := r.autocomplete[key]
	return endpoint, ok
}

// ResourceURL builds the canonical URL of a resource of the referenced type.
func (r *Registry) ResourceURL(t TypeName, id string) (string, bool) {
	endpoint, ok := r.Endpoint(t.ReferenceKey())
	if !ok || !t.IsReference() {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s/", r.baseURL, endpoint, id), true
}

// FamilyID returns the id of the family resource referenced by fields, or
// nil when key has no family or the reference does not name a resource id.
func (r *Registry) FamilyID(key LookupKey, fields Object) *uuid.UUID {
	relation, ok := r.FamilyOf(key)
	if !ok {
		return nil
	}
	ref, ok := fields[relation.Field].(String)
	if !ok {
		return nil
	}
	id, ok := ResourceIDFromURL(string(ref))
	if !ok {
		return nil
	}
	return &id
}

// ResourceIDFromURL extracts the trailing uuid of a resource URL. A bare uuid
// is accepted as well.
func ResourceIDFromURL(raw string) (uuid.UUID, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
