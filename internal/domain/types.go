package domain

import (
	"encoding/json"
	"strings"
)

// TypeName tags a value for rendering and editing. Besides the primitive tags
// it may name a resource reference: ReferencePrefix followed by a lookup key
// or an autocomplete key.
type TypeName string

const (
	TypeString  TypeName = "string"
	TypeNumber  TypeName = "number"
	TypeBoolean TypeName = "boolean"
	TypeObject  TypeName = "object"
	TypeArray   TypeName = "array"
)

// ReferencePrefix marks a TypeName as a resource reference.
const ReferencePrefix = "galv_"

// PrimitiveTypes lists the non-reference type tags.
var PrimitiveTypes = []TypeName{TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray}

// ReferenceType builds the reference tag for a lookup or autocomplete key.
func ReferenceType(key string) TypeName {
	return TypeName(ReferencePrefix + key)
}

// IsReference reports whether the tag carries the reference prefix. It does
// not check that the key is registered; see Registry.ParseTypeName.
func (t TypeName) IsReference() bool {
	return strings.HasPrefix(string(t), ReferencePrefix) && len(t) > len(ReferencePrefix)
}

// ReferenceKey returns the key part of a reference tag.
func (t TypeName) ReferenceKey() string {
	if !t.IsReference() {
		return ""
	}
	return strings.TrimPrefix(string(t), ReferencePrefix)
}

// IsPrimitive reports whether t is one of PrimitiveTypes.
func (t TypeName) IsPrimitive() bool {
	for _, primitive := range PrimitiveTypes {
		if t == primitive {
			return true
		}
	}
	return false
}

// Priority orders fields for display. Higher priorities are shown first.
type Priority int

const (
	PriorityHidden   Priority = -1
	PriorityContext  Priority = 0
	PrioritySummary  Priority = 1
	PriorityIdentity Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityHidden:
		return "HIDDEN"
	case PrioritySummary:
		return "SUMMARY"
	case PriorityIdentity:
		return "IDENTITY"
	default:
		return "CONTEXT"
	}
}

// FieldDescriptor is the static metadata for one field of a resource type.
type FieldDescriptor struct {
	Type     TypeName `json:"type"`
	ReadOnly bool     `json:"read_only"`
	Many     bool     `json:"many"`
	Priority Priority `json:"priority"`
}

// FieldCategory groups field types for filter applicability.
type FieldCategory string

const (
	CategoryString  FieldCategory = "string"
	CategoryNumber  FieldCategory = "number"
	CategoryBoolean FieldCategory = "boolean"
	CategoryArray   FieldCategory = "array"
	CategoryObject  FieldCategory = "object"
)

// Category returns the filter category of values stored under the field.
func (d FieldDescriptor) Category() FieldCategory {
	if d.Many {
		return CategoryArray
	}
	switch d.Type {
	case TypeNumber:
		return CategoryNumber
	case TypeBoolean:
		return CategoryBoolean
	case TypeArray:
		return CategoryArray
	case TypeObject:
		return CategoryObject
	default:
		return CategoryString
	}
}

// CategoryOf returns the filter category matching a value's runtime kind.
func CategoryOf(v Value) FieldCategory {
	switch typed := v.(type) {
	case Number:
		return CategoryNumber
	case Boolean:
		return CategoryBoolean
	case Array:
		return CategoryArray
	case Object:
		return CategoryObject
	case CustomProperty:
		return CategoryOf(typed.Value)
	default:
		return CategoryString
	}
}

// Notated is the {type, value} pair used to render and edit a value.
type Notated struct {
	Type  TypeName `json:"type"`
	Value Value    `json:"value"`
}

// MarshalJSON writes a null value when Value is unset.
func (n Notated) MarshalJSON() ([]byte, error) {
	value := n.Value
	if value == nil {
		value = Null{}
	}
	return json.Marshal(struct {
		Type  TypeName `json:"type"`
		Value Value    `json:"value"`
	}{Type: n.Type, Value: value})
}

// UnmarshalJSON decodes the value part into the Value sum type.
func (n *Notated) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  TypeName        `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Type = raw.Type
	n.Value = Null{}
	if len(raw.Value) > 0 {
		value, err := DecodeValue(raw.Value)
		if err != nil {
			return err
		}
		n.Value = value
	}
	return nil
}
