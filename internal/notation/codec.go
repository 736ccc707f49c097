package notation

import (
	"fmt"
	"sort"

	"github.com/rpattn/resourcekit/internal/domain"
)

// Codec converts between raw field values and their {type, value} notation.
type Codec struct {
	registry *domain.Registry
}

// NewCodec creates a codec that resolves reference tags against reg.
func NewCodec(reg *domain.Registry) *Codec {
	return &Codec{registry: reg}
}

// ParseTypeName maps a raw tag to a TypeName, treating unknown reference keys
// as opaque strings.
func (c *Codec) ParseTypeName(tag string) domain.TypeName {
	return c.registry.ParseTypeName(tag)
}

// Notate classifies value for rendering. field may be nil when the value has
// no registered descriptor, as with custom properties.
func (c *Codec) Notate(value domain.Value, field *domain.FieldDescriptor) domain.Notated {
	if cp, ok := value.(domain.CustomProperty); ok {
		return domain.Notated{Type: c.registry.ParseTypeName(string(cp.Type)), Value: orNull(cp.Value)}
	}

	if field != nil && c.registry.IsReferenceType(field.Type) {
		switch typed := value.(type) {
		case domain.String:
			if !field.Many {
				return domain.Notated{Type: field.Type, Value: typed}
			}
		case domain.Array:
			if field.Many {
				return domain.Notated{Type: domain.TypeArray, Value: c.referenceArray(field.Type, typed)}
			}
		}
	}

	return notateKind(value)
}

func (c *Codec) referenceArray(t domain.TypeName, items domain.Array) domain.Array {
	out := make(domain.Array, len(items))
	for i, item := range items {
		switch typed := item.(type) {
		case domain.String:
			out[i] = domain.CustomProperty{Type: t, Value: typed}
		case domain.CustomProperty:
			out[i] = typed
		default:
			out[i] = domain.Clone(item)
		}
	}
	return out
}

func notateKind(value domain.Value) domain.Notated {
	switch typed := value.(type) {
	case domain.String:
		return domain.Notated{Type: domain.TypeString, Value: typed}
	case domain.Number:
		return domain.Notated{Type: domain.TypeNumber, Value: typed}
	case domain.Boolean:
		return domain.Notated{Type: domain.TypeBoolean, Value: typed}
	case domain.Array:
		return domain.Notated{Type: domain.TypeArray, Value: domain.Clone(typed)}
	case domain.Object:
		return domain.Notated{Type: domain.TypeObject, Value: typed.Clone()}
	default:
		return domain.Notated{Type: domain.TypeString, Value: domain.String("")}
	}
}

// Denotate rebuilds the raw value of a notated field for submission.
// Reference elements inside arrays collapse back to their URL strings.
func (c *Codec) Denotate(n domain.Notated) domain.Value {
	switch typed := n.Value.(type) {
	case nil:
		return domain.Null{}
	case domain.Array:
		out := make(domain.Array, len(typed))
		for i, item := range typed {
			if cp, ok := item.(domain.CustomProperty); ok && c.registry.IsReferenceType(cp.Type) {
				out[i] = orNull(cp.Value)
				continue
			}
			out[i] = domain.Clone(item)
		}
		return out
	case domain.CustomProperty:
		return domain.Clone(typed.Value)
	default:
		return domain.Clone(typed)
	}
}

// DenotateCustom rebuilds a custom property from its notation.
func (c *Codec) DenotateCustom(n domain.Notated) domain.CustomProperty {
	return domain.CustomProperty{Type: c.registry.ParseTypeName(string(n.Type)), Value: c.Denotate(n)}
}

// NotatedField is one field of a resource prepared for rendering.
type NotatedField struct {
	Key      string          `json:"key"`
	Type     domain.TypeName `json:"type"`
	Value    domain.Value    `json:"value"`
	ReadOnly bool            `json:"read_only"`
	Custom   bool            `json:"custom"`
	Priority domain.Priority `json:"priority"`
}

// NotateResource notates every field of a resource, including each custom
// property. Fields are ordered by descending priority, then key; custom
// properties follow the registered fields.
func (c *Codec) NotateResource(key domain.LookupKey, fields domain.Object) []NotatedField {
	out := make([]NotatedField, 0, len(fields))
	for name, value := range fields {
		if name == domain.CustomPropertiesField {
			continue
		}
		descriptor, ok := c.registry.Field(key, name)
		var field *domain.FieldDescriptor
		if ok {
			field = &descriptor
		}
		n := c.Notate(value, field)
		out = append(out, NotatedField{
			Key:      name,
			Type:     n.Type,
			Value:    n.Value,
			ReadOnly: ok && descriptor.ReadOnly,
			Priority: priorityOf(descriptor, ok),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Key < out[j].Key
	})

	if props, ok := fields[domain.CustomPropertiesField].(domain.Object); ok {
		for _, name := range sortedKeys(props) {
			n := c.Notate(props[name], nil)
			out = append(out, NotatedField{
				Key:      name,
				Type:     n.Type,
				Value:    n.Value,
				Custom:   true,
				Priority: domain.PriorityContext,
			})
		}
	}
	return out
}

func priorityOf(descriptor domain.FieldDescriptor, registered bool) domain.Priority {
	if !registered {
		return domain.PriorityContext
	}
	return descriptor.Priority
}

func sortedKeys(o domain.Object) []string {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func orNull(v domain.Value) domain.Value {
	if v == nil {
		return domain.Null{}
	}
	return v
}

// WrapCustom builds the strict custom property tree for a raw value: every
// array element and object member becomes a CustomProperty itself.
func WrapCustom(v domain.Value) domain.CustomProperty {
	switch typed := v.(type) {
	case domain.CustomProperty:
		return domain.CustomProperty{Type: typed.Type, Value: wrapChildren(typed.Value)}
	case domain.String:
		return domain.CustomProperty{Type: domain.TypeString, Value: typed}
	case domain.Number:
		return domain.CustomProperty{Type: domain.TypeNumber, Value: typed}
	case domain.Boolean:
		return domain.CustomProperty{Type: domain.TypeBoolean, Value: typed}
	case domain.Array, domain.Object:
		t := domain.TypeArray
		if _, isObject := typed.(domain.Object); isObject {
			t = domain.TypeObject
		}
		return domain.CustomProperty{Type: t, Value: wrapChildren(typed)}
	default:
		return domain.CustomProperty{Type: domain.TypeString, Value: domain.String("")}
	}
}

func wrapChildren(v domain.Value) domain.Value {
	switch typed := v.(type) {
	case domain.Array:
		out := make(domain.Array, len(typed))
		for i, item := range typed {
			out[i] = WrapCustom(item)
		}
		return out
	case domain.Object:
		out := make(domain.Object, len(typed))
		for key, item := range typed {
			out[key] = WrapCustom(item)
		}
		return out
	default:
		return orNull(v)
	}
}

// UnwrapCustom strips every CustomProperty tag from v.
func UnwrapCustom(v domain.Value) domain.Value {
	switch typed := v.(type) {
	case domain.CustomProperty:
		return UnwrapCustom(typed.Value)
	case domain.Array:
		out := make(domain.Array, len(typed))
		for i, item := range typed {
			out[i] = UnwrapCustom(item)
		}
		return out
	case domain.Object:
		out := make(domain.Object, len(typed))
		for key, item := range typed {
			out[key] = UnwrapCustom(item)
		}
		return out
	case nil:
		return domain.Null{}
	default:
		return typed
	}
}

// MismatchError reports a custom property whose value disagrees with its tag.
type MismatchError struct {
	Path string
	Type domain.TypeName
	Got  domain.Kind
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s value tagged as %s", e.Path, e.Got, e.Type)
}

// CheckStrict verifies that cp's value agrees with its tag, recursing into
// arrays and objects whose members must all be custom properties.
func (c *Codec) CheckStrict(path string, cp domain.CustomProperty) error {
	t := c.registry.ParseTypeName(string(cp.Type))
	value := orNull(cp.Value)

	mismatch := func() error {
		return &MismatchError{Path: path, Type: cp.Type, Got: value.Kind()}
	}

	switch {
	case c.registry.IsReferenceType(t):
		if _, ok := value.(domain.String); !ok {
			return mismatch()
		}
	case t == domain.TypeNumber:
		if _, ok := value.(domain.Number); !ok {
			return mismatch()
		}
	case t == domain.TypeBoolean:
		if _, ok := value.(domain.Boolean); !ok {
			return mismatch()
		}
	case t == domain.TypeArray:
		items, ok := value.(domain.Array)
		if !ok {
			return mismatch()
		}
		for i, item := range items {
			if err := c.checkMember(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	case t == domain.TypeObject:
		members, ok := value.(domain.Object)
		if !ok {
			return mismatch()
		}
		for _, key := range sortedKeys(members) {
			if err := c.checkMember(path+"."+key, members[key]); err != nil {
				return err
			}
		}
	default:
		if _, ok := value.(domain.String); !ok {
			return mismatch()
		}
	}
	return nil
}

func (c *Codec) checkMember(path string, v domain.Value) error {
	cp, ok := v.(domain.CustomProperty)
	if !ok {
		return &MismatchError{Path: path, Type: "custom property", Got: orNull(v).Kind()}
	}
	return c.CheckStrict(path, cp)
}
