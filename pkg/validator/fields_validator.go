package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/notation"
)

// FieldsValidator checks resource fields against the registry
type FieldsValidator struct {
	registry *domain.Registry
	codec    *notation.Codec
	strict   bool
}

// NewFieldsValidator creates a validator. In strict mode custom properties
// whose values disagree with their tags are errors instead of warnings.
func NewFieldsValidator(reg *domain.Registry, strict bool) *FieldsValidator {
	return &FieldsValidator{registry: reg, codec: notation.NewCodec(reg), strict: strict}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

func (r *ValidationResult) addError(field, message string, value domain.Value) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: rawValue(value)})
}

func (r *ValidationResult) addWarning(field, message string, value domain.Value) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message, Value: rawValue(value)})
}

func rawValue(v domain.Value) any {
	if v == nil {
		return nil
	}
	return domain.ToAny(v)
}

// Error summarises the errors of an invalid result.
func (r ValidationResult) Error() string {
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Message
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// ValidateFields validates fields submitted for a resource of type key, as a
// create body or a patch. Read-only fields may not be written.
func (fv *FieldsValidator) ValidateFields(key domain.LookupKey, fields domain.Object) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	if !fv.registry.IsLookupKey(key) {
		result.addError("", fmt.Sprintf("unknown lookup key '%s'", key), nil)
		return result
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := fields[name]
		if name == domain.CustomPropertiesField {
			fv.validateCustomProperties(&result, value)
			continue
		}

		descriptor, ok := fv.registry.Field(key, name)
		if !ok {
			result.addWarning(name, fmt.Sprintf("field '%s' is not defined for %s", name, key), value)
			continue
		}
		if descriptor.ReadOnly {
			result.addError(name, fmt.Sprintf("field '%s' is read-only", name), value)
			continue
		}
		if _, isNull := value.(domain.Null); isNull || value == nil {
			continue
		}
		if err := fv.validateFieldType(name, value, descriptor); err != nil {
			result.addError(name, err.Error(), value)
		}
	}

	return result
}

// validateFieldType validates the type of a field value
func (fv *FieldsValidator) validateFieldType(fieldName string, value domain.Value, field domain.FieldDescriptor) error {
	if field.Many {
		items, ok := value.(domain.Array)
		if !ok {
			return fmt.Errorf("field '%s' must be an array, got %s", fieldName, value.Kind())
		}
		single := field
		single.Many = false
		for i, item := range items {
			if err := fv.validateFieldType(fmt.Sprintf("%s[%d]", fieldName, i), item, single); err != nil {
				return err
			}
		}
		return nil
	}

	if fv.registry.IsReferenceType(field.Type) {
		strVal, ok := value.(domain.String)
		if !ok {
			return fmt.Errorf("field '%s' must be a reference string, got %s", fieldName, value.Kind())
		}
		if strings.TrimSpace(string(strVal)) == "" {
			return fmt.Errorf("field '%s' must be a non-empty reference string", fieldName)
		}
		return nil
	}

	var want domain.Kind
	switch field.Type {
	case domain.TypeString:
		want = domain.KindString
	case domain.TypeNumber:
		want = domain.KindNumber
	case domain.TypeBoolean:
		want = domain.KindBoolean
	case domain.TypeArray:
		want = domain.KindArray
	case domain.TypeObject:
		want = domain.KindObject
	default:
		return fmt.Errorf("unknown field type: %s", field.Type)
	}
	if value.Kind() != want {
		return fmt.Errorf("field '%s' must be a %s, got %s", fieldName, want, value.Kind())
	}
	return nil
}

func (fv *FieldsValidator) validateCustomProperties(result *ValidationResult, value domain.Value) {
	props, ok := value.(domain.Object)
	if !ok {
		result.addError(domain.CustomPropertiesField, "custom properties must be an object", value)
		return
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := domain.CustomPropertiesField + "." + name
		cp, ok := props[name].(domain.CustomProperty)
		if !ok {
			result.addError(path, fmt.Sprintf("custom property '%s' must be a {_type, _value} object", name), props[name])
			continue
		}
		err := fv.codec.CheckStrict(path, cp)
		if err == nil {
			continue
		}
		var mismatch *notation.MismatchError
		if !errors.As(err, &mismatch) {
			result.addError(path, err.Error(), cp)
			continue
		}
		if fv.strict {
			result.addError(mismatch.Path, err.Error(), cp)
		} else {
			result.addWarning(mismatch.Path, err.Error(), cp)
		}
	}
}
