package validator

import (
	"errors"
	"testing"

	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/registry"
)

func newValidator(t *testing.T, strict bool) *FieldsValidator {
	t.Helper()
	reg, err := registry.Default("http://api.test")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return NewFieldsValidator(reg, strict)
}

func TestValidateFieldsReferenceField(t *testing.T) {
	v := newValidator(t, true)

	result := v.ValidateFields(registry.Cell, domain.Object{"family": domain.String("")})
	if result.IsValid {
		t.Fatalf("expected reference field to reject empty string")
	}

	result = v.ValidateFields(registry.Cell, domain.Object{"family": domain.String("   ")})
	if result.IsValid {
		t.Fatalf("expected reference field to reject whitespace value")
	}

	result = v.ValidateFields(registry.Cell, domain.Object{"family": domain.String("http://api.test/cell_families/1/")})
	if !result.IsValid {
		t.Fatalf("expected reference field to accept non-empty string, got errors: %+v", result.Errors)
	}
}

func TestValidateFieldsTypes(t *testing.T) {
	v := newValidator(t, true)

	result := v.ValidateFields(registry.Cell, domain.Object{
		"voltage":    domain.String("3.7"),
		"in_use":     domain.Boolean(true),
		"identifier": domain.Null{},
	})
	if result.IsValid || len(result.Errors) != 1 || result.Errors[0].Field != "voltage" {
		t.Fatalf("expected a single voltage error, got %+v", result.Errors)
	}

	result = v.ValidateFields(registry.CyclerTest, domain.Object{
		"equipment": domain.Array{domain.String("http://api.test/equipment/1/"), domain.Number(2)},
	})
	if result.IsValid {
		t.Fatalf("expected many-valued reference field to reject a number element")
	}
}

func TestValidateFieldsReadOnlyAndUnknown(t *testing.T) {
	v := newValidator(t, true)

	result := v.ValidateFields(registry.Cell, domain.Object{
		"id":      domain.String("abc"),
		"colour":  domain.String("red"),
		"voltage": domain.Number(3),
	})
	if result.IsValid || len(result.Errors) != 1 || result.Errors[0].Field != "id" {
		t.Fatalf("expected id to be rejected as read-only, got %+v", result.Errors)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Field != "colour" {
		t.Fatalf("expected a warning for the undefined field, got %+v", result.Warnings)
	}

	var asErr ValidationResult
	if !errors.As(error(result), &asErr) || asErr.Error() == "" {
		t.Fatalf("validation result should be usable as an error")
	}

	if result := v.ValidateFields("NOPE", domain.Object{}); result.IsValid {
		t.Fatalf("expected unknown lookup key to be invalid")
	}
}

func TestValidateCustomProperties(t *testing.T) {
	fields := domain.Object{
		domain.CustomPropertiesField: domain.Object{
			"batch": domain.CustomProperty{Type: domain.TypeNumber, Value: domain.String("seven")},
			"note":  domain.CustomProperty{Type: domain.TypeString, Value: domain.String("ok")},
		},
	}

	strict := newValidator(t, true).ValidateFields(registry.Cell, fields)
	if strict.IsValid || len(strict.Errors) != 1 || strict.Errors[0].Field != "custom_properties.batch" {
		t.Fatalf("strict mode should reject the mismatched property, got %+v", strict.Errors)
	}

	lenient := newValidator(t, false).ValidateFields(registry.Cell, fields)
	if !lenient.IsValid || len(lenient.Warnings) != 1 {
		t.Fatalf("lenient mode should only warn, got %+v", lenient)
	}

	plain := newValidator(t, false).ValidateFields(registry.Cell, domain.Object{
		domain.CustomPropertiesField: domain.Object{"raw": domain.Number(1)},
	})
	if plain.IsValid {
		t.Fatalf("untagged custom properties are always rejected")
	}
}
