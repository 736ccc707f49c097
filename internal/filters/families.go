package filters

import (
	"fmt"
	"strings"

	"github.com/rpattn/resourcekit/internal/domain"
)

// Operator family names.
const (
	Is                 domain.FamilyName = "is"
	Includes           domain.FamilyName = "includes"
	StartsWith         domain.FamilyName = "starts with"
	HasSubstring       domain.FamilyName = "has substring"
	EndsWith           domain.FamilyName = "ends with"
	LessThan           domain.FamilyName = "less than"
	GreaterThan        domain.FamilyName = "greater than"
	LessThanOrEqual    domain.FamilyName = "less than or equal"
	GreaterThanOrEqual domain.FamilyName = "greater than or equal"
	NotEqualTo         domain.FamilyName = "not equal to"
)

// Predicate tests a field value against a filter operand.
type Predicate func(value, testVersus domain.Value) (bool, error)

// Family is a comparison operator together with the field categories it can
// be applied to.
type Family struct {
	Name      domain.FamilyName      `json:"name"`
	AppliesTo []domain.FieldCategory `json:"applies_to"`
	Test      Predicate              `json:"-"`
}

// UnsupportedTypeError is returned when an operator meets a value kind it
// cannot compare.
type UnsupportedTypeError struct {
	Family domain.FamilyName
	Kind   domain.Kind
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("filter %q cannot be applied to %s values", e.Family, e.Kind)
}

// Families is an immutable table of operator families.
type Families struct {
	order  []domain.FamilyName
	byName map[domain.FamilyName]Family
}

// NewFamilies builds a table from the given families.
func NewFamilies(families ...Family) (*Families, error) {
	f := &Families{byName: make(map[domain.FamilyName]Family, len(families))}
	for _, family := range families {
		if family.Test == nil {
			return nil, fmt.Errorf("filter family %q has no predicate", family.Name)
		}
		if _, exists := f.byName[family.Name]; exists {
			return nil, fmt.Errorf("duplicate filter family %q", family.Name)
		}
		f.byName[family.Name] = family
		f.order = append(f.order, family.Name)
	}
	return f, nil
}

// DefaultFamilies returns the built-in operator families.
func DefaultFamilies() *Families {
	strs := []domain.FieldCategory{domain.CategoryString}
	nums := []domain.FieldCategory{domain.CategoryNumber}

	f, err := NewFamilies(
		Family{Name: Is, AppliesTo: []domain.FieldCategory{domain.CategoryString, domain.CategoryNumber, domain.CategoryBoolean}, Test: isEqual},
		Family{Name: Includes, AppliesTo: []domain.FieldCategory{domain.CategoryArray}, Test: includes},
		Family{Name: StartsWith, AppliesTo: strs, Test: textTest(strings.HasPrefix)},
		Family{Name: HasSubstring, AppliesTo: strs, Test: textTest(strings.Contains)},
		Family{Name: EndsWith, AppliesTo: strs, Test: textTest(strings.HasSuffix)},
		Family{Name: LessThan, AppliesTo: nums, Test: numberTest(func(a, b float64) bool { return a < b })},
		Family{Name: GreaterThan, AppliesTo: nums, Test: numberTest(func(a, b float64) bool { return a > b })},
		Family{Name: LessThanOrEqual, AppliesTo: nums, Test: numberTest(func(a, b float64) bool { return a <= b })},
		Family{Name: GreaterThanOrEqual, AppliesTo: nums, Test: numberTest(func(a, b float64) bool { return a >= b })},
		Family{Name: NotEqualTo, AppliesTo: nums, Test: numberTest(func(a, b float64) bool { return a != b })},
	)
	if err != nil {
		panic(err)
	}
	return f
}

// Names returns the family names in registration order.
func (f *Families) Names() []domain.FamilyName {
	out := make([]domain.FamilyName, len(f.order))
	copy(out, f.order)
	return out
}

// Get returns the named family.
func (f *Families) Get(name domain.FamilyName) (Family, bool) {
	family, ok := f.byName[name]
	return family, ok
}

// List returns every family in registration order.
func (f *Families) List() []Family {
	out := make([]Family, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.byName[name])
	}
	return out
}

// Applicable reports whether the named family may be used on fields of the
// given category.
func (f *Families) Applicable(name domain.FamilyName, category domain.FieldCategory) bool {
	family, ok := f.byName[name]
	if !ok {
		return false
	}
	for _, c := range family.AppliesTo {
		if c == category {
			return true
		}
	}
	return false
}

// For returns the names of the families applicable to category.
func (f *Families) For(category domain.FieldCategory) []domain.FamilyName {
	var out []domain.FamilyName
	for _, name := range f.order {
		if f.Applicable(name, category) {
			out = append(out, name)
		}
	}
	return out
}

func unwrap(v domain.Value) domain.Value {
	for {
		cp, ok := v.(domain.CustomProperty)
		if !ok {
			break
		}
		v = cp.Value
	}
	if v == nil {
		return domain.Null{}
	}
	return v
}

func lowerText(v domain.Value) string {
	return strings.ToLower(domain.Text(unwrap(v)))
}

func isEqual(value, testVersus domain.Value) (bool, error) {
	switch typed := unwrap(value).(type) {
	case domain.String:
		return strings.ToLower(string(typed)) == lowerText(testVersus), nil
	case domain.Number:
		return float64(typed) == domain.NumberOf(unwrap(testVersus)), nil
	case domain.Boolean:
		return bool(typed) == booleanOperand(testVersus), nil
	default:
		return false, &UnsupportedTypeError{Family: Is, Kind: typed.Kind()}
	}
}

func booleanOperand(v domain.Value) bool {
	if s, ok := unwrap(v).(domain.String); ok {
		switch strings.ToLower(strings.TrimSpace(string(s))) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return domain.Truthy(unwrap(v))
}

func includes(value, testVersus domain.Value) (bool, error) {
	items, ok := unwrap(value).(domain.Array)
	if !ok {
		return false, nil
	}
	want := lowerText(testVersus)
	for _, item := range items {
		if lowerText(item) == want {
			return true, nil
		}
	}
	return false, nil
}

func textTest(op func(s, substr string) bool) Predicate {
	return func(value, testVersus domain.Value) (bool, error) {
		return op(lowerText(value), lowerText(testVersus)), nil
	}
}

// numberTest compares numeric readings; NaN makes every comparison except
// "not equal to" false.
func numberTest(op func(a, b float64) bool) Predicate {
	return func(value, testVersus domain.Value) (bool, error) {
		return op(domain.NumberOf(unwrap(value)), domain.NumberOf(unwrap(testVersus))), nil
	}
}
