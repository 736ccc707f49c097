// Package filters evaluates active filters against resources and their
// family resources.
package filters

import (
	"errors"
	"fmt"

	"github.com/rpattn/resourcekit/internal/domain"
)

// ErrUnknownFamily is returned for filters naming an unregistered operator.
var ErrUnknownFamily = errors.New("unknown filter family")

// ErrNotApplicable is returned when a family cannot be used on a field.
var ErrNotApplicable = errors.New("filter family not applicable to field")

// ErrInvalidFilter is returned for malformed filters.
var ErrInvalidFilter = errors.New("invalid filter")

// Engine evaluates filters.
type Engine struct {
	registry *domain.Registry
	families *Families
}

// NewEngine creates an engine. A nil families table selects DefaultFamilies.
func NewEngine(reg *domain.Registry, families *Families) *Engine {
	if families == nil {
		families = DefaultFamilies()
	}
	return &Engine{registry: reg, families: families}
}

// Families returns the operator table used by the engine.
func (e *Engine) Families() *Families {
	return e.families
}

// Evaluate tests a single value. Applicability is not re-checked here; see
// Validate.
func (e *Engine) Evaluate(value domain.Value, filter domain.Filter) (bool, error) {
	family, ok := e.families.Get(filter.Family)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownFamily, filter.Family)
	}
	if value == nil {
		value = domain.Null{}
	}
	versus := filter.TestVersus
	if versus == nil {
		versus = domain.Null{}
	}
	return family.Test(value, versus)
}

// Validate checks that filter names a known family applicable to the field's
// registered category. Fields outside the registry, such as custom
// properties, accept any known family.
func (e *Engine) Validate(key domain.LookupKey, filter domain.Filter) error {
	if !e.registry.IsLookupKey(key) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownLookupKey, key)
	}
	if filter.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidFilter)
	}
	if _, ok := e.families.Get(filter.Family); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFamily, filter.Family)
	}
	field, ok := e.registry.Field(key, filter.Key)
	if !ok {
		return nil
	}
	if category := field.Category(); !e.families.Applicable(filter.Family, category) {
		return fmt.Errorf("%w: %q on %s.%s (%s)", ErrNotApplicable, filter.Family, key, filter.Key, category)
	}
	return nil
}

// PassesFilters reports whether resource passes the filters active for key
// and, when key has a family type, whether family passes the family type's
// filters. A nil family is treated as an empty resource.
func (e *Engine) PassesFilters(active *domain.ActiveFilters, key domain.LookupKey, resource, family domain.Object) (bool, error) {
	own, ok := active.Get(key)
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownLookupKey, key)
	}

	var familySet domain.FilterSet
	if relation, hasFamily := e.registry.FamilyOf(key); hasFamily {
		familySet, _ = active.Get(relation.FamilyKey)
	}

	if len(own.Filters) == 0 && len(familySet.Filters) == 0 {
		return true, nil
	}

	ownPass, err := e.passesSet(own, resource)
	if err != nil || !ownPass {
		return false, err
	}
	if family == nil {
		family = domain.Object{}
	}
	return e.passesSet(familySet, family)
}

func (e *Engine) passesSet(set domain.FilterSet, resource domain.Object) (bool, error) {
	if len(set.Filters) == 0 {
		return true, nil
	}
	for _, filter := range set.Filters {
		pass, err := e.passes(filter, resource)
		if err != nil {
			return false, err
		}
		if set.Mode == domain.FilterModeAny && pass {
			return true, nil
		}
		if set.Mode != domain.FilterModeAny && !pass {
			return false, nil
		}
	}
	return set.Mode != domain.FilterModeAny, nil
}

func (e *Engine) passes(filter domain.Filter, resource domain.Object) (bool, error) {
	value, ok := FieldValue(resource, filter.Key)
	if !ok {
		return false, nil
	}
	return e.Evaluate(value, filter)
}

// FieldValue reads key from fields, falling back to the custom property of
// the same name.
func FieldValue(fields domain.Object, key string) (domain.Value, bool) {
	if value, ok := fields[key]; ok {
		return value, true
	}
	props, ok := fields[domain.CustomPropertiesField].(domain.Object)
	if !ok {
		return nil, false
	}
	value, ok := props[key]
	if !ok {
		return nil, false
	}
	return unwrap(value), true
}
