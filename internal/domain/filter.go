package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrFilterIndex is returned when removing a filter that does not exist.
var ErrFilterIndex = errors.New("filter index out of range")

// FamilyName identifies a comparison operator family.
type FamilyName string

// FilterMode combines the filters of one resource type.
type FilterMode string

const (
	FilterModeAll FilterMode = "ALL"
	FilterModeAny FilterMode = "ANY"
)

// ParseFilterMode accepts ALL or ANY in any case.
func ParseFilterMode(raw string) (FilterMode, error) {
	switch FilterMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case FilterModeAll:
		return FilterModeAll, nil
	case FilterModeAny:
		return FilterModeAny, nil
	default:
		return "", fmt.Errorf("invalid filter mode %q", raw)
	}
}

// Filter compares one field of a resource against TestVersus using the
// operator family named by Family.
type Filter struct {
	Key        string     `json:"key"`
	Family     FamilyName `json:"family"`
	TestVersus Value      `json:"test_versus"`
}

func (f Filter) MarshalJSON() ([]byte, error) {
	versus := f.TestVersus
	if versus == nil {
		versus = Null{}
	}
	return json.Marshal(struct {
		Key        string     `json:"key"`
		Family     FamilyName `json:"family"`
		TestVersus Value      `json:"test_versus"`
	}{Key: f.Key, Family: f.Family, TestVersus: versus})
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key        string          `json:"key"`
		Family     FamilyName      `json:"family"`
		TestVersus json.RawMessage `json:"test_versus"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Key = raw.Key
	f.Family = raw.Family
	f.TestVersus = Null{}
	if len(raw.TestVersus) > 0 {
		value, err := DecodeValue(raw.TestVersus)
		if err != nil {
			return fmt.Errorf("decode test_versus: %w", err)
		}
		f.TestVersus = value
	}
	return nil
}

// FilterSet holds the filters active for one resource type.
type FilterSet struct {
	Mode    FilterMode `json:"mode"`
	Filters []Filter   `json:"filters"`
}

func (s FilterSet) clone() FilterSet {
	filters := make([]Filter, len(s.Filters))
	for i, filter := range s.Filters {
		filters[i] = Filter{Key: filter.Key, Family: filter.Family, TestVersus: Clone(filter.TestVersus)}
	}
	return FilterSet{Mode: s.Mode, Filters: filters}
}

// ActiveFilters maps every registered lookup key to its FilterSet. All keys
// are present from construction; unknown keys are rejected.
type ActiveFilters struct {
	keys []LookupKey
	sets map[LookupKey]FilterSet
}

// NewActiveFilters initialises an empty ALL-mode set for each key.
func NewActiveFilters(keys []LookupKey) *ActiveFilters {
	af := &ActiveFilters{
		keys: make([]LookupKey, len(keys)),
		sets: make(map[LookupKey]FilterSet, len(keys)),
	}
	copy(af.keys, keys)
	for _, key := range keys {
		af.sets[key] = FilterSet{Mode: FilterModeAll, Filters: []Filter{}}
	}
	return af
}

// Keys returns the lookup keys in construction order.
func (af *ActiveFilters) Keys() []LookupKey {
	out := make([]LookupKey, len(af.keys))
	copy(out, af.keys)
	return out
}

// Get returns a copy of the filter set for key.
func (af *ActiveFilters) Get(key LookupKey) (FilterSet, bool) {
	set, ok := af.sets[key]
	if !ok {
		return FilterSet{}, false
	}
	return set.clone(), true
}

// Count returns the number of filters active for key.
func (af *ActiveFilters) Count(key LookupKey) int {
	return len(af.sets[key].Filters)
}

// Add appends a filter to key's set.
func (af *ActiveFilters) Add(key LookupKey, filter Filter) error {
	set, ok := af.sets[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLookupKey, key)
	}
	set.Filters = append(set.Filters, filter)
	af.sets[key] = set
	return nil
}

// Remove deletes the filter at index from key's set.
func (af *ActiveFilters) Remove(key LookupKey, index int) error {
	set, ok := af.sets[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLookupKey, key)
	}
	if index < 0 || index >= len(set.Filters) {
		return fmt.Errorf("%w: %d for %s", ErrFilterIndex, index, key)
	}
	filters := make([]Filter, 0, len(set.Filters)-1)
	filters = append(filters, set.Filters[:index]...)
	filters = append(filters, set.Filters[index+1:]...)
	set.Filters = filters
	af.sets[key] = set
	return nil
}

// Clear removes every filter for key, keeping its mode.
func (af *ActiveFilters) Clear(key LookupKey) error {
	set, ok := af.sets[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLookupKey, key)
	}
	set.Filters = []Filter{}
	af.sets[key] = set
	return nil
}

// ClearAll removes every filter for every key.
func (af *ActiveFilters) ClearAll() {
	for key, set := range af.sets {
		set.Filters = []Filter{}
		af.sets[key] = set
	}
}

// SetMode changes how key's filters are combined.
func (af *ActiveFilters) SetMode(key LookupKey, mode FilterMode) error {
	set, ok := af.sets[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLookupKey, key)
	}
	if mode != FilterModeAll && mode != FilterModeAny {
		return fmt.Errorf("invalid filter mode %q", mode)
	}
	set.Mode = mode
	af.sets[key] = set
	return nil
}

// Clone returns an independent copy.
func (af *ActiveFilters) Clone() *ActiveFilters {
	out := &ActiveFilters{
		keys: af.Keys(),
		sets: make(map[LookupKey]FilterSet, len(af.sets)),
	}
	for key, set := range af.sets {
		out.sets[key] = set.clone()
	}
	return out
}

func (af *ActiveFilters) MarshalJSON() ([]byte, error) {
	return json.Marshal(af.sets)
}
