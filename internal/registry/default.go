// Package registry holds the built-in table of resource types served by
// resourcekit.
package registry

import (
	"github.com/rpattn/resourcekit/internal/domain"
)

// Lookup keys of the built-in resource types.
const (
	Cell             domain.LookupKey = "CELL"
	CellFamily       domain.LookupKey = "CELL_FAMILY"
	Equipment        domain.LookupKey = "EQUIPMENT"
	EquipmentFamily  domain.LookupKey = "EQUIPMENT_FAMILY"
	Schedule         domain.LookupKey = "SCHEDULE"
	ScheduleFamily   domain.LookupKey = "SCHEDULE_FAMILY"
	CyclerTest       domain.LookupKey = "CYCLER_TEST"
	Experiment       domain.LookupKey = "EXPERIMENT"
	File             domain.LookupKey = "FILE"
	Harvester        domain.LookupKey = "HARVESTER"
	Lab              domain.LookupKey = "LAB"
	Team             domain.LookupKey = "TEAM"
	ValidationSchema domain.LookupKey = "VALIDATION_SCHEMA"
)

var autocompleteEndpoints = map[string]string{
	"cell_chemistry":         "cell_chemistries",
	"cell_form_factor":       "cell_form_factors",
	"cell_manufacturer":      "cell_manufacturers",
	"cell_model":             "cell_models",
	"equipment_type":         "equipment_types",
	"equipment_manufacturer": "equipment_manufacturers",
	"equipment_model":        "equipment_models",
	"schedule_identifier":    "schedule_identifiers",
}

func ref(key domain.LookupKey) domain.TypeName {
	return domain.ReferenceType(string(key))
}

func auto(key string) domain.TypeName {
	return domain.ReferenceType(key)
}

var (
	id          = domain.FieldDescriptor{Type: domain.TypeString, ReadOnly: true, Priority: domain.PriorityHidden}
	url         = domain.FieldDescriptor{Type: domain.TypeString, ReadOnly: true, Priority: domain.PriorityHidden}
	permissions = domain.FieldDescriptor{Type: domain.TypeObject, ReadOnly: true, Priority: domain.PriorityHidden}
	custom      = domain.FieldDescriptor{Type: domain.TypeObject, Priority: domain.PriorityContext}
	team        = domain.FieldDescriptor{Type: ref(Team), Priority: domain.PriorityContext}
)

// withCommon adds the server-managed fields shared by every type.
func withCommon(fields map[string]domain.FieldDescriptor) map[string]domain.FieldDescriptor {
	fields["id"] = id
	fields["url"] = url
	fields["permissions"] = permissions
	fields[domain.CustomPropertiesField] = custom
	return fields
}

// Definitions returns the built-in resource type table.
func Definitions() []domain.LookupDefinition {
	return []domain.LookupDefinition{
		{
			Key: Cell, DisplayName: "Cell", Endpoint: "cells",
			Family: &domain.FamilyRelation{FamilyKey: CellFamily, Field: "family"},
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"identifier":   {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"family":       {Type: ref(CellFamily), Priority: domain.PriorityIdentity},
				"team":         team,
				"voltage":      {Type: domain.TypeNumber, Priority: domain.PrioritySummary},
				"in_use":       {Type: domain.TypeBoolean, Priority: domain.PrioritySummary},
				"cycler_tests": {Type: ref(CyclerTest), Many: true, ReadOnly: true, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: CellFamily, DisplayName: "Cell Family", Endpoint: "cell_families",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"manufacturer":      {Type: auto("cell_manufacturer"), Priority: domain.PriorityIdentity},
				"model":             {Type: auto("cell_model"), Priority: domain.PriorityIdentity},
				"chemistry":         {Type: auto("cell_chemistry"), Priority: domain.PrioritySummary},
				"form_factor":       {Type: auto("cell_form_factor"), Priority: domain.PrioritySummary},
				"nominal_voltage":   {Type: domain.TypeNumber, Priority: domain.PrioritySummary},
				"nominal_capacity":  {Type: domain.TypeNumber, Priority: domain.PrioritySummary},
				"energy_density":    {Type: domain.TypeNumber, Priority: domain.PriorityContext},
				"power_density":     {Type: domain.TypeNumber, Priority: domain.PriorityContext},
				"initial_ac_ir":     {Type: domain.TypeNumber, Priority: domain.PriorityContext},
				"initial_dc_ir":     {Type: domain.TypeNumber, Priority: domain.PriorityContext},
				"datasheet":         {Type: domain.TypeString, Priority: domain.PriorityContext},
				"team":              team,
				"cells":             {Type: ref(Cell), Many: true, ReadOnly: true, Priority: domain.PriorityContext},
				"in_use":            {Type: domain.TypeBoolean, ReadOnly: true, Priority: domain.PriorityContext},
				"weight":            {Type: domain.TypeNumber, Priority: domain.PriorityContext},
				"dimensions":        {Type: domain.TypeObject, Priority: domain.PriorityContext},
				"cycle_life":        {Type: domain.TypeNumber, Priority: domain.PriorityContext},
				"manufacturer_spec": {Type: domain.TypeArray, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: Equipment, DisplayName: "Equipment", Endpoint: "equipment",
			Family: &domain.FamilyRelation{FamilyKey: EquipmentFamily, Field: "family"},
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"identifier":       {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"family":           {Type: ref(EquipmentFamily), Priority: domain.PriorityIdentity},
				"calibration_date": {Type: domain.TypeString, Priority: domain.PrioritySummary},
				"team":             team,
				"in_use":           {Type: domain.TypeBoolean, ReadOnly: true, Priority: domain.PrioritySummary},
				"cycler_tests":     {Type: ref(CyclerTest), Many: true, ReadOnly: true, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: EquipmentFamily, DisplayName: "Equipment Family", Endpoint: "equipment_families",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"type":         {Type: auto("equipment_type"), Priority: domain.PriorityIdentity},
				"manufacturer": {Type: auto("equipment_manufacturer"), Priority: domain.PriorityIdentity},
				"model":        {Type: auto("equipment_model"), Priority: domain.PriorityIdentity},
				"team":         team,
				"equipment":    {Type: ref(Equipment), Many: true, ReadOnly: true, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: Schedule, DisplayName: "Schedule", Endpoint: "schedules",
			Family: &domain.FamilyRelation{FamilyKey: ScheduleFamily, Field: "family"},
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"family":          {Type: ref(ScheduleFamily), Priority: domain.PriorityIdentity},
				"schedule_file":   {Type: domain.TypeString, Priority: domain.PrioritySummary},
				"pybamm_schedule": {Type: domain.TypeObject, Priority: domain.PriorityContext},
				"team":            team,
				"in_use":          {Type: domain.TypeBoolean, ReadOnly: true, Priority: domain.PrioritySummary},
			}),
		},
		{
			Key: ScheduleFamily, DisplayName: "Schedule Family", Endpoint: "schedule_families",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"identifier":          {Type: auto("schedule_identifier"), Priority: domain.PriorityIdentity},
				"description":         {Type: domain.TypeString, Priority: domain.PrioritySummary},
				"ambient_temperature": {Type: domain.TypeNumber, Priority: domain.PrioritySummary},
				"pybamm_template":     {Type: domain.TypeArray, Priority: domain.PriorityContext},
				"team":                team,
				"schedules":           {Type: ref(Schedule), Many: true, ReadOnly: true, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: CyclerTest, DisplayName: "Cycler Test", Endpoint: "cycler_tests",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"cell":      {Type: ref(Cell), Priority: domain.PriorityIdentity},
				"schedule":  {Type: ref(Schedule), Priority: domain.PriorityIdentity},
				"equipment": {Type: ref(Equipment), Many: true, Priority: domain.PrioritySummary},
				"files":     {Type: ref(File), Many: true, ReadOnly: true, Priority: domain.PriorityContext},
				"team":      team,
			}),
		},
		{
			Key: Experiment, DisplayName: "Experiment", Endpoint: "experiments",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"title":        {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"description":  {Type: domain.TypeString, Priority: domain.PrioritySummary},
				"authors":      {Type: domain.TypeArray, Priority: domain.PrioritySummary},
				"protocol":     {Type: domain.TypeString, Priority: domain.PriorityContext},
				"cycler_tests": {Type: ref(CyclerTest), Many: true, Priority: domain.PrioritySummary},
				"team":         team,
			}),
		},
		{
			Key: File, DisplayName: "File", Endpoint: "files",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"name":            {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"path":            {Type: domain.TypeString, ReadOnly: true, Priority: domain.PrioritySummary},
				"state":           {Type: domain.TypeString, ReadOnly: true, Priority: domain.PrioritySummary},
				"harvester":       {Type: ref(Harvester), ReadOnly: true, Priority: domain.PriorityContext},
				"num_rows":        {Type: domain.TypeNumber, ReadOnly: true, Priority: domain.PrioritySummary},
				"first_sample_no": {Type: domain.TypeNumber, ReadOnly: true, Priority: domain.PriorityContext},
				"last_sample_no":  {Type: domain.TypeNumber, ReadOnly: true, Priority: domain.PriorityContext},
				"parser":          {Type: domain.TypeString, ReadOnly: true, Priority: domain.PriorityContext},
				"team":            team,
			}),
		},
		{
			Key: Harvester, DisplayName: "Harvester", Endpoint: "harvesters",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"name":                  {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"sleep_time":            {Type: domain.TypeNumber, Priority: domain.PrioritySummary},
				"active":                {Type: domain.TypeBoolean, Priority: domain.PrioritySummary},
				"last_check_in":         {Type: domain.TypeString, ReadOnly: true, Priority: domain.PrioritySummary},
				"environment_variables": {Type: domain.TypeObject, Priority: domain.PriorityContext},
				"lab":                   {Type: ref(Lab), ReadOnly: true, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: Lab, DisplayName: "Lab", Endpoint: "labs",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"name":        {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"description": {Type: domain.TypeString, Priority: domain.PrioritySummary},
				"teams":       {Type: ref(Team), Many: true, ReadOnly: true, Priority: domain.PrioritySummary},
				"harvesters":  {Type: ref(Harvester), Many: true, ReadOnly: true, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: Team, DisplayName: "Team", Endpoint: "teams",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"name":         {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"description":  {Type: domain.TypeString, Priority: domain.PrioritySummary},
				"lab":          {Type: ref(Lab), Priority: domain.PrioritySummary},
				"member_group": {Type: domain.TypeObject, ReadOnly: true, Priority: domain.PriorityContext},
				"admin_group":  {Type: domain.TypeObject, ReadOnly: true, Priority: domain.PriorityContext},
			}),
		},
		{
			Key: ValidationSchema, DisplayName: "Validation Schema", Endpoint: "validation_schemas",
			Fields: withCommon(map[string]domain.FieldDescriptor{
				"name":   {Type: domain.TypeString, Priority: domain.PriorityIdentity},
				"schema": {Type: domain.TypeObject, Priority: domain.PrioritySummary},
				"team":   team,
			}),
		},
	}
}

// AutocompleteEndpoints returns the built-in autocomplete keys and their
// endpoint slugs.
func AutocompleteEndpoints() map[string]string {
	out := make(map[string]string, len(autocompleteEndpoints))
	for key, endpoint := range autocompleteEndpoints {
		out[key] = endpoint
	}
	return out
}

// Default builds the built-in registry rooted at baseURL.
func Default(baseURL string) (*domain.Registry, error) {
	return domain.NewRegistry(baseURL, Definitions(), AutocompleteEndpoints())
}
