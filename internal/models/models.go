package models

import (
	"fmt"
	"strconv"
	"time"
)

// Family identifies one of the three dataset categories tracked by the
// dashboard backend.
type Family string

const (
	FamilyDemand  Family = "demand"
	FamilyCarbon  Family = "carbon"
	FamilyWeather Family = "weather"
)

// Families returns all known families in refresh order.
func Families() []Family {
	return []Family{FamilyDemand, FamilyCarbon, FamilyWeather}
}

// ParseFamily maps a request string onto a Family.
func ParseFamily(s string) (Family, bool) {
	switch Family(s) {
	case FamilyDemand, FamilyCarbon, FamilyWeather:
		return Family(s), true
	}
	return "", false
}

// HistoryStart is the earliest instant any stored record may carry. Adapters
// fetch from here when the store holds no data for their family.
var HistoryStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// CanonicalRow is the provider-agnostic row shape produced by a source
// adapter. Metrics holds named numeric fields; a missing key means the
// provider reported no value, which is preserved all the way to storage.
// Labels carries the few categorical fields (e.g. the carbon intensity
// index band).
type CanonicalRow struct {
	TS         time.Time
	RegionID   *int
	RegionName *string
	Metrics    map[string]float64
	Labels     map[string]string
}

// Key returns the row's uniqueness key: the timestamp for the national demand
// family, timestamp plus region for the region-partitioned families.
func (r CanonicalRow) Key() string {
	k := r.TS.UTC().Format(time.RFC3339)
	if r.RegionID != nil {
		k += "|" + strconv.Itoa(*r.RegionID)
	}
	return k
}

// Record is a stored row read back from the historical store. Metric absence
// is meaningful: an unmeasured quantity, not a zero.
type Record struct {
	TS         time.Time
	RegionID   *int
	RegionName *string
	Metrics    map[string]float64
	Labels     map[string]string
}

// Field declares one numeric metric of a family together with its
// physical-plausibility bounds (inclusive, nil = unbounded).
type Field struct {
	Name string
	Min  *float64
	Max  *float64
}

// InRange reports whether v satisfies the field's bounds.
func (f Field) InRange(v float64) bool {
	if f.Min != nil && v < *f.Min {
		return false
	}
	if f.Max != nil && v > *f.Max {
		return false
	}
	return true
}

// Schema describes a family's storage and validation shape.
type Schema struct {
	Family   Family
	Table    string
	Regional bool
	Fields   []Field
	Labels   []string
	// Lead is the metric used for headline summary statistics.
	Lead string
}

// FieldNames returns the declared metric names in column order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Field looks up a declared field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

var (
	zero    = 0.0
	hundred = 100.0
	tempLo  = -40.0
	tempHi  = 55.0
)

var schemas = map[Family]Schema{
	FamilyDemand: {
		Family: FamilyDemand,
		Table:  "historic_demand",
		Fields: []Field{
			{Name: "nd", Min: &zero},
			{Name: "tsd", Min: &zero},
			{Name: "england_wales_demand", Min: &zero},
			{Name: "embedded_wind_generation", Min: &zero},
			{Name: "embedded_wind_capacity", Min: &zero},
			{Name: "embedded_solar_generation", Min: &zero},
			{Name: "embedded_solar_capacity", Min: &zero},
			{Name: "pump_storage_pumping", Min: &zero},
		},
		Lead: "nd",
	},
	FamilyCarbon: {
		Family:   FamilyCarbon,
		Table:    "carbon_intensity",
		Regional: true,
		Fields: []Field{
			{Name: "intensity_forecast", Min: &zero},
			{Name: "gen_gas", Min: &zero, Max: &hundred},
			{Name: "gen_coal", Min: &zero, Max: &hundred},
			{Name: "gen_biomass", Min: &zero, Max: &hundred},
			{Name: "gen_nuclear", Min: &zero, Max: &hundred},
			{Name: "gen_hydro", Min: &zero, Max: &hundred},
			{Name: "gen_imports", Min: &zero, Max: &hundred},
			{Name: "gen_other", Min: &zero, Max: &hundred},
			{Name: "gen_wind", Min: &zero, Max: &hundred},
			{Name: "gen_solar", Min: &zero, Max: &hundred},
		},
		Labels: []string{"intensity_index"},
		Lead:   "intensity_forecast",
	},
	FamilyWeather: {
		Family:   FamilyWeather,
		Table:    "weather",
		Regional: true,
		Fields: []Field{
			{Name: "temperature", Min: &tempLo, Max: &tempHi},
			{Name: "humidity", Min: &zero, Max: &hundred},
			{Name: "wind_speed", Min: &zero},
			{Name: "cloud_cover", Min: &zero, Max: &hundred},
			{Name: "precipitation", Min: &zero},
		},
		Lead: "temperature",
	},
}

// SchemaFor returns the schema of a family. It panics on an unknown family,
// which would be a programming error.
func SchemaFor(f Family) Schema {
	s, ok := schemas[f]
	if !ok {
		panic(fmt.Sprintf("unknown family %q", f))
	}
	return s
}
