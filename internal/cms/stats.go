package cms

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// StatSeries identifies one statistical series. Each series is backed by a
// table of the same name.
type StatSeries string

const (
	SeriesDeathRates         StatSeries = "death_rates"
	SeriesInfantMortality    StatSeries = "infant_mortality_rates"
	SeriesFertilityRates     StatSeries = "total_fertility_rates"
	SeriesBirthRates         StatSeries = "birth_rates"
	SeriesSexRatioComparison StatSeries = "sex_ratio_comparison"
	SeriesSexRatioHMIS       StatSeries = "sex_ratio_sindhudurg_hmis"
)

// Table returns the metadata table backing s.
func (s StatSeries) Table() Table { return Table(s) }

// FieldType is the declared type of a series field.
type FieldType int

const (
	FieldInteger FieldType = iota
	FieldNumber
	FieldText
)

// Field declares one column of a series and its validation rules.
type Field struct {
	Name        string
	Label       string
	Type        FieldType
	Required    bool
	Min         *float64
	Max         *float64
	Pattern     *regexp.Regexp
	Placeholder string
}

// SeriesSchema declares a whole series. KeyField names the natural key;
// when Surrogate is set rows are addressed by StatRow.ID instead and
// KeyField is only unique.
type SeriesSchema struct {
	Series    StatSeries
	Title     string
	KeyField  string
	Surrogate bool
	Fields    []Field
}

func bound(v float64) *float64 { return &v }

func yearField() Field {
	return Field{Name: "year", Label: "Year", Type: FieldInteger, Required: true, Min: bound(1900), Max: bound(2100)}
}

func rateFields() []Field {
	return []Field{
		yearField(),
		{Name: "india_srs", Label: "India SRS", Type: FieldNumber, Min: bound(0)},
		{Name: "maharashtra_srs", Label: "Maharashtra SRS", Type: FieldNumber, Min: bound(0)},
		{Name: "sindhudurg_scd_rural", Label: "Sindhudurg SCD Rural", Type: FieldNumber, Min: bound(0)},
	}
}

var statSchemas = []*SeriesSchema{
	{Series: SeriesDeathRates, Title: "Death Rates", KeyField: "year", Fields: rateFields()},
	{Series: SeriesInfantMortality, Title: "Infant Mortality Rates", KeyField: "year", Fields: rateFields()},
	{Series: SeriesFertilityRates, Title: "Total Fertility Rates", KeyField: "year", Fields: rateFields()},
	{Series: SeriesBirthRates, Title: "Birth Rates", KeyField: "year", Fields: rateFields()},
	{
		Series:   SeriesSexRatioComparison,
		Title:    "Sex Ratio Comparison",
		KeyField: "year",
		Fields: []Field{
			yearField(),
			{Name: "maharashtra_scd_rural", Label: "Maharashtra SCD Rural", Type: FieldNumber, Min: bound(0), Max: bound(2000)},
			{Name: "sindhudurg_scd", Label: "Sindhudurg SCD", Type: FieldNumber, Min: bound(0), Max: bound(2000)},
		},
	},
	{
		Series:    SeriesSexRatioHMIS,
		Title:     "Sex Ratio Sindhudurg (HMIS)",
		KeyField:  "year_range",
		Surrogate: true,
		Fields: []Field{
			{Name: "year_range", Label: "Year Range", Type: FieldText, Required: true, Pattern: regexp.MustCompile(`^\d{4}-\d{4}$`), Placeholder: "e.g., 2017-2018"},
			{Name: "sex_ratio", Label: "Sex Ratio", Type: FieldNumber, Min: bound(0), Max: bound(2000)},
		},
	},
}

var schemaBySeries = func() map[StatSeries]*SeriesSchema {
	m := make(map[StatSeries]*SeriesSchema, len(statSchemas))
	for _, s := range statSchemas {
		m[s.Series] = s
	}
	return m
}()

// ParseSeries resolves a series name to its schema.
func ParseSeries(name string) (*SeriesSchema, error) {
	s, ok := schemaBySeries[StatSeries(name)]
	if !ok {
		return nil, invalid("series", "unknown statistics series %q", name)
	}
	return s, nil
}

// Series lists every series name in name order.
func Series() []StatSeries {
	out := make([]StatSeries, 0, len(statSchemas))
	for _, s := range statSchemas {
		out = append(out, s.Series)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Field returns the named field.
func (s *SeriesSchema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks a raw form value against f. An empty value is only an
// error when the field is required.
func (f Field) Validate(raw string) error {
	_, err := f.Parse(raw)
	return err
}

// Parse validates raw and converts it to the field's Go type. An empty,
// optional value yields nil.
func (f Field) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if f.Required {
			return nil, invalid(f.Name, "%s is required", f.Label)
		}
		return nil, nil
	}

	switch f.Type {
	case FieldInteger, FieldNumber:
		if !decimal.MatchString(raw) {
			return nil, invalid(f.Name, "%s must be a valid number", f.Label)
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, invalid(f.Name, "%s must be a valid number", f.Label)
		}
		if f.Min != nil && n < *f.Min {
			return nil, invalid(f.Name, "%s must be at least %s", f.Label, formatBound(*f.Min))
		}
		if f.Max != nil && n > *f.Max {
			return nil, invalid(f.Name, "%s must be at most %s", f.Label, formatBound(*f.Max))
		}
		if f.Type == FieldInteger {
			if n != float64(int64(n)) {
				return nil, invalid(f.Name, "%s must be a whole number", f.Label)
			}
			return int64(n), nil
		}
		return n, nil
	default:
		if f.Pattern != nil && !f.Pattern.MatchString(raw) {
			hint := f.Placeholder
			if hint == "" {
				hint = f.Pattern.String()
			}
			return nil, invalid(f.Name, "%s format is invalid (%s)", f.Label, hint)
		}
		return raw, nil
	}
}

// decimal matches plain decimal notation. ParseFloat alone also takes
// NaN, Inf and hex floats.
var decimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func formatBound(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// ParseRow validates input field by field, in declaration order, and
// returns the first failure. Keys in input that are not declared fields
// are rejected.
func (s *SeriesSchema) ParseRow(id string, input map[string]string) (*StatRow, error) {
	for name := range input {
		if _, ok := s.Field(name); !ok {
			return nil, invalid(name, "unknown field %q for %s", name, s.Title)
		}
	}

	row := &StatRow{ID: id, Values: make(map[string]any, len(s.Fields))}
	for _, f := range s.Fields {
		v, err := f.Parse(input[f.Name])
		if err != nil {
			return nil, err
		}
		if v != nil {
			row.Values[f.Name] = v
		}
	}
	return row, nil
}

// KeyOf returns the key by which row is addressed: its surrogate ID, or
// the natural key value formatted as text.
func (s *SeriesSchema) KeyOf(row *StatRow) string {
	if s.Surrogate {
		return row.ID
	}
	return FormatValue(row.Values[s.KeyField])
}

// FormatValue renders a stat value for display and CSV export.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return ""
	}
}
