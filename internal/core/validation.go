package core

// validation.go provides structural validation of submitted rows.
//
// Validation happens before any storage access:
//  1. Natural key: province reference, year, and month for monthly datasets
//  2. Variables: each value is checked against its FieldSpec (type, range, enum)
//
// Only the first problem of a row is reported; bulk calls record it as the
// row's failure and move on.

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	minYear = 1900
	maxYear = 2100
)

// Accepted keys for province references, in priority order. Identifier keys
// come first so an explicit id always wins over a display name.
var (
	provinceRefKeys = []string{"province_id", "provinceId", "province", "province_code", "province_name", "provinceName"}
	sourceRefKeys   = []string{"source_id", "sourceId", "source", "source_name", "sourceName"}
	targetRefKeys   = []string{"target_id", "targetId", "target", "target_name", "targetName"}
)

// factInput is a structurally valid fact row awaiting province resolution.
type factInput struct {
	ProvinceRef string
	Year        int
	Month       *int
	Values      Values
}

// connectionInput is a structurally valid connection row.
type connectionInput struct {
	SourceRef string
	TargetRef string
	Year      int
	Volume    *float64
	Commodity string
}

// parseFactRow validates a row against a dataset definition.
// Required variables must be present; optional variables that are absent
// are left out of Values so that updates keep the stored value.
func parseFactRow(def DatasetDefinition, row Row) (*factInput, error) {
	in := &factInput{Values: make(Values)}

	ref, err := pickRef(row, provinceRefKeys, "province")
	if err != nil {
		return nil, err
	}
	in.ProvinceRef = ref

	if in.Year, err = parseYear(row["year"]); err != nil {
		return nil, err
	}

	if def.Info.Monthly {
		m, err := parseMonth(row["month"])
		if err != nil {
			return nil, err
		}
		in.Month = &m
	}

	for _, spec := range def.FieldSpecs {
		raw, present := row[spec.Name]
		if !present || isBlank(raw) {
			if spec.Required {
				return nil, &ValidationError{Field: spec.Name, Message: "required field is empty"}
			}
			continue
		}

		v, err := ValidateValue(raw, spec)
		if err != nil {
			return nil, err
		}
		in.Values[spec.Name] = v
	}

	return in, nil
}

// parseConnectionRow validates a connection row.
func parseConnectionRow(row Row) (*connectionInput, error) {
	in := &connectionInput{}

	var err error
	if in.SourceRef, err = pickRef(row, sourceRefKeys, "source"); err != nil {
		return nil, err
	}
	if in.TargetRef, err = pickRef(row, targetRefKeys, "target"); err != nil {
		return nil, err
	}
	if in.Year, err = parseYear(row["year"]); err != nil {
		return nil, err
	}

	if n := NormalizeName(in.SourceRef); strings.EqualFold(in.SourceRef, in.TargetRef) || (n != "" && n == NormalizeName(in.TargetRef)) {
		return nil, errSelfConnection()
	}

	if raw, ok := row["volume"]; ok && !isBlank(raw) {
		f, err := ValidateValue(raw, FieldSpec{Name: "volume", Type: FieldNumeric, Min: Bound(0)})
		if err != nil {
			return nil, err
		}
		v := f.(float64)
		in.Volume = &v
	}
	if raw, ok := row["commodity"]; ok {
		in.Commodity, _ = toText(raw)
	}

	return in, nil
}

func errSelfConnection() error {
	return &ValidationError{Message: "self-connection"}
}

// ValidateValue converts a raw row value to its typed form and checks it
// against the field specification.
func ValidateValue(raw any, spec FieldSpec) (any, error) {
	switch spec.Type {
	case FieldNumeric:
		f, ok := toFloat(raw)
		if !ok {
			return nil, &ValidationError{Field: spec.Name, Value: fmt.Sprint(raw), Message: "invalid number format"}
		}
		if err := checkRange(f, spec); err != nil {
			return nil, err
		}
		return f, nil

	case FieldEnum:
		s, ok := toText(raw)
		if !ok {
			return nil, &ValidationError{Field: spec.Name, Message: "required field is empty"}
		}
		if spec.Normalizer != nil {
			s = spec.Normalizer(s)
		}
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, s) {
				return ev, nil
			}
		}
		return nil, &ValidationError{
			Field:   spec.Name,
			Value:   s,
			Message: fmt.Sprintf("value %q must be one of: %s", s, strings.Join(spec.EnumValues, ", ")),
		}

	default:
		s, ok := toText(raw)
		if !ok {
			return nil, &ValidationError{Field: spec.Name, Message: "required field is empty"}
		}
		if spec.Normalizer != nil {
			s = spec.Normalizer(s)
		}
		return s, nil
	}
}

func checkRange(f float64, spec FieldSpec) error {
	below := spec.Min != nil && (f < *spec.Min || (spec.ExclusiveMin && f == *spec.Min))
	above := spec.Max != nil && f > *spec.Max
	if !below && !above {
		return nil
	}
	return &ValidationError{
		Field:   spec.Name,
		Value:   strconv.FormatFloat(f, 'f', -1, 64),
		Message: fmt.Sprintf("value %s out of range %s", strconv.FormatFloat(f, 'f', -1, 64), describeRange(spec)),
	}
}

func describeRange(spec FieldSpec) string {
	lo, hi := "(-inf", "+inf)"
	if spec.Min != nil {
		open := "["
		if spec.ExclusiveMin {
			open = "("
		}
		lo = open + strconv.FormatFloat(*spec.Min, 'f', -1, 64)
	}
	if spec.Max != nil {
		hi = strconv.FormatFloat(*spec.Max, 'f', -1, 64) + "]"
	}
	return lo + ", " + hi
}

func parseYear(raw any) (int, error) {
	if isBlank(raw) {
		return 0, &ValidationError{Field: "year", Message: "required field is empty"}
	}
	y, ok := toInt(raw)
	if !ok || y < minYear || y > maxYear {
		return 0, &ValidationError{Field: "year", Value: fmt.Sprint(raw), Message: fmt.Sprintf("invalid year %v", raw)}
	}
	return y, nil
}

func parseMonth(raw any) (int, error) {
	if isBlank(raw) {
		return 0, &ValidationError{Field: "month", Message: "required field is empty"}
	}
	m, ok := toInt(raw)
	if !ok || m < 1 || m > 12 {
		return 0, &ValidationError{Field: "month", Value: fmt.Sprint(raw), Message: fmt.Sprintf("invalid month %v", raw)}
	}
	return m, nil
}

// pickRef returns the first non-blank value among keys.
func pickRef(row Row, keys []string, field string) (string, error) {
	for _, k := range keys {
		if v, ok := row[k]; ok {
			if s, ok := toText(v); ok {
				return s, nil
			}
		}
	}
	return "", &ValidationError{Field: field, Message: "province reference is required"}
}
