package wqi

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FieldError is a problem with a single named input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidParametersError lists every rejected field of a measurement set.
type InvalidParametersError struct {
	Fields []FieldError
}

func (e *InvalidParametersError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

// ValidateMeasurements rejects unknown names and out-of-range values. Fields
// are reported in schema order, unknown names last in sorted order.
func (s Schema) ValidateMeasurements(set MeasurementSet) error {
	var fields []FieldError
	for _, p := range s.params {
		v, ok := set[p.Name]
		if !ok {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			fields = append(fields, FieldError{Field: p.Name, Message: "Must be a valid number"})
			continue
		}
		if !p.InRange(v) {
			fields = append(fields, FieldError{Field: p.Name, Message: p.RangeMessage()})
		}
	}

	var unknown []string
	for name := range set {
		if _, ok := s.index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		fields = append(fields, FieldError{Field: name, Message: "Unknown parameter"})
	}

	if len(fields) > 0 {
		return &InvalidParametersError{Fields: fields}
	}
	return nil
}
