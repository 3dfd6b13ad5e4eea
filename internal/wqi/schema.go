// Package wqi computes the Water Quality Index for a set of physicochemical
// measurements, classifies it, explains the drivers and produces remediation tips.
package wqi

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Parameter names recognised by the default schema.
const (
	ParamPH           = "ph"
	ParamHardness     = "hardness"
	ParamTDS          = "tds"
	ParamTurbidity    = "turbidity"
	ParamAlkalinity   = "alkalinity"
	ParamNitrate      = "nitrate"
	ParamFluoride     = "fluoride"
	ParamChloride     = "chloride"
	ParamConductivity = "conductivity"
	ParamTemperature  = "temperature"
)

// ParameterSpec holds the valid input range and the reference standard for one parameter.
type ParameterSpec struct {
	Name  string
	Label string
	Unit  string

	// ValidMin and ValidMax bound what a measurement may be at all.
	ValidMin float64
	ValidMax float64

	Ideal       float64
	StandardMax float64
	// StandardMin is only meaningful when Bounded is set (pH).
	StandardMin float64
	Bounded     bool

	// Weight is zero for parameters that are stored but never scored.
	Weight float64
}

// Scored reports whether the parameter takes part in the weighted index.
func (p ParameterSpec) Scored() bool {
	return p.Weight > 0
}

// InRange reports whether v lies inside [ValidMin, ValidMax].
func (p ParameterSpec) InRange(v float64) bool {
	return !math.IsNaN(v) && v >= p.ValidMin && v <= p.ValidMax
}

// RangeMessage describes the valid range, e.g. "Must be between 0 and 2000 mg/L".
func (p ParameterSpec) RangeMessage() string {
	return RangeMessage(p.ValidMin, p.ValidMax, p.Unit)
}

// RangeMessage formats a range diagnostic for arbitrary bounds.
func RangeMessage(lo, hi float64, unit string) string {
	msg := fmt.Sprintf("Must be between %s and %s", formatFloat(lo), formatFloat(hi))
	switch {
	case unit == "":
		return msg
	case strings.HasPrefix(unit, "°"):
		return msg + unit
	default:
		return msg + " " + unit
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Schema is an immutable, ordered set of parameter specs. The order is the
// display order for warnings, tips and tie-breaks.
type Schema struct {
	params []ParameterSpec
	index  map[string]int
	scored int
}

// NewSchema builds a schema and checks its invariants.
func NewSchema(params ...ParameterSpec) (Schema, error) {
	s := Schema{
		params: make([]ParameterSpec, len(params)),
		index:  make(map[string]int, len(params)),
	}
	copy(s.params, params)

	for i, p := range s.params {
		if p.Name == "" {
			return Schema{}, eris.Errorf("wqi: parameter %d has no name", i)
		}
		if _, dup := s.index[p.Name]; dup {
			return Schema{}, eris.Errorf("wqi: duplicate parameter %q", p.Name)
		}
		s.index[p.Name] = i
		if p.Scored() {
			s.scored++
		}
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Validate checks the ranges, standards and weights of every parameter.
func (s Schema) Validate() error {
	var weightSum float64
	for _, p := range s.params {
		if p.ValidMin >= p.ValidMax {
			return eris.Errorf("wqi: %s: valid min %v must be below valid max %v", p.Name, p.ValidMin, p.ValidMax)
		}
		if p.Weight < 0 {
			return eris.Errorf("wqi: %s: negative weight", p.Name)
		}
		if !p.Scored() {
			continue
		}
		if p.StandardMax <= 0 {
			return eris.Errorf("wqi: %s: standard max must be positive", p.Name)
		}
		if p.Bounded && p.StandardMin >= p.StandardMax {
			return eris.Errorf("wqi: %s: standard min must be below standard max", p.Name)
		}
		weightSum += p.Weight
	}

	if s.scored == 0 {
		return eris.New("wqi: schema has no scored parameters")
	}
	if math.Abs(weightSum-1) > 1e-9 {
		return eris.Errorf("wqi: scored weights should sum to 1, got %.4f", weightSum)
	}
	return nil
}

// DefaultSchema returns the BIS/WHO reference table.
func DefaultSchema() Schema {
	s, err := NewSchema(defaultParameters...)
	if err != nil {
		panic(err)
	}
	return s
}

var defaultParameters = []ParameterSpec{
	{Name: ParamPH, Label: "pH", ValidMin: 0, ValidMax: 14, Ideal: 7.0, StandardMin: 6.5, StandardMax: 8.5, Bounded: true, Weight: 0.15},
	{Name: ParamHardness, Label: "Hardness", Unit: "mg/L", ValidMin: 0, ValidMax: 1000, Ideal: 100, StandardMax: 300, Weight: 0.10},
	{Name: ParamTDS, Label: "TDS", Unit: "mg/L", ValidMin: 0, ValidMax: 2000, Ideal: 200, StandardMax: 500, Weight: 0.10},
	{Name: ParamTurbidity, Label: "Turbidity", Unit: "NTU", ValidMin: 0, ValidMax: 100, Ideal: 1, StandardMax: 5, Weight: 0.15},
	{Name: ParamAlkalinity, Label: "Alkalinity", Unit: "mg/L", ValidMin: 0, ValidMax: 500, Ideal: 100, StandardMax: 200, Weight: 0.08},
	{Name: ParamNitrate, Label: "Nitrate", Unit: "mg/L", ValidMin: 0, ValidMax: 200, Ideal: 10, StandardMax: 45, Weight: 0.15},
	{Name: ParamFluoride, Label: "Fluoride", Unit: "mg/L", ValidMin: 0, ValidMax: 10, Ideal: 0.7, StandardMax: 1.5, Weight: 0.12},
	{Name: ParamChloride, Label: "Chloride", Unit: "mg/L", ValidMin: 0, ValidMax: 1000, Ideal: 100, StandardMax: 250, Weight: 0.08},
	{Name: ParamConductivity, Label: "Conductivity", Unit: "µS/cm", ValidMin: 0, ValidMax: 5000, Ideal: 500, StandardMax: 1500, Weight: 0.07},
	// Temperature is validated and stored but carries no weight; 35 °C only triggers a tip.
	{Name: ParamTemperature, Label: "Temperature", Unit: "°C", ValidMin: 0, ValidMax: 50, StandardMax: 35},
}

// Lookup returns the spec for name.
func (s Schema) Lookup(name string) (ParameterSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return ParameterSpec{}, false
	}
	return s.params[i], true
}

// Parameters returns every spec in schema order.
func (s Schema) Parameters() []ParameterSpec {
	out := make([]ParameterSpec, len(s.params))
	copy(out, s.params)
	return out
}

// Names returns every parameter name in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.Name
	}
	return out
}

// Scored returns the weighted parameters in schema order.
func (s Schema) Scored() []ParameterSpec {
	out := make([]ParameterSpec, 0, s.scored)
	for _, p := range s.params {
		if p.Scored() {
			out = append(out, p)
		}
	}
	return out
}

// ScoredCount is the number of weighted parameters.
func (s Schema) ScoredCount() int {
	return s.scored
}
