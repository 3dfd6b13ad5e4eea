package wqi

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// ErrNoParameters is returned when a measurement set holds no scored parameter.
var ErrNoParameters = eris.New("no parameters supplied")

// Label is the risk tier derived from a WQI.
type Label string

const (
	LabelGood     Label = "Good"
	LabelModerate Label = "Moderate"
	LabelPoor     Label = "Poor"
)

// Classify maps a WQI onto its tier. Bands are contiguous: 80 is Good, 60 is Moderate.
func Classify(wqi float64) Label {
	switch {
	case wqi >= 80:
		return LabelGood
	case wqi >= 60:
		return LabelModerate
	default:
		return LabelPoor
	}
}

// Impact says whether a parameter helped or hurt the score.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
)

const (
	positiveImpactScore = 70
	maxContributions    = 5
)

// MeasurementSet maps parameter name to measured value.
type MeasurementSet map[string]float64

// Contribution is how far one parameter pulled the index away from 100.
type Contribution struct {
	Parameter    string `json:"parameter"`
	Label        string `json:"label"`
	Contribution int    `json:"contribution"`
	Impact       Impact `json:"impact"`
}

// Result is the outcome of scoring one measurement set.
type Result struct {
	WQI                    float64          `json:"wqi"`
	Label                  Label            `json:"label"`
	Confidence             int              `json:"confidence"`
	Warnings               []string         `json:"warnings"`
	ParameterContributions []Contribution   `json:"parameterContributions"`
	SubIndices             []SubIndexResult `json:"subIndices"`
}

// Scorer computes results and tips against one schema. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	schema Schema
	rules  []tipRule
}

// NewScorer binds a scorer to schema.
func NewScorer(schema Schema) *Scorer {
	return &Scorer{schema: schema, rules: buildTipRules(schema)}
}

// Schema returns the schema the scorer was built with.
func (s *Scorer) Schema() Schema {
	return s.schema
}

// Score computes the weighted WQI over the scored parameters present in set.
// Weights are renormalised over what is present.
func (s *Scorer) Score(set MeasurementSet) (Result, error) {
	var (
		weighted    float64
		totalWeight float64
		subs        []SubIndexResult
		specs       []ParameterSpec
	)
	for _, p := range s.schema.Scored() {
		v, ok := set[p.Name]
		if !ok || math.IsNaN(v) {
			continue
		}
		score := SubIndex(p, v)
		weighted += score * p.Weight
		totalWeight += p.Weight
		subs = append(subs, SubIndexResult{Parameter: p.Name, Score: score})
		specs = append(specs, p)
	}
	if len(subs) == 0 {
		return Result{}, ErrNoParameters
	}

	wqi := round2(weighted / totalWeight)
	return Result{
		WQI:                    wqi,
		Label:                  Classify(wqi),
		Confidence:             int(math.Round(100 * float64(len(subs)) / float64(s.schema.ScoredCount()))),
		Warnings:               s.warnings(set),
		ParameterContributions: contributions(specs, subs),
		SubIndices:             subs,
	}, nil
}

func (s *Scorer) warnings(set MeasurementSet) []string {
	out := []string{}
	for _, b := range breaches {
		if b.warning == nil {
			continue
		}
		p, ok := s.schema.Lookup(b.param)
		if !ok {
			continue
		}
		if v, present := set[p.Name]; present && b.crossed(p, v) {
			out = append(out, b.warning(p))
		}
	}
	return out
}

// contributions ranks parameters by how much they cost the index. The sort
// is stable so ties keep schema order.
func contributions(specs []ParameterSpec, subs []SubIndexResult) []Contribution {
	out := make([]Contribution, len(subs))
	for i, sub := range subs {
		impact := ImpactNegative
		if sub.Score >= positiveImpactScore {
			impact = ImpactPositive
		}
		out[i] = Contribution{
			Parameter:    sub.Parameter,
			Label:        specs[i].Label,
			Contribution: int(math.Round((1 - sub.Score/100) * 100)),
			Impact:       impact,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Contribution > out[j].Contribution
	})
	if len(out) > maxContributions {
		out = out[:maxContributions]
	}
	return out
}

// Tips evaluates the rule list in order against set and its scored result.
func (s *Scorer) Tips(set MeasurementSet, res Result) []Tip {
	tips := []Tip{}
	for _, r := range s.rules {
		if r.applies(set, res) {
			tips = append(tips, r.tip.clone())
		}
	}
	return tips
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
