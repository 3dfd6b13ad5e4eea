package wqi

import "math"

const (
	bandPenalty      = 30 // full deviation across the standard band
	outsideBandRate  = 10 // per unit outside a bounded standard
	withinLimitScale = 50 // full deviation from ideal up to the limit
	overLimitRate    = 2  // per unit over the standard max
)

// SubIndexResult is one parameter's 0-100 quality score.
type SubIndexResult struct {
	Parameter string  `json:"parameter"`
	Score     float64 `json:"score"`
}

// SubIndex maps a measurement onto a 0-100 score against the parameter's standard.
func SubIndex(p ParameterSpec, v float64) float64 {
	if p.Bounded {
		return clampScore(boundedScore(p, v))
	}
	if v <= p.StandardMax {
		return clampScore(100 - ((v-p.Ideal)/p.StandardMax)*withinLimitScale)
	}
	return clampScore(100 - (v-p.StandardMax)*overLimitRate)
}

func boundedScore(p ParameterSpec, v float64) float64 {
	switch {
	case v < p.StandardMin:
		return 100 - (p.StandardMin-v)*outsideBandRate
	case v > p.StandardMax:
		return 100 - (v-p.StandardMax)*outsideBandRate
	}
	halfBand := math.Max(p.Ideal-p.StandardMin, p.StandardMax-p.Ideal)
	return 100 - (math.Abs(v-p.Ideal)/halfBand)*bandPenalty
}

func clampScore(s float64) float64 {
	return math.Min(100, math.Max(0, s))
}
