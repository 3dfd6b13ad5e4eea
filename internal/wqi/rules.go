package wqi

import "fmt"

// Severity grades a tip.
type Severity string

const (
	SeverityAdvice  Severity = "advice"
	SeverityWarning Severity = "warning"
)

// Tip is a remediation suggestion tied to the measurements that triggered it.
type Tip struct {
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	Severity     Severity `json:"severity"`
	LinkedParams []string `json:"linkedParams,omitempty"`
}

func (t Tip) clone() Tip {
	if t.LinkedParams != nil {
		t.LinkedParams = append([]string(nil), t.LinkedParams...)
	}
	return t
}

// breach is a threshold crossing on one parameter. The threshold itself
// always comes from the schema entry for param.
type breach struct {
	param string
	// below compares against StandardMin instead of StandardMax.
	below   bool
	warning func(ParameterSpec) string
	tip     Tip
}

func (b breach) crossed(p ParameterSpec, v float64) bool {
	if b.below {
		return p.Bounded && v < p.StandardMin
	}
	return v > p.StandardMax
}

func exceedsLimit(p ParameterSpec) string {
	if p.Unit == "" {
		return fmt.Sprintf("%s exceeds safe limit (%s)", p.Label, formatFloat(p.StandardMax))
	}
	return fmt.Sprintf("%s exceeds safe limit (%s %s)", p.Label, formatFloat(p.StandardMax), p.Unit)
}

// breaches lists every threshold rule in schema order.
var breaches = []breach{
	{
		param: ParamPH,
		below: true,
		warning: func(p ParameterSpec) string {
			return fmt.Sprintf("%s is too acidic (below %s)", p.Label, formatFloat(p.StandardMin))
		},
		tip: Tip{
			Title:        "Acidic Water Treatment",
			Body:         "Water is acidic. Dose lime/soda ash to raise pH; check for pipe corrosion. Target pH: 7.0-8.5.",
			Severity:     SeverityWarning,
			LinkedParams: []string{ParamPH},
		},
	},
	{
		param: ParamPH,
		warning: func(p ParameterSpec) string {
			return fmt.Sprintf("%s is too alkaline (above %s)", p.Label, formatFloat(p.StandardMax))
		},
		tip: Tip{
			Title:        "Alkaline Water Treatment",
			Body:         "Water is alkaline. Consider mild acid dosing or carbon filtration. Target pH: 6.5-8.5.",
			Severity:     SeverityWarning,
			LinkedParams: []string{ParamPH},
		},
	},
	{
		param:   ParamHardness,
		warning: exceedsLimit,
		tip: Tip{
			Title:        "Hard Water Solutions",
			Body:         "Install ion-exchange softener or RO system; descale appliances regularly. Consider water softening for bathing.",
			Severity:     SeverityAdvice,
			LinkedParams: []string{ParamHardness},
		},
	},
	{
		param:   ParamTDS,
		warning: exceedsLimit,
		tip: Tip{
			Title:        "High TDS Management",
			Body:         "Prefer RO for drinking; blend with better source if feasible. Check for saltwater intrusion or industrial discharge.",
			Severity:     SeverityAdvice,
			LinkedParams: []string{ParamTDS, ParamConductivity},
		},
	},
	{
		param:   ParamTurbidity,
		warning: exceedsLimit,
		tip: Tip{
			Title:        "Turbidity Reduction",
			Body:         "Use sediment/multimedia/sand filtration; allow settling time. Check source disturbance and erosion.",
			Severity:     SeverityWarning,
			LinkedParams: []string{ParamTurbidity},
		},
	},
	{
		param: ParamNitrate,
		warning: func(p ParameterSpec) string {
			return exceedsLimit(p) + " - unsafe for infants"
		},
		tip: Tip{
			Title:        "Nitrate Contamination Alert",
			Body:         "Avoid for infants and pregnant women. Use nitrate removal (anion exchange/RO). Investigate agricultural runoff.",
			Severity:     SeverityWarning,
			LinkedParams: []string{ParamNitrate},
		},
	},
	{
		param:   ParamFluoride,
		warning: exceedsLimit,
		tip: Tip{
			Title:        "Excess Fluoride Treatment",
			Body:         "Use defluoridation (Nalgonda/RO/activated alumina). Inform community about dental and skeletal risks.",
			Severity:     SeverityWarning,
			LinkedParams: []string{ParamFluoride},
		},
	},
	{
		param:   ParamChloride,
		warning: exceedsLimit,
		tip: Tip{
			Title:        "High Chloride Levels",
			Body:         "Use RO/distillation; check for saline intrusion or industrial discharge. Can affect taste and corrosion.",
			Severity:     SeverityAdvice,
			LinkedParams: []string{ParamChloride},
		},
	},
	{
		param: ParamConductivity,
		warning: func(p ParameterSpec) string {
			return p.Label + " indicates high ion content"
		},
		tip: Tip{
			Title:        "High Conductivity Investigation",
			Body:         "Indicates high dissolved ions. Survey for industrial discharge, seawater ingress, or natural mineral deposits.",
			Severity:     SeverityAdvice,
			LinkedParams: []string{ParamConductivity, ParamTDS},
		},
	},
	{
		param: ParamTemperature,
		tip: Tip{
			Title:        "High Temperature Management",
			Body:         "Cool/store before use. High temperature reduces dissolved oxygen and can promote bacterial growth.",
			Severity:     SeverityAdvice,
			LinkedParams: []string{ParamTemperature},
		},
	},
}

var (
	immediateSafetyTip = Tip{
		Title:    "Immediate Safety Precautions",
		Body:     "Avoid direct consumption until treated or re-tested. Use certified RO/UV systems for drinking water.",
		Severity: SeverityWarning,
	}
	treatmentOptionsTip = Tip{
		Title:    "Treatment Options",
		Body:     "Consider boiling only for microbial concerns; it does not remove chemicals like nitrates/fluoride. Retest after treatment.",
		Severity: SeverityAdvice,
	}
)

// tipRule pairs a predicate with the tip it emits.
type tipRule struct {
	applies func(MeasurementSet, Result) bool
	tip     Tip
}

func labelIs(l Label) func(MeasurementSet, Result) bool {
	return func(_ MeasurementSet, r Result) bool { return r.Label == l }
}

func crossed(p ParameterSpec, b breach) func(MeasurementSet, Result) bool {
	return func(set MeasurementSet, _ Result) bool {
		v, ok := set[p.Name]
		return ok && b.crossed(p, v)
	}
}

// buildTipRules binds the breach table to a schema. Breaches on parameters
// the schema does not define are skipped.
func buildTipRules(schema Schema) []tipRule {
	rules := []tipRule{
		{applies: labelIs(LabelPoor), tip: immediateSafetyTip},
		{applies: labelIs(LabelPoor), tip: treatmentOptionsTip},
	}
	for _, b := range breaches {
		p, ok := schema.Lookup(b.param)
		if !ok {
			continue
		}
		rules = append(rules, tipRule{applies: crossed(p, b), tip: b.tip})
	}
	return rules
}
