package wqi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSpec(t *testing.T, name string) ParameterSpec {
	t.Helper()
	p, ok := DefaultSchema().Lookup(name)
	require.True(t, ok, "missing %s", name)
	return p
}

func idealSet() MeasurementSet {
	return MeasurementSet{
		ParamPH:           7.0,
		ParamHardness:     100,
		ParamTDS:          200,
		ParamTurbidity:    1,
		ParamAlkalinity:   100,
		ParamNitrate:      10,
		ParamFluoride:     0.7,
		ParamChloride:     100,
		ParamConductivity: 500,
	}
}

func TestDefaultSchema(t *testing.T) {
	s := DefaultSchema()
	require.NoError(t, s.Validate())
	assert.Equal(t, 9, s.ScoredCount())
	assert.Len(t, s.Parameters(), 10)
	assert.Equal(t, ParamPH, s.Names()[0])
	assert.Equal(t, ParamTemperature, s.Names()[9])

	temp := mustSpec(t, ParamTemperature)
	assert.False(t, temp.Scored())

	// Callers cannot mutate the schema through returned slices.
	params := s.Parameters()
	params[0].Weight = 1
	assert.Equal(t, 0.15, mustSpec(t, ParamPH).Weight)
}

func TestNewSchemaRejectsBadTables(t *testing.T) {
	tests := []struct {
		name   string
		params []ParameterSpec
	}{
		{
			name: "duplicate name",
			params: []ParameterSpec{
				{Name: "a", ValidMax: 1, StandardMax: 1, Weight: 0.5},
				{Name: "a", ValidMax: 1, StandardMax: 1, Weight: 0.5},
			},
		},
		{
			name:   "weights do not sum to one",
			params: []ParameterSpec{{Name: "a", ValidMax: 1, StandardMax: 1, Weight: 0.5}},
		},
		{
			name:   "empty valid range",
			params: []ParameterSpec{{Name: "a", ValidMin: 5, ValidMax: 5, StandardMax: 1, Weight: 1}},
		},
		{
			name:   "no scored parameters",
			params: []ParameterSpec{{Name: "a", ValidMax: 1}},
		},
		{
			name:   "inverted standard band",
			params: []ParameterSpec{{Name: "a", ValidMax: 14, StandardMin: 9, StandardMax: 8, Bounded: true, Weight: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.params...)
			assert.Error(t, err)
		})
	}
}

func TestSubIndex(t *testing.T) {
	tests := []struct {
		name  string
		param string
		value float64
		want  float64
	}{
		{"ph at ideal", ParamPH, 7.0, 100},
		{"ph inside band", ParamPH, 7.2, 96},
		{"ph at upper standard", ParamPH, 8.5, 70},
		{"ph below band", ParamPH, 6.0, 95},
		{"ph far below band floors at zero", ParamPH, 0, 35},
		{"ph strongly alkaline", ParamPH, 14, 45},
		{"tds within limit", ParamTDS, 300, 90},
		{"tds below ideal is capped", ParamTDS, 100, 100},
		{"nitrate over limit", ParamNitrate, 50, 90},
		{"turbidity far over limit floors at zero", ParamTurbidity, 60, 0},
		{"zero turbidity is capped", ParamTurbidity, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubIndex(mustSpec(t, tt.param), tt.value)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		wqi  float64
		want Label
	}{
		{100, LabelGood},
		{80, LabelGood},
		{79.99, LabelModerate},
		{60, LabelModerate},
		{59.99, LabelPoor},
		{0, LabelPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.wqi), "wqi %v", tt.wqi)
	}
}

func TestScoreSingleParameter(t *testing.T) {
	sc := NewScorer(DefaultSchema())

	res, err := sc.Score(MeasurementSet{ParamPH: 7.2})
	require.NoError(t, err)
	assert.Equal(t, 96.0, res.WQI)
	assert.Equal(t, LabelGood, res.Label)
	assert.Equal(t, 11, res.Confidence)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.ParameterContributions, 1)
	assert.Equal(t, Contribution{Parameter: ParamPH, Label: "pH", Contribution: 4, Impact: ImpactPositive}, res.ParameterContributions[0])
}

func TestScoreRenormalisesWeights(t *testing.T) {
	sc := NewScorer(DefaultSchema())

	res, err := sc.Score(MeasurementSet{ParamPH: 7.2, ParamTDS: 300})
	require.NoError(t, err)
	// (96*0.15 + 90*0.10) / 0.25
	assert.InDelta(t, 93.6, res.WQI, 1e-9)
	assert.Equal(t, 22, res.Confidence)

	require.Len(t, res.ParameterContributions, 2)
	assert.Equal(t, ParamTDS, res.ParameterContributions[0].Parameter)
	assert.Equal(t, 10, res.ParameterContributions[0].Contribution)
	assert.Equal(t, ParamPH, res.ParameterContributions[1].Parameter)
}

func TestScoreAllIdeal(t *testing.T) {
	sc := NewScorer(DefaultSchema())

	res, err := sc.Score(idealSet())
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.WQI)
	assert.Equal(t, LabelGood, res.Label)
	assert.Equal(t, 100, res.Confidence)
	assert.Empty(t, res.Warnings)
	assert.NotNil(t, res.Warnings)

	require.Len(t, res.ParameterContributions, 5)
	wantOrder := []string{ParamPH, ParamHardness, ParamTDS, ParamTurbidity, ParamAlkalinity}
	for i, c := range res.ParameterContributions {
		assert.Equal(t, wantOrder[i], c.Parameter, "ties keep schema order")
		assert.Equal(t, 0, c.Contribution)
		assert.Equal(t, ImpactPositive, c.Impact)
	}
	assert.Empty(t, sc.Tips(idealSet(), res))
}

func TestScoreIsOrderInvariant(t *testing.T) {
	sc := NewScorer(DefaultSchema())

	a := MeasurementSet{}
	a[ParamNitrate] = 30
	a[ParamPH] = 6.8
	a[ParamChloride] = 400
	a[ParamFluoride] = 1.2

	b := MeasurementSet{}
	b[ParamFluoride] = 1.2
	b[ParamChloride] = 400
	b[ParamPH] = 6.8
	b[ParamNitrate] = 30

	ra, err := sc.Score(a)
	require.NoError(t, err)
	rb, err := sc.Score(b)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
	assert.Equal(t, ra.WQI, round2(ra.WQI))
}

func TestScoreContributionsRanked(t *testing.T) {
	sc := NewScorer(DefaultSchema())

	res, err := sc.Score(MeasurementSet{
		ParamPH:           5.5,
		ParamHardness:     450,
		ParamTDS:          900,
		ParamTurbidity:    12,
		ParamAlkalinity:   150,
		ParamNitrate:      60,
		ParamFluoride:     2.5,
		ParamChloride:     320,
		ParamConductivity: 2200,
	})
	require.NoError(t, err)
	require.Len(t, res.ParameterContributions, 5)
	for i := 1; i < len(res.ParameterContributions); i++ {
		assert.GreaterOrEqual(t, res.ParameterContributions[i-1].Contribution, res.ParameterContributions[i].Contribution)
	}
	for _, c := range res.ParameterContributions {
		if c.Contribution > 30 {
			assert.Equal(t, ImpactNegative, c.Impact, c.Parameter)
		}
	}
	assert.Len(t, res.Warnings, 8)
	assert.Equal(t, "pH is too acidic (below 6.5)", res.Warnings[0])
	assert.Equal(t, "Conductivity indicates high ion content", res.Warnings[7])
}

func TestScoreNoParameters(t *testing.T) {
	sc := NewScorer(DefaultSchema())

	tests := []struct {
		name string
		set  MeasurementSet
	}{
		{"empty", MeasurementSet{}},
		{"nil", nil},
		{"temperature only", MeasurementSet{ParamTemperature: 20}},
		{"unknown only", MeasurementSet{"lead": 0.01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sc.Score(tt.set)
			assert.True(t, errors.Is(err, ErrNoParameters))
		})
	}
}

func TestNitrateBreach(t *testing.T) {
	sc := NewScorer(DefaultSchema())
	set := MeasurementSet{ParamNitrate: 50}

	res, err := sc.Score(set)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nitrate exceeds safe limit (45 mg/L) - unsafe for infants"}, res.Warnings)

	tips := sc.Tips(set, res)
	require.Len(t, tips, 1)
	assert.Equal(t, "Nitrate Contamination Alert", tips[0].Title)
	assert.Equal(t, SeverityWarning, tips[0].Severity)
	assert.Equal(t, []string{ParamNitrate}, tips[0].LinkedParams)
}

func TestTips(t *testing.T) {
	sc := NewScorer(DefaultSchema())

	tests := []struct {
		name       string
		set        MeasurementSet
		wantTitles []string
	}{
		{
			name:       "poor water leads with safety tips",
			set:        MeasurementSet{ParamTurbidity: 60, ParamNitrate: 100},
			wantTitles: []string{"Immediate Safety Precautions", "Treatment Options", "Turbidity Reduction", "Nitrate Contamination Alert"},
		},
		{
			name:       "alkaline",
			set:        MeasurementSet{ParamPH: 9.0},
			wantTitles: []string{"Alkaline Water Treatment"},
		},
		{
			name:       "acidic",
			set:        MeasurementSet{ParamPH: 6.0},
			wantTitles: []string{"Acidic Water Treatment"},
		},
		{
			name:       "tds tip precedes turbidity tip",
			set:        MeasurementSet{ParamTurbidity: 6, ParamTDS: 520},
			wantTitles: []string{"High TDS Management", "Turbidity Reduction"},
		},
		{
			name:       "hot water with no scored breach",
			set:        MeasurementSet{ParamPH: 7.0, ParamTemperature: 40},
			wantTitles: []string{"High Temperature Management"},
		},
		{
			name:       "at the limit is not a breach",
			set:        MeasurementSet{ParamHardness: 300, ParamFluoride: 1.5, ParamTemperature: 35},
			wantTitles: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := sc.Score(tt.set)
			require.NoError(t, err)

			var titles []string
			for _, tip := range sc.Tips(tt.set, res) {
				titles = append(titles, tip.Title)
			}
			assert.Equal(t, tt.wantTitles, titles)
		})
	}
}

func TestTipsDoNotAliasRules(t *testing.T) {
	sc := NewScorer(DefaultSchema())
	set := MeasurementSet{ParamTDS: 520}
	res, err := sc.Score(set)
	require.NoError(t, err)

	tips := sc.Tips(set, res)
	require.Len(t, tips, 1)
	tips[0].LinkedParams[0] = "mutated"

	again := sc.Tips(set, res)
	assert.Equal(t, []string{ParamTDS, ParamConductivity}, again[0].LinkedParams)
}

func TestValidateMeasurements(t *testing.T) {
	s := DefaultSchema()

	require.NoError(t, s.ValidateMeasurements(idealSet()))
	require.NoError(t, s.ValidateMeasurements(MeasurementSet{ParamTDS: 0, ParamTemperature: 50}))

	err := s.ValidateMeasurements(MeasurementSet{
		ParamPH:          15,
		ParamTDS:         2500,
		ParamTemperature: 60,
		"lead":           0.1,
	})
	var invalid *InvalidParametersError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []FieldError{
		{Field: ParamPH, Message: "Must be between 0 and 14"},
		{Field: ParamTDS, Message: "Must be between 0 and 2000 mg/L"},
		{Field: ParamTemperature, Message: "Must be between 0 and 50°C"},
		{Field: "lead", Message: "Unknown parameter"},
	}, invalid.Fields)
	assert.Contains(t, err.Error(), "ph: Must be between 0 and 14")
}
