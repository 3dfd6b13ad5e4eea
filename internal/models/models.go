package models

import (
	"database/sql"
	"math"
	"time"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

// Record sources.
const (
	SourceBulkUpload = "bulk_upload"
	SourceManual     = "manual"
)

// Upload statuses.
const (
	UploadProcessing = "processing"
	UploadCompleted  = "completed"
	UploadFailed     = "failed"
)

type Area struct {
	ID        int64
	Name      string
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
	CreatedAt time.Time
}

// AreaSummary is an area with aggregates over its records.
type AreaSummary struct {
	Area
	RecordCount int
	AvgWQI      sql.NullFloat64
	LastSampled sql.NullTime
}

// Measurements holds the ten stored parameters; absent values are NULL.
type Measurements struct {
	PH           sql.NullFloat64
	Hardness     sql.NullFloat64
	TDS          sql.NullFloat64
	Turbidity    sql.NullFloat64
	Alkalinity   sql.NullFloat64
	Nitrate      sql.NullFloat64
	Fluoride     sql.NullFloat64
	Chloride     sql.NullFloat64
	Conductivity sql.NullFloat64
	Temperature  sql.NullFloat64
}

func (m *Measurements) fields() map[string]*sql.NullFloat64 {
	return map[string]*sql.NullFloat64{
		wqi.ParamPH:           &m.PH,
		wqi.ParamHardness:     &m.Hardness,
		wqi.ParamTDS:          &m.TDS,
		wqi.ParamTurbidity:    &m.Turbidity,
		wqi.ParamAlkalinity:   &m.Alkalinity,
		wqi.ParamNitrate:      &m.Nitrate,
		wqi.ParamFluoride:     &m.Fluoride,
		wqi.ParamChloride:     &m.Chloride,
		wqi.ParamConductivity: &m.Conductivity,
		wqi.ParamTemperature:  &m.Temperature,
	}
}

// Set returns the present values keyed by parameter name.
func (m Measurements) Set() wqi.MeasurementSet {
	set := wqi.MeasurementSet{}
	for name, f := range m.fields() {
		if f.Valid {
			set[name] = f.Float64
		}
	}
	return set
}

// MeasurementsFromSet keeps the known parameters of set. NaN counts as absent.
func MeasurementsFromSet(set wqi.MeasurementSet) Measurements {
	var m Measurements
	for name, f := range m.fields() {
		if v, ok := set[name]; ok && !math.IsNaN(v) {
			*f = sql.NullFloat64{Float64: v, Valid: true}
		}
	}
	return m
}

type Record struct {
	ID        int64
	AreaID    int64
	AreaName  string // joined on read
	SampledAt time.Time
	Measurements
	WQI        sql.NullFloat64
	Label      sql.NullString
	Confidence sql.NullInt64
	Source     string
	UploadID   sql.NullString
	CreatedAt  time.Time
}

// ApplyResult copies the scored fields of res onto the record.
func (r *Record) ApplyResult(res wqi.Result) {
	r.WQI = sql.NullFloat64{Float64: res.WQI, Valid: true}
	r.Label = sql.NullString{String: string(res.Label), Valid: true}
	r.Confidence = sql.NullInt64{Int64: int64(res.Confidence), Valid: true}
}

// RecordFilter narrows ListRecords. Zero values mean no constraint.
type RecordFilter struct {
	AreaID   int64
	Label    string
	UploadID string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Upload audits one bulk commit, whether from the API or the CLI.
type Upload struct {
	ID          string
	Filename    string
	Status      string
	RowsTotal   int
	RowsOK      int
	RowsFailed  int
	ErrorSample sql.NullString
	StartedAt   time.Time
	FinishedAt  sql.NullTime
}

// UploadPayload is the archived source file for an upload.
type UploadPayload struct {
	ID         int64
	UploadID   string
	Filename   string
	Hash       string
	Size       int64
	Compressed []byte
	CreatedAt  time.Time
}

type LabelCount struct {
	Label string
	Count int
}

// Dashboard is the KPI snapshot across all records.
type Dashboard struct {
	TotalRecords  int
	AreasCovered  int
	AvgWQI        sql.NullFloat64
	LabelCounts   []LabelCount
	RecentUploads []Upload
	TopAreas      []AreaSummary
}
