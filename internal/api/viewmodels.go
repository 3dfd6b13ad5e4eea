package api

import (
	"database/sql"
	"math"
	"time"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

// AreaView is an area with its record statistics.
type AreaView struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	CreatedAt   time.Time  `json:"createdAt"`
	RecordCount int        `json:"recordCount"`
	AvgWQI      *float64   `json:"avgWqi"`
	LastSampled *time.Time `json:"lastSampled"`
}

// RecordView is a stored sample. Absent measurements are omitted from
// Parameters.
type RecordView struct {
	ID         int64              `json:"id"`
	AreaID     int64              `json:"areaId"`
	AreaName   string             `json:"areaName,omitempty"`
	Date       string             `json:"date"`
	Parameters wqi.MeasurementSet `json:"parameters"`
	WQI        *float64           `json:"wqi"`
	Label      *string            `json:"label"`
	Confidence *int64             `json:"confidence"`
	Source     string             `json:"source"`
	UploadID   *string            `json:"uploadId,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// UploadView is one bulk commit audit row.
type UploadView struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Status      string     `json:"status"`
	RowsTotal   int        `json:"rowsTotal"`
	RowsOK      int        `json:"rowsOk"`
	RowsFailed  int        `json:"rowsFailed"`
	ErrorSample *string    `json:"errorSample,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// DashboardView is the KPI summary.
type DashboardView struct {
	TotalRecords  int            `json:"totalRecords"`
	AreasCovered  int            `json:"areasCovered"`
	AvgWQI        *float64       `json:"avgWqi"`
	LabelCounts   map[string]int `json:"labelCounts"`
	RecentUploads []UploadView   `json:"recentUploads"`
	TopAreas      []AreaView     `json:"topAreas"`
}

func newAreaView(a models.AreaSummary) AreaView {
	return AreaView{
		ID:          a.ID,
		Name:        a.Name,
		Latitude:    nullFloat(a.Latitude),
		Longitude:   nullFloat(a.Longitude),
		CreatedAt:   a.CreatedAt,
		RecordCount: a.RecordCount,
		AvgWQI:      roundedFloat(a.AvgWQI),
		LastSampled: nullTime(a.LastSampled),
	}
}

func newAreaViews(areas []models.AreaSummary) []AreaView {
	out := make([]AreaView, len(areas))
	for i, a := range areas {
		out[i] = newAreaView(a)
	}
	return out
}

func newRecordView(r models.Record) RecordView {
	v := RecordView{
		ID:         r.ID,
		AreaID:     r.AreaID,
		AreaName:   r.AreaName,
		Date:       r.SampledAt.UTC().Format(time.DateOnly),
		Parameters: r.Measurements.Set(),
		WQI:        nullFloat(r.WQI),
		Source:     r.Source,
		CreatedAt:  r.CreatedAt,
	}
	if r.Label.Valid {
		v.Label = &r.Label.String
	}
	if r.Confidence.Valid {
		v.Confidence = &r.Confidence.Int64
	}
	if r.UploadID.Valid {
		v.UploadID = &r.UploadID.String
	}
	return v
}

func newRecordViews(records []models.Record) []RecordView {
	out := make([]RecordView, len(records))
	for i, r := range records {
		out[i] = newRecordView(r)
	}
	return out
}

func newUploadView(u models.Upload) UploadView {
	v := UploadView{
		ID:         u.ID,
		Filename:   u.Filename,
		Status:     u.Status,
		RowsTotal:  u.RowsTotal,
		RowsOK:     u.RowsOK,
		RowsFailed: u.RowsFailed,
		StartedAt:  u.StartedAt,
		FinishedAt: nullTime(u.FinishedAt),
	}
	if u.ErrorSample.Valid {
		v.ErrorSample = &u.ErrorSample.String
	}
	return v
}

func newUploadViews(uploads []models.Upload) []UploadView {
	out := make([]UploadView, len(uploads))
	for i, u := range uploads {
		out[i] = newUploadView(u)
	}
	return out
}

func newDashboardView(d *models.Dashboard) DashboardView {
	v := DashboardView{
		TotalRecords:  d.TotalRecords,
		AreasCovered:  d.AreasCovered,
		AvgWQI:        roundedFloat(d.AvgWQI),
		LabelCounts:   map[string]int{},
		RecentUploads: newUploadViews(d.RecentUploads),
		TopAreas:      newAreaViews(d.TopAreas),
	}
	for _, l := range []wqi.Label{wqi.LabelGood, wqi.LabelModerate, wqi.LabelPoor} {
		v.LabelCounts[string(l)] = 0
	}
	for _, lc := range d.LabelCounts {
		v.LabelCounts[lc.Label] = lc.Count
	}
	return v
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func roundedFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := math.Round(n.Float64*100) / 100
	return &v
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
