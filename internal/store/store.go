package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = eris.New("not found")

const (
	defaultListLimit   = 100
	maxListLimit       = 1000
	dashboardUploads   = 5
	dashboardTopAreas  = 5
	maxErrorSampleSize = 4000
)

// Store persists areas, quality records and upload audits.
type Store interface {
	// Areas
	GetOrCreateArea(ctx context.Context, name string, lat, lon *float64) (*models.Area, error)
	GetArea(ctx context.Context, id int64) (*models.AreaSummary, error)
	ListAreas(ctx context.Context) ([]models.AreaSummary, error)

	// Records
	InsertRecord(ctx context.Context, rec *models.Record) error
	ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.Record, error)

	// Uploads
	StartUpload(ctx context.Context, filename string, rowsTotal int) (*models.Upload, error)
	CompleteUpload(ctx context.Context, up *models.Upload) error
	ListUploads(ctx context.Context, limit int) ([]models.Upload, error)
	StoreUploadPayload(ctx context.Context, uploadID, filename string, payload []byte) (int64, error)
	GetUploadPayload(ctx context.Context, id int64) ([]byte, error)

	Dashboard(ctx context.Context) (*models.Dashboard, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func truncateSample(s string) string {
	if len(s) <= maxErrorSampleSize {
		return s
	}
	return s[:maxErrorSampleSize]
}

func trimName(name string) string {
	return strings.TrimSpace(name)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
