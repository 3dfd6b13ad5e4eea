package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func ptr(v float64) *float64 { return &v }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func insertRecord(t *testing.T, st *SQLiteStore, areaID int64, date string, wqi float64, label string) *models.Record {
	t.Helper()
	rec := &models.Record{
		AreaID:    areaID,
		SampledAt: day(date),
		Measurements: models.Measurements{
			PH: sql.NullFloat64{Float64: 7.1, Valid: true},
		},
		WQI:        sql.NullFloat64{Float64: wqi, Valid: true},
		Label:      sql.NullString{String: label, Valid: true},
		Confidence: sql.NullInt64{Int64: 11, Valid: true},
		Source:     models.SourceBulkUpload,
	}
	require.NoError(t, st.InsertRecord(context.Background(), rec))
	return rec
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	// Re-running is a no-op.
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, store.Ping(context.Background()))
}

func TestGetOrCreateArea(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a, err := store.GetOrCreateArea(ctx, "  Riverside  ", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Riverside", a.Name)
	assert.False(t, a.Latitude.Valid)

	// A later row may fill in missing coordinates but not overwrite them.
	b, err := store.GetOrCreateArea(ctx, "Riverside", ptr(12.97), ptr(77.59))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 12.97, b.Latitude.Float64)

	c, err := store.GetOrCreateArea(ctx, "Riverside", ptr(1), ptr(2))
	require.NoError(t, err)
	assert.Equal(t, 12.97, c.Latitude.Float64)
	assert.Equal(t, 77.59, c.Longitude.Float64)

	_, err = store.GetOrCreateArea(ctx, "   ", nil, nil)
	assert.Error(t, err)
}

func TestGetOrCreateArea_Concurrent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ids := make([]int64, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := store.GetOrCreateArea(ctx, "Lakeview", nil, nil)
			if err == nil {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	areas, err := store.ListAreas(ctx)
	require.NoError(t, err)
	assert.Len(t, areas, 1)
}

func TestInsertAndListRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	north, err := store.GetOrCreateArea(ctx, "North", nil, nil)
	require.NoError(t, err)
	south, err := store.GetOrCreateArea(ctx, "South", nil, nil)
	require.NoError(t, err)

	first := insertRecord(t, store, north.ID, "2024-01-10", 91.5, "Good")
	insertRecord(t, store, north.ID, "2024-02-10", 65, "Moderate")
	insertRecord(t, store, south.ID, "2024-03-10", 40, "Poor")
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	all, err := store.ListRecords(ctx, models.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "South", all[0].AreaName, "newest first")
	assert.True(t, all[2].SampledAt.Equal(day("2024-01-10")))
	assert.Equal(t, 7.1, all[2].PH.Float64)
	assert.False(t, all[2].TDS.Valid)

	tests := []struct {
		name   string
		filter models.RecordFilter
		want   int
	}{
		{"by area", models.RecordFilter{AreaID: north.ID}, 2},
		{"by label", models.RecordFilter{Label: "Poor"}, 1},
		{"since", models.RecordFilter{Since: day("2024-02-01")}, 2},
		{"until", models.RecordFilter{Until: day("2024-02-01")}, 1},
		{"limit", models.RecordFilter{Limit: 1}, 1},
		{"no match", models.RecordFilter{UploadID: "missing"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListRecords(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestAreaSummaries(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	north, err := store.GetOrCreateArea(ctx, "North", nil, nil)
	require.NoError(t, err)
	_, err = store.GetOrCreateArea(ctx, "Empty", nil, nil)
	require.NoError(t, err)

	insertRecord(t, store, north.ID, "2024-01-10", 90, "Good")
	insertRecord(t, store, north.ID, "2024-02-10", 70, "Moderate")

	got, err := store.GetArea(ctx, north.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RecordCount)
	assert.InDelta(t, 80, got.AvgWQI.Float64, 1e-9)
	require.True(t, got.LastSampled.Valid)
	assert.True(t, got.LastSampled.Time.Equal(day("2024-02-10")))

	areas, err := store.ListAreas(ctx)
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "Empty", areas[0].Name)
	assert.Equal(t, 0, areas[0].RecordCount)
	assert.False(t, areas[0].AvgWQI.Valid)

	_, err = store.GetArea(ctx, 9999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpload_StartAndComplete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	up, err := store.StartUpload(ctx, "samples.csv", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, up.ID)
	assert.Equal(t, models.UploadProcessing, up.Status)

	up.RowsOK = 2
	up.RowsFailed = 1
	up.ErrorSample = sql.NullString{String: "Row 3: area name is required", Valid: true}
	require.NoError(t, store.CompleteUpload(ctx, up))
	assert.Equal(t, models.UploadCompleted, up.Status)

	failed, err := store.StartUpload(ctx, "", 2)
	require.NoError(t, err)
	require.NoError(t, store.CompleteUpload(ctx, failed))
	assert.Equal(t, models.UploadFailed, failed.Status)
	assert.Equal(t, "upload", failed.Filename)

	uploads, err := store.ListUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, failed.ID, uploads[0].ID)
	assert.Equal(t, 2, uploads[1].RowsOK)
	assert.Equal(t, "Row 3: area name is required", uploads[1].ErrorSample.String)
	assert.True(t, uploads[1].FinishedAt.Valid)

	assert.NoError(t, store.CompleteUpload(ctx, nil))
}

func TestUploadPayload_RoundTripAndDedup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	up, err := store.StartUpload(ctx, "samples.csv", 1)
	require.NoError(t, err)

	payload := []byte("area,date,ph\nNorth,2024-01-01,7.2\n")
	id, err := store.StoreUploadPayload(ctx, up.ID, "samples.csv", payload)
	require.NoError(t, err)
	assert.NotZero(t, id)

	again, err := store.StoreUploadPayload(ctx, "", "copy.csv", payload)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	got, err := store.GetUploadPayload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = store.GetUploadPayload(ctx, 424242)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDashboard(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	empty, err := store.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalRecords)
	assert.False(t, empty.AvgWQI.Valid)

	north, err := store.GetOrCreateArea(ctx, "North", nil, nil)
	require.NoError(t, err)
	south, err := store.GetOrCreateArea(ctx, "South", nil, nil)
	require.NoError(t, err)
	insertRecord(t, store, north.ID, "2024-01-10", 90, "Good")
	insertRecord(t, store, north.ID, "2024-01-11", 84, "Good")
	insertRecord(t, store, south.ID, "2024-01-12", 42, "Poor")

	up, err := store.StartUpload(ctx, "a.csv", 3)
	require.NoError(t, err)
	up.RowsOK = 3
	require.NoError(t, store.CompleteUpload(ctx, up))

	d, err := store.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, d.TotalRecords)
	assert.Equal(t, 2, d.AreasCovered)
	assert.InDelta(t, 72, d.AvgWQI.Float64, 1e-9)
	assert.Equal(t, []models.LabelCount{{Label: "Good", Count: 2}, {Label: "Poor", Count: 1}}, d.LabelCounts)
	require.Len(t, d.RecentUploads, 1)
	require.Len(t, d.TopAreas, 2)
	assert.Equal(t, "North", d.TopAreas[0].Name)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, maxListLimit, clampLimit(maxListLimit+1))
}
