package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/store"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func TestImporter_Process(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	im := NewImporter(st, wqi.NewScorer(wqi.DefaultSchema()), CommitOptions{BatchSize: 2})

	rows := []Row{
		validRow("North", "2024-01-01"),
		validRow("North", "2024-01-02"),
		{"area": "", "date": "2024-01-03", "ph": "7"},
	}
	payload := []byte("raw file bytes")

	res, err := im.Process(ctx, "samples.csv", rows, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, res.UploadID)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"Row 3: area name is required"}, res.Errors)

	uploads, err := st.ListUploads(ctx, 5)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	up := uploads[0]
	assert.Equal(t, res.UploadID, up.ID)
	assert.Equal(t, models.UploadCompleted, up.Status)
	assert.Equal(t, 3, up.RowsTotal)
	assert.Equal(t, 2, up.RowsOK)
	assert.Equal(t, "Row 3: area name is required", up.ErrorSample.String)

	records, err := st.ListRecords(ctx, models.RecordFilter{UploadID: res.UploadID})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "North", records[0].AreaName)
	assert.True(t, records[0].Label.Valid)

	// The raw file is archived once; the same bytes dedupe to the same row.
	id, err := st.StoreUploadPayload(ctx, "", "again.csv", payload)
	require.NoError(t, err)
	got, err := st.GetUploadPayload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestImporter_AllRowsFail(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	im := NewImporter(st, wqi.NewScorer(wqi.DefaultSchema()), CommitOptions{})

	res, err := im.Process(ctx, "bad.csv", []Row{{"area": "North", "date": "never"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	uploads, err := st.ListUploads(ctx, 5)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, models.UploadFailed, uploads[0].Status)
}

func TestImporter_DecodeValidateCommit(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	schema := wqi.DefaultSchema()

	csv := "Area,Latitude,Longitude,Date,pH,Hardness,TDS,Turbidity,Alkalinity,Nitrate,Fluoride,Chloride,Conductivity,Temperature\n" +
		"Lakeview,12.9,77.6,2024-05-01,7.0,100,200,1,100,10,0.7,100,500,22\n" +
		"Lakeview,,,2024-05-02,12,600,1500,60,450,100,5,600,3000,36\n"

	table, err := DecodeTable("lake.csv", []byte(csv))
	require.NoError(t, err)
	vres, err := NewValidator(schema).Validate(table)
	require.NoError(t, err)
	assert.Zero(t, vres.ErrorCount)

	res, err := NewImporter(st, wqi.NewScorer(schema), CommitOptions{}).Process(ctx, "lake.csv", table.Rows, []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	areas, err := st.ListAreas(ctx)
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, 2, areas[0].RecordCount)
	assert.Equal(t, 12.9, areas[0].Latitude.Float64)

	records, err := st.ListRecords(ctx, models.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, string(wqi.LabelGood), records[1].Label.String)
	assert.Equal(t, 100.0, records[1].WQI.Float64)
	assert.Equal(t, string(wqi.LabelPoor), records[0].Label.String)
}
