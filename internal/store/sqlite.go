package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite wraps an open database handle.
func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: writes serialise anyway, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	return NewSQLite(db), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// storedTimeLayouts covers what the driver writes for time.Time values.
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseStoredTime decodes aggregate results, which lose their column type.
func parseStoredTime(ns sql.NullString) sql.NullTime {
	if !ns.Valid {
		return sql.NullTime{}
	}
	s := ns.String
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i]
	}
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return sql.NullTime{Time: t, Valid: true}
		}
	}
	return sql.NullTime{}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (s *SQLiteStore) GetOrCreateArea(ctx context.Context, name string, lat, lon *float64) (*models.Area, error) {
	name = trimName(name)
	if name == "" {
		return nil, eris.New("sqlite: area name is required")
	}

	// Coordinates from the first row that supplies them win.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO areas (name, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			latitude = COALESCE(areas.latitude, excluded.latitude),
			longitude = COALESCE(areas.longitude, excluded.longitude)
	`, name, nullFloat(lat), nullFloat(lon), nowUTC())
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert area %q", name)
	}

	var a models.Area
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, latitude, longitude, created_at FROM areas WHERE name = ?
	`, name).Scan(&a.ID, &a.Name, &a.Latitude, &a.Longitude, &a.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get area %q", name)
	}
	return &a, nil
}

const areaSummarySelect = `
	SELECT a.id, a.name, a.latitude, a.longitude, a.created_at,
	       COUNT(r.id), AVG(r.wqi), MAX(r.sampled_at)
	FROM areas a
	LEFT JOIN records r ON r.area_id = a.id
`

func scanAreaSummary(sc interface{ Scan(...any) error }) (models.AreaSummary, error) {
	var (
		a    models.AreaSummary
		last sql.NullString
	)
	err := sc.Scan(&a.ID, &a.Name, &a.Latitude, &a.Longitude, &a.CreatedAt, &a.RecordCount, &a.AvgWQI, &last)
	a.LastSampled = parseStoredTime(last)
	return a, err
}

func (s *SQLiteStore) GetArea(ctx context.Context, id int64) (*models.AreaSummary, error) {
	row := s.db.QueryRowContext(ctx, areaSummarySelect+` WHERE a.id = ? GROUP BY a.id`, id)
	a, err := scanAreaSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get area %d", id)
	}
	return &a, nil
}

func (s *SQLiteStore) ListAreas(ctx context.Context) ([]models.AreaSummary, error) {
	return s.queryAreaSummaries(ctx, areaSummarySelect+` GROUP BY a.id ORDER BY a.name`)
}

func (s *SQLiteStore) queryAreaSummaries(ctx context.Context, query string, args ...any) ([]models.AreaSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list areas")
	}
	defer rows.Close()

	var areas []models.AreaSummary
	for rows.Next() {
		a, err := scanAreaSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area")
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

func (s *SQLiteStore) InsertRecord(ctx context.Context, rec *models.Record) error {
	rec.CreatedAt = nowUTC()
	m := rec.Measurements
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO records (area_id, sampled_at, ph, hardness, tds, turbidity, alkalinity, nitrate, fluoride, chloride, conductivity, temperature, wqi, label, confidence, source, upload_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.AreaID, rec.SampledAt.UTC(), m.PH, m.Hardness, m.TDS, m.Turbidity, m.Alkalinity, m.Nitrate, m.Fluoride, m.Chloride, m.Conductivity, m.Temperature,
		rec.WQI, rec.Label, rec.Confidence, rec.Source, rec.UploadID, rec.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert record")
	}

	rec.ID, err = result.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: record id")
	}
	return nil
}

var recordColumns = []string{
	"r.id", "r.area_id", "a.name", "r.sampled_at",
	"r.ph", "r.hardness", "r.tds", "r.turbidity", "r.alkalinity", "r.nitrate", "r.fluoride", "r.chloride", "r.conductivity", "r.temperature",
	"r.wqi", "r.label", "r.confidence", "r.source", "r.upload_id", "r.created_at",
}

// recordQuery builds the filtered record listing shared by both backends.
func recordQuery(b sq.StatementBuilderType, f models.RecordFilter) sq.SelectBuilder {
	q := b.Select(recordColumns...).
		From("records r").
		Join("areas a ON a.id = r.area_id").
		OrderBy("r.sampled_at DESC", "r.id DESC").
		Limit(uint64(clampLimit(f.Limit)))
	if f.AreaID > 0 {
		q = q.Where(sq.Eq{"r.area_id": f.AreaID})
	}
	if f.Label != "" {
		q = q.Where(sq.Eq{"r.label": f.Label})
	}
	if f.UploadID != "" {
		q = q.Where(sq.Eq{"r.upload_id": f.UploadID})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"r.sampled_at": f.Since.UTC()})
	}
	if !f.Until.IsZero() {
		q = q.Where(sq.Lt{"r.sampled_at": f.Until.UTC()})
	}
	return q
}

func recordDest(r *models.Record) []any {
	return []any{
		&r.ID, &r.AreaID, &r.AreaName, &r.SampledAt,
		&r.PH, &r.Hardness, &r.TDS, &r.Turbidity, &r.Alkalinity, &r.Nitrate, &r.Fluoride, &r.Chloride, &r.Conductivity, &r.Temperature,
		&r.WQI, &r.Label, &r.Confidence, &r.Source, &r.UploadID, &r.CreatedAt,
	}
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.Record, error) {
	query, args, err := recordQuery(sq.StatementBuilder, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build record query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(recordDest(&r)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	d := &models.Dashboard{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT area_id), AVG(wqi) FROM records
	`).Scan(&d.TotalRecords, &d.AreasCovered, &d.AvgWQI)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dashboard totals")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, COUNT(*) FROM records
		WHERE label IS NOT NULL
		GROUP BY label
		ORDER BY label
	`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dashboard labels")
	}
	for rows.Next() {
		var lc models.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan label count")
		}
		d.LabelCounts = append(d.LabelCounts, lc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: dashboard labels")
	}

	if d.RecentUploads, err = s.ListUploads(ctx, dashboardUploads); err != nil {
		return nil, err
	}

	d.TopAreas, err = s.queryAreaSummaries(ctx, areaSummarySelect+`
		GROUP BY a.id
		HAVING COUNT(r.wqi) > 0
		ORDER BY AVG(r.wqi) DESC, a.name
		LIMIT ?
	`, dashboardTopAreas)
	if err != nil {
		return nil, err
	}
	return d, nil
}
