package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// NewPostgres connects to connString, retrying with exponential backoff
// until the server answers a ping or the connect timeout elapses.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	connectTimeout := 30 * time.Second
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
		if poolCfg.ConnectTimeout > 0 {
			connectTimeout = poolCfg.ConnectTimeout
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectTimeout

	var pool *pgxpool.Pool
	err = backoff.Retry(func() error {
		p, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "postgres: create pool"))
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			zap.L().Warn("postgres: ping failed, retrying", zap.Error(err))
			return eris.Wrap(err, "postgres: ping")
		}
		pool = p
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS areas (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS uploads (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	status       TEXT NOT NULL,
	rows_total   INTEGER NOT NULL DEFAULT 0,
	rows_ok      INTEGER NOT NULL DEFAULT 0,
	rows_failed  INTEGER NOT NULL DEFAULT 0,
	error_sample TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS records (
	id           BIGSERIAL PRIMARY KEY,
	area_id      BIGINT NOT NULL REFERENCES areas(id),
	sampled_at   TIMESTAMPTZ NOT NULL,
	ph           DOUBLE PRECISION,
	hardness     DOUBLE PRECISION,
	tds          DOUBLE PRECISION,
	turbidity    DOUBLE PRECISION,
	alkalinity   DOUBLE PRECISION,
	nitrate      DOUBLE PRECISION,
	fluoride     DOUBLE PRECISION,
	chloride     DOUBLE PRECISION,
	conductivity DOUBLE PRECISION,
	temperature  DOUBLE PRECISION,
	wqi          DOUBLE PRECISION,
	label        TEXT,
	confidence   INTEGER,
	source       TEXT NOT NULL,
	upload_id    TEXT REFERENCES uploads(id),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_area_sampled ON records(area_id, sampled_at);
CREATE INDEX IF NOT EXISTS idx_records_label ON records(label);
CREATE INDEX IF NOT EXISTS idx_records_upload ON records(upload_id);
CREATE INDEX IF NOT EXISTS idx_uploads_started ON uploads(started_at);

CREATE TABLE IF NOT EXISTS upload_payloads (
	id                 BIGSERIAL PRIMARY KEY,
	upload_id          TEXT REFERENCES uploads(id),
	filename           TEXT NOT NULL,
	payload_hash       TEXT NOT NULL UNIQUE,
	size_bytes         BIGINT NOT NULL,
	payload_compressed BYTEA NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	zap.L().Info("postgres: schema up to date")
	return nil
}

func (s *PostgresStore) GetOrCreateArea(ctx context.Context, name string, lat, lon *float64) (*models.Area, error) {
	name = trimName(name)
	if name == "" {
		return nil, eris.New("postgres: area name is required")
	}

	query, args, err := psql().Insert("areas").
		Columns("name", "latitude", "longitude").
		Values(name, nullFloat(lat), nullFloat(lon)).
		Suffix(`ON CONFLICT (name) DO UPDATE SET
			latitude = COALESCE(areas.latitude, EXCLUDED.latitude),
			longitude = COALESCE(areas.longitude, EXCLUDED.longitude)
			RETURNING id, name, latitude, longitude, created_at`).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build area upsert")
	}

	var a models.Area
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&a.ID, &a.Name, &a.Latitude, &a.Longitude, &a.CreatedAt); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert area %q", name)
	}
	return &a, nil
}

func areaSummaries() sq.SelectBuilder {
	return psql().Select(
		"a.id", "a.name", "a.latitude", "a.longitude", "a.created_at",
		"COUNT(r.id)", "AVG(r.wqi)", "MAX(r.sampled_at)",
	).
		From("areas a").
		LeftJoin("records r ON r.area_id = a.id").
		GroupBy("a.id")
}

func areaSummaryDest(a *models.AreaSummary) []any {
	return []any{&a.ID, &a.Name, &a.Latitude, &a.Longitude, &a.CreatedAt, &a.RecordCount, &a.AvgWQI, &a.LastSampled}
}

func (s *PostgresStore) GetArea(ctx context.Context, id int64) (*models.AreaSummary, error) {
	query, args, err := areaSummaries().Where(sq.Eq{"a.id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build area query")
	}

	var a models.AreaSummary
	err = s.pool.QueryRow(ctx, query, args...).Scan(areaSummaryDest(&a)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get area %d", id)
	}
	return &a, nil
}

func (s *PostgresStore) ListAreas(ctx context.Context) ([]models.AreaSummary, error) {
	return s.queryAreaSummaries(ctx, areaSummaries().OrderBy("a.name"))
}

func (s *PostgresStore) queryAreaSummaries(ctx context.Context, q sq.SelectBuilder) ([]models.AreaSummary, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build area query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list areas")
	}
	defer rows.Close()

	var areas []models.AreaSummary
	for rows.Next() {
		var a models.AreaSummary
		if err := rows.Scan(areaSummaryDest(&a)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area")
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

func (s *PostgresStore) InsertRecord(ctx context.Context, rec *models.Record) error {
	m := rec.Measurements
	query, args, err := psql().Insert("records").
		Columns("area_id", "sampled_at", "ph", "hardness", "tds", "turbidity", "alkalinity", "nitrate", "fluoride", "chloride", "conductivity", "temperature", "wqi", "label", "confidence", "source", "upload_id").
		Values(rec.AreaID, rec.SampledAt.UTC(), m.PH, m.Hardness, m.TDS, m.Turbidity, m.Alkalinity, m.Nitrate, m.Fluoride, m.Chloride, m.Conductivity, m.Temperature, rec.WQI, rec.Label, rec.Confidence, rec.Source, rec.UploadID).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build record insert")
	}

	if err := s.pool.QueryRow(ctx, query, args...).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return eris.Wrap(err, "postgres: insert record")
	}
	return nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.Record, error) {
	query, args, err := recordQuery(psql(), filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build record query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(recordDest(&r)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) StartUpload(ctx context.Context, filename string, rowsTotal int) (*models.Upload, error) {
	up := newUpload(filename, rowsTotal)
	query, args, err := psql().Insert("uploads").
		Columns("id", "filename", "status", "rows_total", "started_at").
		Values(up.ID, up.Filename, up.Status, up.RowsTotal, up.StartedAt).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build upload insert")
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return nil, eris.Wrap(err, "postgres: start upload")
	}
	return up, nil
}

func (s *PostgresStore) CompleteUpload(ctx context.Context, up *models.Upload) error {
	if up == nil {
		return nil
	}
	finishUpload(up)

	query, args, err := psql().Update("uploads").
		SetMap(map[string]any{
			"status":       up.Status,
			"rows_total":   up.RowsTotal,
			"rows_ok":      up.RowsOK,
			"rows_failed":  up.RowsFailed,
			"error_sample": up.ErrorSample,
			"finished_at":  up.FinishedAt,
		}).
		Where(sq.Eq{"id": up.ID}).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build upload update")
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "postgres: complete upload %s", up.ID)
	}
	return nil
}

func (s *PostgresStore) ListUploads(ctx context.Context, limit int) ([]models.Upload, error) {
	query, args, err := psql().
		Select("id", "filename", "status", "rows_total", "rows_ok", "rows_failed", "error_sample", "started_at", "finished_at").
		From("uploads").
		OrderBy("started_at DESC").
		Limit(uint64(clampLimit(limit))).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build upload query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list uploads")
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		var u models.Upload
		if err := rows.Scan(uploadDest(&u)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan upload")
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

func (s *PostgresStore) StoreUploadPayload(ctx context.Context, uploadID, filename string, payload []byte) (int64, error) {
	compressed, hash, err := compressPayload(payload)
	if err != nil {
		return 0, err
	}

	var upload sql.NullString
	if uploadID != "" {
		upload = sql.NullString{String: uploadID, Valid: true}
	}

	query, args, err := psql().Insert("upload_payloads").
		Columns("upload_id", "filename", "payload_hash", "size_bytes", "payload_compressed").
		Values(upload, filename, hash, len(payload), compressed).
		Suffix(`ON CONFLICT (payload_hash) DO UPDATE SET upload_id = COALESCE(upload_payloads.upload_id, EXCLUDED.upload_id) RETURNING id`).
		ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "postgres: build payload insert")
	}

	var id int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, eris.Wrap(err, "postgres: insert upload payload")
	}
	return id, nil
}

func (s *PostgresStore) GetUploadPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.pool.QueryRow(ctx, `SELECT payload_compressed FROM upload_payloads WHERE id = $1`, id).Scan(&compressed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get upload payload %d", id)
	}
	return decompressPayload(compressed)
}

func (s *PostgresStore) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	d := &models.Dashboard{}
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT area_id), AVG(wqi) FROM records`).
		Scan(&d.TotalRecords, &d.AreasCovered, &d.AvgWQI)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dashboard totals")
	}

	rows, err := s.pool.Query(ctx, `SELECT label, COUNT(*) FROM records WHERE label IS NOT NULL GROUP BY label ORDER BY label`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dashboard labels")
	}
	for rows.Next() {
		var lc models.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan label count")
		}
		d.LabelCounts = append(d.LabelCounts, lc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: dashboard labels")
	}

	if d.RecentUploads, err = s.ListUploads(ctx, dashboardUploads); err != nil {
		return nil, err
	}

	d.TopAreas, err = s.queryAreaSummaries(ctx, areaSummaries().
		Having("COUNT(r.wqi) > 0").
		OrderBy("AVG(r.wqi) DESC", "a.name").
		Limit(dashboardTopAreas))
	if err != nil {
		return nil, err
	}
	return d, nil
}
