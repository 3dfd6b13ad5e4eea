package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS areas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    latitude REAL,
    longitude REAL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    area_id INTEGER NOT NULL REFERENCES areas(id),
    sampled_at DATETIME NOT NULL,
    ph REAL,
    hardness REAL,
    tds REAL,
    turbidity REAL,
    alkalinity REAL,
    nitrate REAL,
    fluoride REAL,
    chloride REAL,
    conductivity REAL,
    temperature REAL,
    wqi REAL,
    label TEXT,
    confidence INTEGER,
    source TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_area_sampled ON records(area_id, sampled_at);
CREATE INDEX IF NOT EXISTS idx_records_label ON records(label);
`,
	},
	{
		Version:     2,
		Description: "Add uploads table for bulk commit auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS uploads (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    status TEXT NOT NULL,
    rows_total INTEGER NOT NULL DEFAULT 0,
    rows_ok INTEGER NOT NULL DEFAULT 0,
    rows_failed INTEGER NOT NULL DEFAULT 0,
    error_sample TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

ALTER TABLE records ADD COLUMN upload_id TEXT REFERENCES uploads(id);

CREATE INDEX IF NOT EXISTS idx_uploads_started ON uploads(started_at);
CREATE INDEX IF NOT EXISTS idx_records_upload ON records(upload_id);
`,
	},
	{
		Version:     3,
		Description: "Add upload_payloads table for source file archival",
		SQL: `
CREATE TABLE IF NOT EXISTS upload_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    upload_id TEXT REFERENCES uploads(id),
    filename TEXT NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE,
    size_bytes INTEGER NOT NULL,
    payload_compressed BLOB NOT NULL,
    created_at DATETIME NOT NULL
);
`,
	},
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return eris.Wrap(err, "sqlite: ensure migrations table")
	}

	applied, err := s.getAppliedMigrations(ctx)
	if err != nil {
		return eris.Wrap(err, "sqlite: get applied migrations")
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		zap.L().Info("migrations: applying", zap.Int("version", m.Version), zap.String("description", m.Description))

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrapf(err, "sqlite: begin tx for migration %d", m.Version)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return eris.Wrapf(err, "sqlite: execute migration %d", m.Version)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, nowUTC(),
		); err != nil {
			_ = tx.Rollback()
			return eris.Wrapf(err, "sqlite: record migration %d", m.Version)
		}

		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "sqlite: commit migration %d", m.Version)
		}
	}

	return nil
}

func (s *SQLiteStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *SQLiteStore) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// MigrationVersion returns the highest applied migration, or 0 on a fresh database.
func (s *SQLiteStore) MigrationVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: migration version")
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
