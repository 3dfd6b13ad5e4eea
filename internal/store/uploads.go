package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
)

// StartUpload records a bulk commit as in progress and returns it.
func (s *SQLiteStore) StartUpload(ctx context.Context, filename string, rowsTotal int) (*models.Upload, error) {
	up := newUpload(filename, rowsTotal)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (id, filename, status, rows_total, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, up.ID, up.Filename, up.Status, up.RowsTotal, up.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start upload")
	}
	return up, nil
}

// CompleteUpload stamps the finish time and writes the final counts.
func (s *SQLiteStore) CompleteUpload(ctx context.Context, up *models.Upload) error {
	if up == nil {
		return nil
	}
	finishUpload(up)

	_, err := s.db.ExecContext(ctx, `
		UPDATE uploads SET
			status = ?,
			rows_total = ?,
			rows_ok = ?,
			rows_failed = ?,
			error_sample = ?,
			finished_at = ?
		WHERE id = ?
	`, up.Status, up.RowsTotal, up.RowsOK, up.RowsFailed, up.ErrorSample, up.FinishedAt, up.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete upload %s", up.ID)
	}
	return nil
}

// ListUploads returns the most recent uploads first.
func (s *SQLiteStore) ListUploads(ctx context.Context, limit int) ([]models.Upload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, status, rows_total, rows_ok, rows_failed, error_sample, started_at, finished_at
		FROM uploads
		ORDER BY started_at DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list uploads")
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		var u models.Upload
		if err := rows.Scan(uploadDest(&u)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan upload")
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

func newUpload(filename string, rowsTotal int) *models.Upload {
	if filename == "" {
		filename = "upload"
	}
	return &models.Upload{
		ID:        uuid.NewString(),
		Filename:  filename,
		Status:    models.UploadProcessing,
		RowsTotal: rowsTotal,
		StartedAt: nowUTC(),
	}
}

// finishUpload settles the status when the caller left it in progress.
func finishUpload(up *models.Upload) {
	up.FinishedAt = sql.NullTime{Time: nowUTC(), Valid: true}
	if up.Status == models.UploadProcessing {
		up.Status = models.UploadCompleted
		if up.RowsTotal > 0 && up.RowsOK == 0 {
			up.Status = models.UploadFailed
		}
	}
	if up.ErrorSample.Valid {
		up.ErrorSample.String = truncateSample(up.ErrorSample.String)
	}
}

func uploadDest(u *models.Upload) []any {
	return []any{&u.ID, &u.Filename, &u.Status, &u.RowsTotal, &u.RowsOK, &u.RowsFailed, &u.ErrorSample, &u.StartedAt, &u.FinishedAt}
}
