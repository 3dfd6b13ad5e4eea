package ingest

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/metrics"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

// UploadStore is what an import needs: record writes plus the upload audit.
type UploadStore interface {
	RecordStore
	StartUpload(ctx context.Context, filename string, rowsTotal int) (*models.Upload, error)
	CompleteUpload(ctx context.Context, up *models.Upload) error
	StoreUploadPayload(ctx context.Context, uploadID, filename string, payload []byte) (int64, error)
}

// ImportResult is a commit result tagged with the upload it was recorded under.
type ImportResult struct {
	CommitResult
	UploadID string `json:"uploadId"`
}

// Importer runs a commit inside an upload audit: start the upload, archive the
// raw file, commit, then record the outcome.
type Importer struct {
	store     UploadStore
	committer *Committer
}

func NewImporter(store UploadStore, scorer *wqi.Scorer, opts CommitOptions) *Importer {
	return &Importer{
		store:     store,
		committer: NewCommitter(store, scorer, opts),
	}
}

// Process commits rows under a new upload. payload is the original file and may
// be nil. A failure to archive the payload is logged and does not stop the
// commit.
func (im *Importer) Process(ctx context.Context, filename string, rows []Row, payload []byte) (*ImportResult, error) {
	start := time.Now()
	up, err := im.store.StartUpload(ctx, filename, len(rows))
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("upload_id", up.ID), zap.String("filename", up.Filename))
	log.Info("import: started", zap.Int("rows", len(rows)))

	if len(payload) > 0 {
		if _, err := im.store.StoreUploadPayload(ctx, up.ID, up.Filename, payload); err != nil {
			log.Warn("import: archive payload", zap.Error(err))
		}
	}

	res, commitErr := im.committer.Commit(ctx, up.ID, rows)
	up.RowsOK = res.Processed
	up.RowsFailed = res.Failed
	sample := res.Errors
	if commitErr != nil {
		up.Status = models.UploadFailed
		sample = append(sample, commitErr.Error())
	}
	if len(sample) > 0 {
		up.ErrorSample = sql.NullString{String: strings.Join(sample, "\n"), Valid: true}
	}

	// The audit row is closed even when the caller has gone away.
	if err := im.store.CompleteUpload(context.WithoutCancel(ctx), up); err != nil {
		log.Error("import: complete upload", zap.Error(err))
	}
	metrics.UploadDuration.Observe(time.Since(start).Seconds())

	log.Info("import: finished",
		zap.String("status", up.Status),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)),
	)
	return &ImportResult{CommitResult: *res, UploadID: up.ID}, commitErr
}
