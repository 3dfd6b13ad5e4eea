package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/metrics"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/models"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

const (
	DefaultBatchSize = 100
	maxErrorLog      = 10
	maxErrorMessage  = 200
)

// RecordStore is the slice of the store the commit pipeline writes through.
type RecordStore interface {
	GetOrCreateArea(ctx context.Context, name string, lat, lon *float64) (*models.Area, error)
	InsertRecord(ctx context.Context, rec *models.Record) error
}

// CommitOptions tunes a Committer. Zero values pick the defaults.
type CommitOptions struct {
	BatchSize int
	Workers   int
	Source    string
}

// CommitResult summarises a bulk commit. Errors holds at most ten entries.
type CommitResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
	TotalRows int      `json:"totalRows"`
}

// Committer scores and persists bulk rows. Each row succeeds or fails on its
// own; there is no cross-row transaction.
type Committer struct {
	store  RecordStore
	scorer *wqi.Scorer
	opts   CommitOptions
}

func NewCommitter(store RecordStore, scorer *wqi.Scorer, opts CommitOptions) *Committer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Source == "" {
		opts.Source = models.SourceBulkUpload
	}
	return &Committer{store: store, scorer: scorer, opts: opts}
}

// Commit processes rows batch by batch. uploadID, when set, is stamped on each
// record. On cancellation the rows already written stay written and the partial
// result is returned with the context error.
func (c *Committer) Commit(ctx context.Context, uploadID string, rows []Row) (*CommitResult, error) {
	res := &CommitResult{Errors: []string{}, TotalRows: len(rows)}

	for start := 0; start < len(rows); start += c.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+c.opts.BatchSize, len(rows))

		outcomes := c.commitBatch(ctx, uploadID, rows[start:end])
		for i, err := range outcomes {
			if err == nil {
				res.Processed++
				continue
			}
			res.Failed++
			if len(res.Errors) < maxErrorLog {
				res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %s", start+i+1, truncate(err.Error(), maxErrorMessage)))
			}
		}

		zap.L().Debug("commit: batch done",
			zap.Int("from", start+1),
			zap.Int("to", end),
			zap.Int("processed", res.Processed),
			zap.Int("failed", res.Failed),
		)
	}

	metrics.RowsCommitted.Add(float64(res.Processed))
	metrics.RowsFailed.Add(float64(res.Failed))
	return res, nil
}

// commitBatch returns one outcome per row, in row order, regardless of how
// many workers ran.
func (c *Committer) commitBatch(ctx context.Context, uploadID string, batch []Row) []error {
	outcomes := make([]error, len(batch))
	if c.opts.Workers == 1 {
		for i, row := range batch {
			outcomes[i] = c.commitRow(ctx, uploadID, row)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, row := range batch {
		i, row := i, row
		g.Go(func() error {
			outcomes[i] = c.commitRow(ctx, uploadID, row)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (c *Committer) commitRow(ctx context.Context, uploadID string, row Row) error {
	p := ParseRow(c.scorer.Schema(), row)
	if p.Area == "" {
		return eris.New("area name is required")
	}
	if !p.HasDate {
		return eris.Errorf("invalid date %q", row[ColumnDate])
	}

	area, err := c.store.GetOrCreateArea(ctx, p.Area, p.Latitude, p.Longitude)
	if err != nil {
		return err
	}

	rec := &models.Record{
		AreaID:       area.ID,
		SampledAt:    p.Date,
		Measurements: models.MeasurementsFromSet(p.Measurements),
		Source:       c.opts.Source,
	}
	if uploadID != "" {
		rec.UploadID = sql.NullString{String: uploadID, Valid: true}
	}

	result, err := c.scorer.Score(p.Measurements)
	switch {
	case err == nil:
		rec.ApplyResult(result)
		metrics.PredictionsTotal.WithLabelValues(string(result.Label)).Inc()
	case !errors.Is(err, wqi.ErrNoParameters):
		return err
	}

	return c.store.InsertRecord(ctx, rec)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
