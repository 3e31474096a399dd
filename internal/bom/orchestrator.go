package bom

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/bom-cli/internal/metrics"
	"github.com/sells-group/bom-cli/internal/model"
)

// Mapper infers the column mapping of a table from its first rows.
type Mapper interface {
	MapColumns(ctx context.Context, sample []model.RawRow) (model.ColumnMapping, error)
}

// JobStore persists batch results by job ID. GetJob returns nil, nil for an
// unknown ID.
type JobStore interface {
	PutJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// Config bounds the orchestrator.
type Config struct {
	// MaxConcurrentLookups caps in-flight directory calls across a batch.
	MaxConcurrentLookups int
	// HeadRows is the number of rows sampled for column mapping.
	HeadRows int
}

// Orchestrator fans a table out to workers and stores the result as a job.
type Orchestrator struct {
	mapper  Mapper
	worker  *Worker
	jobs    JobStore
	limiter *semaphore.Weighted
	head    int
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator. One lookup limiter is shared by
// every batch it runs.
func NewOrchestrator(mapper Mapper, worker *Worker, jobs JobStore, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentLookups <= 0 {
		cfg.MaxConcurrentLookups = 10
	}
	if cfg.HeadRows <= 0 {
		cfg.HeadRows = 10
	}
	return &Orchestrator{
		mapper:  mapper,
		worker:  worker,
		jobs:    jobs,
		limiter: semaphore.NewWeighted(int64(cfg.MaxConcurrentLookups)),
		head:    cfg.HeadRows,
		now:     time.Now,
	}
}

// Run infers the column mapping from the first rows and then runs the batch.
// It fails only when the mapping cannot be inferred.
func (o *Orchestrator) Run(ctx context.Context, jobID string, rows []model.RawRow) (*model.Job, error) {
	if len(rows) == 0 {
		return nil, eris.New("bom: table has no rows")
	}
	sample := rows
	if len(sample) > o.head {
		sample = sample[:o.head]
	}
	mapping, err := o.mapper.MapColumns(ctx, sample)
	if err != nil {
		return nil, eris.Wrap(err, "bom: infer column mapping")
	}
	return o.RunBatch(ctx, jobID, rows, mapping)
}

// RunBatch enriches every row concurrently and stores the job under jobID
// (a new UUID when empty), replacing any previous job with that ID. The
// returned job always holds one result per row in input order; the error
// reports only a failure to persist it.
func (o *Orchestrator) RunBatch(ctx context.Context, jobID string, rows []model.RawRow, mapping model.ColumnMapping) (*model.Job, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	start := o.now()
	log := zap.L().With(zap.String("job_id", jobID))
	log.Info("bom: batch started", zap.Int("rows", len(rows)), zap.String("mapping", mapping.String()))

	results := make([]model.RowResult, len(rows))
	var g errgroup.Group
	for i, row := range rows {
		g.Go(func() error {
			results[i] = o.enrichSafely(ctx, row, mapping)
			return nil
		})
	}
	_ = g.Wait()

	job := &model.Job{
		ID:        jobID,
		Mapping:   mapping,
		Results:   results,
		CreatedAt: o.now().UTC(),
	}
	summary := job.Summary()
	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	log.Info("bom: batch complete",
		zap.Int("total", summary.Total),
		zap.Int("parsed", summary.Parsed),
		zap.Int("row_errors", summary.RowErrors),
		zap.Int("enriched", summary.Enriched),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := o.jobs.PutJob(ctx, job); err != nil {
		log.Error("bom: could not store job", zap.Error(err))
		return job, eris.Wrapf(err, "bom: store job %s", jobID)
	}
	return job, nil
}

// enrichSafely keeps a panicking row from taking down its siblings.
func (o *Orchestrator) enrichSafely(ctx context.Context, row model.RawRow, mapping model.ColumnMapping) (res model.RowResult) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("bom: row worker panicked", zap.Int("row", row.Position), zap.Any("panic", r))
			metrics.RowResults.WithLabelValues("error").Inc()
			res = rowFailure(row, fmt.Sprintf("panic: %v", r))
		}
	}()
	return o.worker.Enrich(ctx, row, mapping, o.limiter)
}
