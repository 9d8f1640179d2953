// Package pipeline drives the scan -> thumbnail -> upload flow: it enumerates
// source files, fans batches across a bounded worker pool and aggregates
// per-file outcomes into run statistics.
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"avatarsync/pkg/logger"
	"avatarsync/pkg/scanner"
	"avatarsync/pkg/storage"
)

const (
	DefaultBatchSize  = 100
	DefaultRetryCount = 3
)

type Options struct {
	ScanRoot     string
	KeyPrefix    string
	SkipExisting bool
	Workers      int
	BatchSize    int
	RetryCount   int
	RetryDelay   time.Duration
}

type Pipeline struct {
	logger   *logger.Logger
	opts     Options
	stats    *Stats
	uploader *Uploader
}

func New(backend storage.Backend, log *logger.Logger, opts Options) *Pipeline {
	if log == nil {
		log = logger.NewDefault()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryCount < 1 {
		opts.RetryCount = DefaultRetryCount
	}

	return &Pipeline{
		logger:   log,
		opts:     opts,
		stats:    NewStats(),
		uploader: NewUploader(backend, log, opts.KeyPrefix, opts.SkipExisting, opts.RetryCount, opts.RetryDelay),
	}
}

// Stats exposes the run counters; read it after Run returns.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// Run processes every supported image under the scan root. Per-file failures
// are counted, never propagated; the returned error is non-nil only for
// startup problems (missing scan root) or cancellation. The summary is logged
// even when the run is interrupted.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("starting upload run", map[string]any{
		"scan_root":     p.opts.ScanRoot,
		"key_prefix":    p.opts.KeyPrefix,
		"skip_existing": p.opts.SkipExisting,
		"workers":       p.opts.Workers,
		"batch_size":    p.opts.BatchSize,
	})

	files, err := scanner.Scan(p.opts.ScanRoot)
	if err != nil {
		return err
	}

	p.stats.SetTotal(len(files))
	p.logger.Info("found image files", map[string]any{
		"count": len(files),
	})

	defer p.logSummary()

	if len(files) == 0 {
		p.logger.Warn("no image files found to upload", nil)
		return nil
	}

	if p.opts.Workers == 1 {
		return p.runSequential(ctx, files)
	}
	return p.runBatches(ctx, files)
}

// runSequential is the deterministic single-threaded path; no pool is
// involved at all.
func (p *Pipeline) runSequential(ctx context.Context, files []scanner.SourceFile) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.recordOutcome(file, p.uploader.ProcessFile(ctx, file))
	}
	return nil
}

// runBatches dispatches consecutive slices of BatchSize files across a worker
// pool. Wait is the batch barrier: no file of batch i+1 starts before every
// file of batch i has completed.
func (p *Pipeline) runBatches(ctx context.Context, files []scanner.SourceFile) error {
	totalBatches := (len(files) + p.opts.BatchSize - 1) / p.opts.BatchSize

	for batchStart := 0; batchStart < len(files); batchStart += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchEnd := min(batchStart+p.opts.BatchSize, len(files))
		batch := files[batchStart:batchEnd]

		p.logger.Info("processing batch", map[string]any{
			"batch":         batchStart/p.opts.BatchSize + 1,
			"total_batches": totalBatches,
			"first":         batchStart + 1,
			"last":          batchEnd,
			"total":         len(files),
		})

		var group errgroup.Group
		group.SetLimit(p.opts.Workers)

		for _, file := range batch {
			if ctx.Err() != nil {
				break
			}
			file := file
			group.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				p.recordOutcome(file, p.uploader.ProcessFile(ctx, file))
				return nil
			})
		}

		_ = group.Wait()
	}

	return ctx.Err()
}

func (p *Pipeline) recordOutcome(file scanner.SourceFile, outcome Outcome) {
	switch {
	case outcome.Skipped:
		p.stats.RecordSkip()
	case outcome.Succeeded():
		p.stats.RecordSuccess()
	default:
		p.stats.RecordFailure()
		p.logger.Error("failed to fully upload file", nil, map[string]any{
			"file":      file.RelPath,
			"original":  outcome.Original,
			"thumbnail": outcome.Thumbnail,
		})
	}
}

func (p *Pipeline) logSummary() {
	snapshot := p.stats.Snapshot()
	p.logger.Info("upload summary", map[string]any{
		"total_files":        snapshot.TotalFiles,
		"successful_uploads": snapshot.SuccessfulUploads,
		"failed_uploads":     snapshot.FailedUploads,
		"skipped_files":      snapshot.SkippedFiles,
	})
}
