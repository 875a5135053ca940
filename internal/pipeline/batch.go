package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of items processed at once when no
// limit is configured.
const DefaultConcurrency = 10

// BatchProcessor processes independent items concurrently.
// It uses errgroup to manage goroutines and respect the concurrency limit.
type BatchProcessor struct {
	// concurrency is the maximum number of items in flight.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent items.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// Concurrency returns the configured limit.
func (bp *BatchProcessor) Concurrency() int {
	return bp.concurrency
}

// Process calls fn for every item, at most bp.Concurrency() at a time, and
// returns the results in input order. fn reports failures through its
// result; an item is skipped only when ctx is cancelled before it starts,
// in which case Process returns the context error along with the results
// gathered so far.
func Process[T, R any](ctx context.Context, bp *BatchProcessor, items []T, fn func(ctx context.Context, i int, item T) R) ([]R, error) {
	bp.logger.Debug("starting batch processing",
		"total", len(items),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	// Each goroutine writes only its own index.
	results := make([]R, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, item := range items {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results[i] = fn(ctx, i, item)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Debug("batch processing complete",
		"total", len(items),
		"elapsed", time.Since(startTime),
	)

	return results, err
}
