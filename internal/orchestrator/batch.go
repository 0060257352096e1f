package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/curator/internal/models"
)

// ProcessBatch runs Process for every path on a bounded worker pool.
// Results keep the order of paths. workers <= 0 uses the configured default.
func (o *Orchestrator) ProcessBatch(ctx context.Context, paths []string, opts Options, workers int) []models.OrchestrationResult {
	if workers <= 0 {
		workers = o.cfg.Workers
	}
	batchID := uuid.NewString()
	logger := o.deps.Logger.With(slog.String("batch_id", batchID))
	logger.Info("orchestrator: batch started", slog.Int("notes", len(paths)), slog.Int("workers", workers))
	start := time.Now()

	results := make([]models.OrchestrationResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			results[i] = o.Process(gctx, p, opts)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logger.Info("orchestrator: batch finished",
		slog.Int("notes", len(paths)),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	return results
}
