package internal

import (
	"context"
	"log/slog"

	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/orchestrator"
)

// ownWriteChecker tells the pipeline's own writes apart from user edits.
type ownWriteChecker interface {
	OwnWrite(path, checksum string) bool
}

type checksumSource interface {
	GetChecksum(path string) (string, error)
}

type notePipeline interface {
	Process(ctx context.Context, path string, opts orchestrator.Options) models.OrchestrationResult
}

// autoProcessor runs watcher-detected changes through the pipeline, one at a time.
type autoProcessor struct {
	pipeline notePipeline
	index    checksumSource
	writes   ownWriteChecker
	opts     orchestrator.Options
	logger   *slog.Logger
	queue    chan string
}

func newAutoProcessor(p notePipeline, idx checksumSource, writes ownWriteChecker, opts orchestrator.Options, logger *slog.Logger) *autoProcessor {
	return &autoProcessor{
		pipeline: p,
		index:    idx,
		writes:   writes,
		opts:     opts,
		logger:   logger,
		queue:    make(chan string, 128),
	}
}

// enqueue is called from the watcher loop and never blocks.
func (a *autoProcessor) enqueue(kind, path string) {
	if kind == "deleted" {
		return
	}
	cs, err := a.index.GetChecksum(path)
	if err != nil {
		a.logger.Warn("autoprocess: checksum lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if a.writes.OwnWrite(path, cs) {
		a.logger.Debug("autoprocess: skipping own write", slog.String("path", path))
		return
	}
	select {
	case a.queue <- path:
	default:
		a.logger.Warn("autoprocess: queue full, change dropped", slog.String("path", path))
	}
}

// run drains the queue until ctx is cancelled.
func (a *autoProcessor) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-a.queue:
			res := a.pipeline.Process(ctx, path, a.opts)
			a.logger.Info("autoprocess: note processed",
				slog.String("path", path),
				slog.Bool("success", res.Success),
				slog.Bool("dry_run", res.DryRun))
		}
	}
}
