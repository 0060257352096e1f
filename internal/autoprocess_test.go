package internal

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/orchestrator"
)

type fakePipeline struct {
	mu    sync.Mutex
	paths []string
	done  chan struct{}
}

func (f *fakePipeline) Process(_ context.Context, path string, opts orchestrator.Options) models.OrchestrationResult {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	f.done <- struct{}{}
	return models.OrchestrationResult{Path: path, Success: true, DryRun: opts.DryRun}
}

type fakeChecksums map[string]string

func (f fakeChecksums) GetChecksum(path string) (string, error) { return f[path], nil }

type fakeWrites map[string]string

func (f fakeWrites) OwnWrite(path, cs string) bool { return f[path] == cs && cs != "" }

func TestAutoProcessor_SkipsOwnWritesAndDeletes(t *testing.T) {
	p := &fakePipeline{done: make(chan struct{}, 4)}
	a := newAutoProcessor(p,
		fakeChecksums{"mine.md": "c1", "theirs.md": "c2"},
		fakeWrites{"mine.md": "c1"},
		orchestrator.Options{DryRun: true},
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	)

	a.enqueue("updated", "mine.md")
	a.enqueue("deleted", "gone.md")
	a.enqueue("created", "theirs.md")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.run(ctx) }()

	select {
	case <-p.done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pass")
	}
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.paths) != 1 || p.paths[0] != "theirs.md" {
		t.Errorf("processed = %v, want [theirs.md]", p.paths)
	}
}

func TestAutoProcessor_DropsWhenQueueFull(t *testing.T) {
	p := &fakePipeline{done: make(chan struct{}, 1)}
	a := newAutoProcessor(p, fakeChecksums{}, fakeWrites{}, orchestrator.Options{}, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	for i := 0; i < cap(a.queue)+10; i++ {
		a.enqueue("updated", "n.md")
	}
	if len(a.queue) != cap(a.queue) {
		t.Errorf("queue len = %d, want %d", len(a.queue), cap(a.queue))
	}
}
