// Package testutil provides shared test helpers for vaults, databases and incident sinks.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "curator-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes content to rel inside the vault, creating directories.
func WriteNote(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Incident is one record captured by IncidentRecorder.
type Incident struct {
	Kind   string
	Fields map[string]any
}

// IncidentRecorder is an in-memory incident.Sink.
type IncidentRecorder struct {
	mu      sync.Mutex
	records []Incident
}

// WriteIncident implements incident.Sink.
func (r *IncidentRecorder) WriteIncident(kind string, fields map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Incident{Kind: kind, Fields: fields})
	return fmt.Sprintf("memory://%d-%s", len(r.records), kind)
}

// Records returns a copy of everything written so far.
func (r *IncidentRecorder) Records() []Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Incident(nil), r.records...)
}

// Count returns the number of records of kind, or of all kinds if kind is "".
func (r *IncidentRecorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if kind == "" || rec.Kind == kind {
			n++
		}
	}
	return n
}
