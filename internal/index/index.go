package index

import "context"

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Backlinks(target string) ([]string, error)
	Corpus(ctx context.Context) ([]NoteRow, error)
	Body(ctx context.Context, path string) (string, error)
	Vector(ctx context.Context, path, model, checksum string) ([]float32, bool, error)
	PutVector(ctx context.Context, path, model, checksum string, vec []float32) error
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
