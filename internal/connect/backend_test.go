package connect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/testutil"
)

func seed(t *testing.T, db *index.DB, path, checksum, body string) {
	t.Helper()
	require.NoError(t, db.UpsertNote(index.NoteRow{Path: path, Checksum: checksum}, body, nil))
}

func TestLexicalBackend(t *testing.T) {
	db := testutil.TestDB(t)
	seed(t, db, "sqlite.md", "1", "SQLite indexes and SQLite write-ahead logging")
	seed(t, db, "garden.md", "2", "Tomatoes need sun and water")

	b := NewLexicalBackend(db)
	got, err := b.SimilarNotes(context.Background(), "Notes about SQLite logging", []string{"garden.md", "sqlite.md"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sqlite.md", got[0].ID)
	assert.Greater(t, got[0].Score, 0.3)
	assert.Equal(t, 0.0, got[1].Score)
}

func TestLexicalBackend_MissingBody(t *testing.T) {
	db := testutil.TestDB(t)
	_, err := NewLexicalBackend(db).SimilarNotes(context.Background(), "some words here", []string{"gone.md"}, 1)
	assert.ErrorIs(t, err, index.ErrNotIndexed)
}

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
}

func (e *fakeEmbedder) EmbedModel() string { return "fake" }

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vectors[text], nil
}

func TestEmbeddingBackend_CachesByChecksum(t *testing.T) {
	db := testutil.TestDB(t)
	seed(t, db, "near.md", "c1", "near body")
	seed(t, db, "far.md", "c2", "far body")

	emb := &fakeEmbedder{vectors: map[string][]float32{
		"query":     {1, 0},
		"near body": {0.9, 0.1},
		"far body":  {-1, 0},
	}}
	b := NewEmbeddingBackend(emb, db)
	ids := []string{"far.md", "near.md"}

	got, err := b.SimilarNotes(context.Background(), "query", ids, 2)
	require.NoError(t, err)
	assert.Equal(t, "near.md", got[0].ID)
	assert.Less(t, got[1].Score, 0.0)
	assert.Equal(t, int32(3), emb.calls.Load())

	// Second call embeds only the query.
	_, err = b.SimilarNotes(context.Background(), "query", ids, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(4), emb.calls.Load())

	// Changing content invalidates the cached vector.
	seed(t, db, "near.md", "c3", "near body")
	_, err = b.SimilarNotes(context.Background(), "query", ids, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(6), emb.calls.Load())
}

func TestEmbeddingBackend_Unavailable(t *testing.T) {
	db := testutil.TestDB(t)
	b := NewEmbeddingBackend(&fakeEmbedder{err: errors.New("connection refused")}, db)
	_, err := b.SimilarNotes(context.Background(), "query", []string{"a.md"}, 1)
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 2}))
}
