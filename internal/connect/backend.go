package connect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// BodySource returns the stored body of an indexed note.
type BodySource interface {
	Body(ctx context.Context, path string) (string, error)
}

// LexicalBackend scores notes by term-frequency cosine similarity.
// It needs no model and is the offline default.
type LexicalBackend struct {
	bodies BodySource
}

// NewLexicalBackend creates a backend reading bodies from src.
func NewLexicalBackend(src BodySource) *LexicalBackend {
	return &LexicalBackend{bodies: src}
}

// SimilarNotes implements Backend.
func (b *LexicalBackend) SimilarNotes(ctx context.Context, text string, ids []string, topK int) ([]Match, error) {
	query := termFreq(text)
	if len(query) == 0 {
		return []Match{}, nil
	}
	out := make([]Match, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := b.bodies.Body(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lexical: load %s: %w", id, err)
		}
		out = append(out, Match{ID: id, Score: cosineTF(query, termFreq(body))})
	}
	return topMatches(out, topK), nil
}

// VectorStore caches embeddings keyed by note content checksum.
type VectorStore interface {
	BodySource
	GetChecksum(path string) (string, error)
	Vector(ctx context.Context, path, model, checksum string) ([]float32, bool, error)
	PutVector(ctx context.Context, path, model, checksum string, vec []float32) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedModel() string
}

// EmbeddingBackend scores notes by cosine similarity of model embeddings.
// Corpus vectors are computed once per content version and cached.
type EmbeddingBackend struct {
	embedder Embedder
	store    VectorStore
}

// NewEmbeddingBackend creates a backend.
func NewEmbeddingBackend(embedder Embedder, store VectorStore) *EmbeddingBackend {
	return &EmbeddingBackend{embedder: embedder, store: store}
}

// SimilarNotes implements Backend.
func (b *EmbeddingBackend) SimilarNotes(ctx context.Context, text string, ids []string, topK int) ([]Match, error) {
	query, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: query: %w", err)
	}
	out := make([]Match, 0, len(ids))
	for _, id := range ids {
		vec, err := b.vectorFor(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, Match{ID: id, Score: cosine(query, vec)})
	}
	return topMatches(out, topK), nil
}

func (b *EmbeddingBackend) vectorFor(ctx context.Context, id string) ([]float32, error) {
	model := b.embedder.EmbedModel()
	cs, err := b.store.GetChecksum(id)
	if err != nil {
		return nil, fmt.Errorf("embedding: checksum %s: %w", id, err)
	}
	if cs != "" {
		if vec, ok, err := b.store.Vector(ctx, id, model, cs); err == nil && ok {
			return vec, nil
		}
	}
	body, err := b.store.Body(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("embedding: load %s: %w", id, err)
	}
	vec, err := b.embedder.Embed(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("embedding: %s: %w", id, err)
	}
	if cs != "" {
		// Cache misses are recomputed next time; a failed write is not fatal.
		_ = b.store.PutVector(ctx, id, model, cs, vec)
	}
	return vec, nil
}

func topMatches(ms []Match, topK int) []Match {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Score > ms[j].Score })
	if topK > 0 && len(ms) > topK {
		ms = ms[:topK]
	}
	return ms
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {}, "are": {},
	"was": {}, "but": {}, "not": {}, "you": {}, "can": {}, "from": {}, "have": {},
	"has": {}, "its": {}, "into": {}, "about": {}, "there": {}, "their": {},
}

// termFreq counts lowercase word tokens of at least three characters,
// skipping stopwords and wikilink brackets.
func termFreq(text string) map[string]float64 {
	tf := make(map[string]float64)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		tf[w]++
	}
	return tf
}

func cosineTF(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, v := range a {
		na += v * v
		if w, ok := b[k]; ok {
			dot += v * w
		}
	}
	for _, w := range b {
		nb += w * w
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
