package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Model: "test-model", Timeout: 2 * time.Second})
}

func TestGenerateTags(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "note body")
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "Go, Concurrency, testing", Done: true})
	})

	tags, err := c.GenerateTags(context.Background(), "note body")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Concurrency", "testing"}, tags)
	assert.Equal(t, "ollama/test-model", c.Name())
}

func TestSummarize(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "  A short summary.\n", Done: true})
	})
	s, err := c.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", s)
}

func TestSummarize_EmptyReply(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "   ", Done: true})
	})
	_, err := c.Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestModelNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'test-model' not found"}`, http.StatusNotFound)
	})
	_, err := c.GenerateTags(context.Background(), "text")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.Summarize(context.Background(), "text")
	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrTypeStatus, ce.Type)
	assert.Contains(t, err.Error(), "500")
}

func TestNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.GenerateTags(context.Background(), "text")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestTimeout(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GenerateTags(ctx, "text")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCancelledReturnsContextError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Summarize(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbed(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultEmbedModel, req.Model)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float64{0.25, -0.5}})
	})
	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5}, vec)
}

func TestEmbed_Empty(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	})
	_, err := c.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
