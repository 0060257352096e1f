package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "test-model", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func textReply(w http.ResponseWriter, text string) {
	_, _ = w.Write([]byte(`{"content":[{"type":"text","text":` + jsonString(text) + `}],"stop_reason":"end_turn"}`))
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGenerateTags(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "about sqlite")
		textReply(w, "sqlite, databases")
	})

	tags, err := c.GenerateTags(context.Background(), "about sqlite")
	require.NoError(t, err)
	assert.Equal(t, []string{"sqlite", "databases"}, tags)
	assert.Equal(t, "anthropic/test-model", c.Name())
}

func TestSummarize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		textReply(w, "Summary: Notes on SQLite.")
	})
	s, err := c.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "Notes on SQLite.", s)
}

func TestStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusTooManyRequests, ErrQuotaExceeded},
		{529, ErrOverloaded},
		{http.StatusBadRequest, ErrRequestInvalid},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"x","message":"nope"}}`))
		})
		_, err := c.Summarize(context.Background(), "text")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Contains(t, err.Error(), "nope")
	}
}

func TestEmptyContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})
	_, err := c.GenerateTags(context.Background(), "text")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Summarize(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
