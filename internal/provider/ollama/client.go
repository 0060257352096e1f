// Package ollama is the local inference adapter: tag generation and
// summarization through /api/generate, embeddings through /api/embeddings.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/starford/curator/internal/provider"
)

// Default configuration values.
const (
	DefaultBaseURL    = "http://127.0.0.1:11434"
	DefaultModel      = "llama3.2"
	DefaultEmbedModel = "nomic-embed-text"
	DefaultTimeout    = 60 * time.Second
)

// ErrorType categorizes client errors.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeStatus
	ErrTypeInvalidResponse
)

// ClientError is returned by every Client method.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return "ollama: " + e.Message + ": " + e.Cause.Error()
	}
	return "ollama: " + e.Message
}

func (e *ClientError) Unwrap() error { return e.Cause }

// Is matches sentinel errors by type.
func (e *ClientError) Is(target error) bool {
	var t *ClientError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// Sentinel errors for errors.Is checks.
var (
	ErrNotRunning      = &ClientError{Type: ErrTypeConnection, Message: "server is not reachable"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound   = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrInvalidResponse = &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid response"}
)

// Config holds client settings. Zero fields take defaults.
type Config struct {
	BaseURL    string
	Model      string
	EmbedModel string
	Timeout    time.Duration
}

// Client talks to an Ollama server. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	embedModel string
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
	}
}

// Name identifies the provider in results and incidents.
func (c *Client) Name() string { return "ollama/" + c.model }

// EmbedModel returns the embedding model name.
func (c *Client) EmbedModel() string { return c.embedModel }

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Generate runs a single non-streaming completion.
func (c *Client) Generate(ctx context.Context, prompt string, numPredict int) (string, error) {
	var resp generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: &options{NumPredict: numPredict, Temperature: 0.2},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &ClientError{Type: ErrTypeStatus, Message: resp.Error}
	}
	return resp.Response, nil
}

// GenerateTags asks the model for topical tags.
func (c *Client) GenerateTags(ctx context.Context, text string) ([]string, error) {
	reply, err := c.Generate(ctx, provider.TagPrompt(text), 64)
	if err != nil {
		return nil, err
	}
	tags := provider.ParseTagList(reply)
	if len(tags) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "no tags in reply"}
	}
	return tags, nil
}

// Summarize asks the model for a one or two sentence summary.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	reply, err := c.Generate(ctx, provider.SummaryPrompt(text), 160)
	if err != nil {
		return "", err
	}
	summary := provider.CleanSummary(reply)
	if summary == "" {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "empty summary"}
	}
	return summary, nil
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	err := c.post(ctx, "/api/embeddings", embeddingRequest{
		Model:  c.embedModel,
		Prompt: provider.Truncate(text, provider.MaxInputChars),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "empty embedding"}
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "marshal request", Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &ClientError{Type: ErrTypeUnknown, Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound && strings.Contains(string(msg), "model") {
			return &ClientError{Type: ErrTypeModelNotFound, Message: fmt.Sprintf("model %q not found", c.model)}
		}
		return &ClientError{Type: ErrTypeStatus, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "decode response", Cause: err}
	}
	return nil
}

func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: ctx.Err()}
		}
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "server is not reachable", Cause: err}
}
