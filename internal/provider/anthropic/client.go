// Package anthropic is the remote inference adapter over the Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/curator/internal/provider"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-haiku-latest"
	DefaultTimeout = 60 * time.Second

	apiVersion = "2023-06-01"
)

// Sentinel errors.
var (
	ErrNotConfigured  = errors.New("anthropic: API key not configured")
	ErrAuthFailed     = errors.New("anthropic: authentication failed")
	ErrQuotaExceeded  = errors.New("anthropic: quota or rate limit exceeded")
	ErrOverloaded     = errors.New("anthropic: service overloaded")
	ErrEmptyResponse  = errors.New("anthropic: empty response")
	ErrRequestInvalid = errors.New("anthropic: request rejected")
)

// Config holds client settings. Zero fields other than APIKey take defaults.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the Anthropic Messages API. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// New creates a client. An API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}, nil
}

// Name identifies the provider in results and incidents.
func (c *Client) Name() string { return "anthropic/" + c.model }

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateTags asks the model for topical tags.
func (c *Client) GenerateTags(ctx context.Context, text string) ([]string, error) {
	reply, err := c.complete(ctx, provider.TagPrompt(text), 128)
	if err != nil {
		return nil, err
	}
	tags := provider.ParseTagList(reply)
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: no tags in reply", ErrEmptyResponse)
	}
	return tags, nil
}

// Summarize asks the model for a one or two sentence summary.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	reply, err := c.complete(ctx, provider.SummaryPrompt(text), 256)
	if err != nil {
		return "", err
	}
	summary := provider.CleanSummary(reply)
	if summary == "" {
		return "", ErrEmptyResponse
	}
	return summary, nil
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload, err := json.Marshal(messagesRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("anthropic: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}

	var out messagesResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(body))
		if decodeErr == nil && out.Error != nil {
			detail = out.Error.Message
		}
		return "", fmt.Errorf("%w (status %d): %s", statusError(resp.StatusCode), resp.StatusCode, detail)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", decodeErr)
	}

	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthFailed
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return ErrQuotaExceeded
	case code == 529 || code == http.StatusServiceUnavailable:
		return ErrOverloaded
	case code >= 400 && code < 500:
		return ErrRequestInvalid
	default:
		return errors.New("anthropic: server error")
	}
}
