// Package describe adapts the Anthropic Messages API to resolve.Describer.
package describe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/dgallion1/docmark/internal/resolve"
)

const (
	DefaultModel    = "claude-sonnet-4-5"
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	maxTokens       = 300
)

// ErrRejected marks model output that failed sanitisation.
var ErrRejected = errors.New("description rejected")

// Options tunes a ClaudeClient. Zero values fall back to defaults.
type Options struct {
	Model    string
	Endpoint string
	Timeout  time.Duration
	// RPS caps outgoing requests per second; <= 0 disables the limiter.
	RPS     float64
	Retries int
	Logger  *slog.Logger
}

// ClaudeClient describes images with Claude vision.
type ClaudeClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	backoff    func(attempt int) time.Duration
	log        *slog.Logger

	Stats *LLMStats
}

func NewClaudeClient(apiKey string, opts Options) *ClaudeClient {
	c := &ClaudeClient{
		apiKey:   apiKey,
		model:    opts.Model,
		endpoint: opts.Endpoint,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		retries: opts.Retries,
		backoff: Backoff,
		log:     opts.Logger,
		Stats:   NewLLMStats(time.Hour),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = 120 * time.Second
	}
	if c.retries <= 0 {
		c.retries = MaxRetries
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1 << 30)}))
	}
	return c
}

// Model returns the configured model name.
func (c *ClaudeClient) Model() string {
	return c.model
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Describe sends one image and the prompt, retrying transient failures.
func (c *ClaudeClient) Describe(ctx context.Context, data []byte, mime, prompt string) (string, error) {
	if !Supports(mime) {
		return "", errors.Newf("media type %q not accepted by the vision API", mime)
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []contentBlock{
				{Type: "image", Source: &imageSource{
					Type:      "base64",
					MediaType: mime,
					Data:      base64.StdEncoding.EncodeToString(data),
				}},
				{Type: "text", Text: prompt},
			},
		}},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal request")
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		var text string
		text, lastErr = c.call(ctx, body)
		if lastErr == nil {
			desc, ok := Sanitize(text)
			if !ok {
				return "", errors.Mark(errors.Newf("unusable description %q", truncate(text, 80)), ErrRejected)
			}
			return desc, nil
		}
		if !IsRetryable(lastErr) || attempt == c.retries-1 {
			break
		}
		c.log.Warn("retryable describe error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// DescribeAsync satisfies resolve.AsyncDescriber with one goroutine per call.
func (c *ClaudeClient) DescribeAsync(ctx context.Context, data []byte, mime, prompt string) <-chan resolve.Outcome {
	ch := make(chan resolve.Outcome, 1)
	go func() {
		text, err := c.Describe(ctx, data, mime, prompt)
		ch <- resolve.Outcome{Text: text, Err: err}
	}()
	return ch
}

func (c *ClaudeClient) call(ctx context.Context, body []byte) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(err, "rate limit wait")
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.Stats.RecordFailure()
		return "", errors.Wrap(err, "claude api")
	}
	defer resp.Body.Close()
	c.Stats.Record(time.Since(start).Milliseconds())

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("claude api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if apiResp.Error != nil {
		return "", errors.Newf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("empty response from claude")
}

// Close releases resources.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}

var supportedMedia = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Supports reports whether the vision API accepts mime.
func Supports(mime string) bool {
	return supportedMedia[mime]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
