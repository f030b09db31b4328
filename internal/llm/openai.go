package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yektalaw/pasokhd/internal/config"
)

// ClientConfig holds settings for one OpenAI-compatible chat endpoint.
type ClientConfig struct {
	// Name tags results from this endpoint ("primary", "fallback").
	Name string

	// BaseURL is the API base, e.g. "https://api.openai.com/v1".
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// APIKey is the bearer credential.
	APIKey config.Secret

	// MaxTokens bounds the generated output length.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float32

	// Timeout bounds each call to this endpoint.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	config ClientConfig
	client *http.Client
}

// NewClient creates a generation client for one endpoint.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	return &Client{
		config: cfg,
		// Timeout is enforced per call via context so that the tiered
		// dispatcher can bound each tier independently.
		client: &http.Client{},
	}, nil
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
}

// chatResponse is the chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements Provider.
func (c *Client) Generate(ctx context.Context, messages []Message) (*GenerateResult, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: messages cannot be empty", ErrGenerationFailed)
	}

	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey.Value())
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %s", ErrGenerationFailed, c.config.Name, c.config.Timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ErrGenerationFailed)
	}

	return &GenerateResult{
		Text: parsed.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
		Provider: c.config.Name,
	}, nil
}

// Name implements Provider.
func (c *Client) Name() string {
	return c.config.Name
}

var _ Provider = (*Client)(nil)
