// Package llm provides generation-service clients for pasokhd.
//
// Every component that needs text generation (classification,
// summarization, answering) consumes the Provider interface. Concrete
// providers talk to OpenAI-compatible chat completion endpoints. The
// Tiered provider dispatches across an explicit ordered list of
// providers, attempting each within its own timeout.
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid provider configuration")

	// ErrGenerationFailed indicates a single provider call failed.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrAllProvidersFailed indicates every tier failed or timed out.
	ErrAllProvidersFailed = errors.New("all generation providers failed")
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a structured chat request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting reported by a generation call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns combined input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// GenerateResult is the outcome of a successful generation call.
type GenerateResult struct {
	Text  string
	Usage Usage
	// Provider names the provider that produced the text. The tiered
	// dispatcher sets this to the tier name ("primary", "fallback").
	Provider string
}

// Provider is the generation capability.
type Provider interface {
	// Generate produces text from the message list. Implementations
	// bound the call by their configured timeout in addition to ctx.
	Generate(ctx context.Context, messages []Message) (*GenerateResult, error)

	// Name identifies the provider for logs and response metadata.
	Name() string
}

// Tiered dispatches across an ordered provider list: the first provider
// that succeeds wins. A tier's timeout or error moves on to the next
// tier; all tiers failing is a hard error surfaced to the caller.
type Tiered struct {
	providers []Provider
}

// NewTiered creates a tiered provider from an ordered list.
func NewTiered(providers ...Provider) (*Tiered, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider required")
	}
	return &Tiered{providers: providers}, nil
}

// Generate implements Provider.
func (t *Tiered) Generate(ctx context.Context, messages []Message) (*GenerateResult, error) {
	var lastErr error
	for _, p := range t.providers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res, err := p.Generate(ctx, messages)
		if err == nil {
			res.Provider = p.Name()
			return res, nil
		}
		lastErr = err
	}
	return nil, errors.Join(ErrAllProvidersFailed, lastErr)
}

// Name implements Provider.
func (t *Tiered) Name() string {
	return "tiered"
}

// withTimeout derives a context bounded by d when d > 0.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

var _ Provider = (*Tiered)(nil)
