// Package classifier assigns incoming utterances to a category and
// decides whether retrieval is needed at all.
//
// Classification is one constrained generation call. The model is
// instructed to emit strict JSON; because generative output is never
// guaranteed well-formed, parsing is a fallible step with a documented
// fallback: anything unparseable classifies as a business question so
// that real questions are never silently dropped.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yektalaw/pasokhd/internal/llm"
	"github.com/yektalaw/pasokhd/internal/logging"
)

// Category is the closed set of utterance classes.
type Category string

const (
	CategoryBusinessQuestion Category = "business_question"
	CategoryGreeting         Category = "greeting"
	CategoryChitchat         Category = "chitchat"
	CategoryInvalid          Category = "invalid"
)

// NeedsRetrieval reports whether the category continues into the
// retrieval pipeline. Non-business categories short-circuit with a
// direct response.
func (c Category) NeedsRetrieval() bool {
	return c == CategoryBusinessQuestion
}

// valid reports whether c is one of the known categories.
func (c Category) valid() bool {
	switch c {
	case CategoryBusinessQuestion, CategoryGreeting, CategoryChitchat, CategoryInvalid:
		return true
	}
	return false
}

// Result is the classification outcome.
type Result struct {
	Category Category `json:"category"`
	// Confidence is the model's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// DirectResponse is a ready-to-use reply, set only for categories
	// that bypass retrieval.
	DirectResponse string `json:"direct_response,omitempty"`
	// Reason records why the category was chosen, for auditability.
	Reason string `json:"reason,omitempty"`
}

// Input carries the utterance plus its conversational context.
type Input struct {
	Query       string
	Language    string
	Summary     string
	RecentTurns []llm.Message
	FileDigests []string
}

// Classifier classifies utterances via a generation provider.
type Classifier struct {
	provider llm.Provider
	logger   *logging.Logger
}

// New creates a Classifier.
func New(provider llm.Provider, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Classifier{provider: provider, logger: logger}
}

const systemPrompt = `You are a query classifier for a legal question-answering assistant.
Classify the user's utterance into exactly one category:
- "business_question": a question about laws, regulations, contracts or legal procedure
- "greeting": a salutation with no question
- "chitchat": small talk unrelated to legal topics
- "invalid": gibberish, empty or abusive content

Respond with strict JSON only, no prose and no code fences:
{"category":"...","confidence":0.0,"direct_response":"...","reason":"..."}

Rules:
- confidence is your certainty in [0,1].
- direct_response is required for greeting, chitchat and invalid: a short polite
  reply in the user's language. Leave it empty for business_question.
- reason is a one-sentence justification.`

// Classify assigns the utterance to a category.
//
// Failure semantics: if the generation call fails or returns output that
// does not parse, the result defaults to business_question with zero
// confidence. Defaulting conservatively keeps real questions flowing
// into retrieval instead of being swallowed by a flaky classifier.
func (c *Classifier) Classify(ctx context.Context, in Input) Result {
	messages := c.buildMessages(in)

	res, err := c.provider.Generate(ctx, messages)
	if err != nil {
		c.logger.Warn(ctx, "classification call failed, defaulting to business_question", zap.Error(err))
		return fallbackResult("classification call failed")
	}

	parsed, err := parseResult(res.Text)
	if err != nil {
		c.logger.Warn(ctx, "classifier output unparseable, defaulting to business_question",
			zap.Error(err),
			zap.String("output", truncate(res.Text, 200)),
		)
		return fallbackResult("classifier output unparseable")
	}

	return parsed
}

// buildMessages assembles the constrained classification prompt.
func (c *Classifier) buildMessages(in Input) []llm.Message {
	var sb strings.Builder

	if in.Summary != "" {
		sb.WriteString("Conversation summary:\n")
		sb.WriteString(in.Summary)
		sb.WriteString("\n\n")
	}
	if len(in.RecentTurns) > 0 {
		sb.WriteString("Recent turns:\n")
		for _, turn := range in.RecentTurns {
			sb.WriteString(string(turn.Role))
			sb.WriteString(": ")
			sb.WriteString(turn.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	for i, digest := range in.FileDigests {
		fmt.Fprintf(&sb, "Attached document %d (extracted text):\n%s\n\n", i+1, digest)
	}
	fmt.Fprintf(&sb, "Language: %s\nUtterance: %s", in.Language, in.Query)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// parseResult decodes the model's JSON, tolerating code fences and
// surrounding prose.
func parseResult(text string) (Result, error) {
	payload := extractJSON(text)
	if payload == "" {
		return Result{}, fmt.Errorf("no JSON object in output")
	}

	var r Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return Result{}, fmt.Errorf("decoding classifier JSON: %w", err)
	}
	if !r.Category.valid() {
		return Result{}, fmt.Errorf("unknown category %q", r.Category)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return Result{}, fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	if !r.Category.NeedsRetrieval() && r.DirectResponse == "" {
		return Result{}, fmt.Errorf("category %s requires a direct response", r.Category)
	}
	return r, nil
}

// extractJSON returns the first top-level JSON object in text.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

func fallbackResult(reason string) Result {
	return Result{
		Category:   CategoryBusinessQuestion,
		Confidence: 0,
		Reason:     reason,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
