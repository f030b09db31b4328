// Package answer turns retrieved passages into grounded answers with
// source attribution.
//
// The generator numbers each passage, instructs the model to cite by
// number, and asks for a trailing machine-readable SOURCES line. The
// attributor parses that line (falling back to inline citation markers)
// and maps the cited numbers back onto the passages, so the response
// only ever references chunks that were actually retrieved.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yektalaw/pasokhd/internal/llm"
	"github.com/yektalaw/pasokhd/internal/logging"
	"github.com/yektalaw/pasokhd/internal/vectorstore"
)

// ErrNoAnswer indicates generation produced no usable text.
var ErrNoAnswer = errors.New("no answer generated")

// Request carries everything the generator needs for one answer.
type Request struct {
	Query    string
	Language string
	Chunks   []vectorstore.Chunk

	// Summary is the long-term conversation summary, empty for new
	// conversations.
	Summary string

	// RecentTurns is the short-term window, oldest first.
	RecentTurns []llm.Message
}

// Result is a generated answer with its attributed sources.
type Result struct {
	Text    string
	Sources []vectorstore.Chunk
	Usage   llm.Usage

	// Provider names the tier that produced the answer.
	Provider string
}

// Generator produces grounded answers through a generation provider.
type Generator struct {
	provider llm.Provider
	logger   *logging.Logger
}

// NewGenerator creates a generator. provider must not be nil.
func NewGenerator(provider llm.Provider, logger *logging.Logger) (*Generator, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{provider: provider, logger: logger}, nil
}

const faSystemPrompt = `شما دستیار حقوقی هستید. فقط بر اساس منابع شماره‌گذاری‌شده پاسخ دهید.
هر ادعا را با شماره منبع آن به شکل [n] مستند کنید.
اگر منابع برای پاسخ کافی نیستند، صریح بگویید که اطلاعات کافی در دسترس نیست.
در پایان پاسخ، در یک خط جداگانه بنویسید:
SOURCES: <شماره منابع استفاده‌شده با کاما، مثلا 1,3>
اگر از هیچ منبعی استفاده نکردید بنویسید:
SOURCES: none`

const enSystemPrompt = `You are a legal assistant. Answer using only the numbered sources below.
Cite every claim with its source number in the form [n].
If the sources do not contain enough information, say so explicitly.
End your answer with a separate final line:
SOURCES: <comma-separated numbers of the sources you used, e.g. 1,3>
If you used no sources, write:
SOURCES: none`

// Generate produces an answer for the request. The returned Sources are
// the cited subset of req.Chunks in citation order, deduplicated.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	system := enSystemPrompt
	if req.Language == "fa" {
		system = faSystemPrompt
	}

	messages := make([]llm.Message, 0, len(req.RecentTurns)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, req.RecentTurns...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: buildUserPrompt(req)})

	res, err := g.provider.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, ErrNoAnswer
	}

	text, indices := Attribute(res.Text, len(req.Chunks))
	sources := make([]vectorstore.Chunk, 0, len(indices))
	for _, i := range indices {
		sources = append(sources, req.Chunks[i-1])
	}

	g.logger.Debug(ctx, "answer generated",
		zap.String("provider", res.Provider),
		zap.Int("cited_sources", len(sources)),
		zap.Int("total_tokens", res.Usage.Total()))

	return &Result{
		Text:     text,
		Sources:  sources,
		Usage:    res.Usage,
		Provider: res.Provider,
	}, nil
}

// buildUserPrompt assembles the numbered context block, conversation
// summary, and the question.
func buildUserPrompt(req Request) string {
	var sb strings.Builder

	if req.Summary != "" {
		sb.WriteString("Conversation summary:\n")
		sb.WriteString(req.Summary)
		sb.WriteString("\n\n")
	}

	if len(req.Chunks) > 0 {
		sb.WriteString("Sources:\n")
		for i, c := range req.Chunks {
			sb.WriteString(fmt.Sprintf("[%d] %s\n%s\n\n", i+1, chunkHeading(c), c.Text))
		}
	}

	sb.WriteString("Question: ")
	sb.WriteString(req.Query)
	return sb.String()
}

// chunkHeading formats the citation heading for a passage.
func chunkHeading(c vectorstore.Chunk) string {
	parts := make([]string, 0, 3)
	if c.Metadata.Title != "" {
		parts = append(parts, c.Metadata.Title)
	}
	if c.Metadata.Article != "" {
		parts = append(parts, "ماده "+c.Metadata.Article)
	}
	if c.Metadata.Note != "" {
		parts = append(parts, "تبصره "+c.Metadata.Note)
	}
	if len(parts) == 0 {
		return c.DocumentID
	}
	return strings.Join(parts, "، ")
}
