// Package pipeline orchestrates query answering end to end.
//
// A request flows through classification, cache lookup, rewriting,
// embedding, retrieval, reranking, generation and attribution in strict
// order. Quality layers (rewriting, reranking) degrade gracefully;
// correctness layers (embedding, retrieval slot resolution, generation)
// fail the request. Conversation memory is updated asynchronously after
// the response is built and never blocks it.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yektalaw/pasokhd/internal/llm"
	"github.com/yektalaw/pasokhd/internal/vectorstore"
)

var (
	// ErrValidation indicates the request failed validation.
	ErrValidation = errors.New("invalid request")

	// ErrEmbeddingFailed indicates the query could not be embedded.
	ErrEmbeddingFailed = errors.New("query embedding failed")

	// ErrRetrievalFailed indicates the vector search failed.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrGenerationFailed indicates every generation tier failed.
	ErrGenerationFailed = errors.New("answer generation failed")
)

// Query is one incoming question.
type Query struct {
	Text           string            `json:"text"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Language       string            `json:"language,omitempty"`
	MaxChunks      int               `json:"max_chunks,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`

	// UseCache and UseReranking turn the response cache and the
	// reranking stage off when set to false. Unset means enabled.
	UseCache     *bool `json:"use_cache,omitempty"`
	UseReranking *bool `json:"use_reranking,omitempty"`

	// FileDigests is extracted text of documents attached to the
	// request, passed to classification as context.
	FileDigests []string `json:"file_digests,omitempty"`
}

func (q Query) cacheEnabled() bool {
	return q.UseCache == nil || *q.UseCache
}

func (q Query) rerankEnabled() bool {
	return q.UseReranking == nil || *q.UseReranking
}

// Source is the response-facing view of a cited passage.
type Source struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Article    string  `json:"article,omitempty"`
	Note       string  `json:"note,omitempty"`
	Score      float32 `json:"score"`
}

// Response is the answered query.
type Response struct {
	Answer   string    `json:"answer"`
	Sources  []Source  `json:"sources"`
	Category string    `json:"category"`
	Cached   bool      `json:"cached"`
	Degraded bool      `json:"degraded"`
	Provider string    `json:"provider,omitempty"`
	Usage    llm.Usage `json:"usage"`

	// RewrittenQuery is the normalized query used for retrieval, empty
	// when retrieval was skipped.
	RewrittenQuery string `json:"rewritten_query,omitempty"`
}

// normalize applies defaults and caps in place.
func (q *Query) normalize(defaultLanguage string, defaultMaxChunks, maxChunksCap int) {
	if q.Language == "" {
		q.Language = defaultLanguage
	}
	if q.MaxChunks <= 0 {
		q.MaxChunks = defaultMaxChunks
	}
	if q.MaxChunks > maxChunksCap {
		q.MaxChunks = maxChunksCap
	}
}

// validate rejects structurally unusable requests.
func (q *Query) validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: query text is required", ErrValidation)
	}
	if q.MaxChunks < 0 {
		return fmt.Errorf("%w: max_chunks must be non-negative", ErrValidation)
	}
	return nil
}

// sourcesFromChunks converts retrieved chunks to their response view.
func sourcesFromChunks(chunks []vectorstore.Chunk) []Source {
	out := make([]Source, len(chunks))
	for i, c := range chunks {
		out[i] = Source{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Title:      c.Metadata.Title,
			Article:    c.Metadata.Article,
			Note:       c.Metadata.Note,
			Score:      c.Score,
		}
	}
	return out
}
