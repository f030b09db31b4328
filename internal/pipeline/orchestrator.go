package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yektalaw/pasokhd/internal/answer"
	"github.com/yektalaw/pasokhd/internal/cache"
	"github.com/yektalaw/pasokhd/internal/classifier"
	"github.com/yektalaw/pasokhd/internal/embeddings"
	"github.com/yektalaw/pasokhd/internal/llm"
	"github.com/yektalaw/pasokhd/internal/logging"
	"github.com/yektalaw/pasokhd/internal/memory"
	"github.com/yektalaw/pasokhd/internal/reranker"
	"github.com/yektalaw/pasokhd/internal/rewriter"
	"github.com/yektalaw/pasokhd/internal/vectorstore"
)

var tracer = otel.Tracer("pasokhd.pipeline")

// Refresher schedules background summary refreshes.
type Refresher interface {
	Enqueue(conversationID string)
}

// Config tunes pipeline behavior.
type Config struct {
	DefaultLanguage  string
	DefaultMaxChunks int
	MaxChunksCap     int

	// ShortTermWindow is how many recent turns accompany classification
	// and generation.
	ShortTermWindow int

	// ClassifyTimeout bounds the classification call separately from the
	// overall request.
	ClassifyTimeout time.Duration

	// RequestTimeout bounds the whole Ask call.
	RequestTimeout time.Duration

	// RetrievalOversample multiplies MaxChunks for the retrieval limit so
	// the reranker has candidates to discard. Minimum 1.
	RetrievalOversample int
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "fa"
	}
	if c.DefaultMaxChunks <= 0 {
		c.DefaultMaxChunks = 5
	}
	if c.MaxChunksCap <= 0 {
		c.MaxChunksCap = 20
	}
	if c.ShortTermWindow <= 0 {
		c.ShortTermWindow = 10
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.RetrievalOversample < 1 {
		c.RetrievalOversample = 3
	}
}

// Deps are the pipeline's stage implementations.
type Deps struct {
	Classifier *classifier.Classifier
	Rewriter   *rewriter.Rewriter
	Embedder   embeddings.Embedder
	Searcher   vectorstore.Searcher
	Reranker   *reranker.Service
	Generator  *answer.Generator
	Cache      cache.Cache
	Memory     memory.Store
	Refresher  Refresher
	Logger     *logging.Logger
}

// Pipeline answers queries by running the full stage sequence.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *logging.Logger
}

// New creates a pipeline. Classifier, Rewriter, Embedder, Searcher,
// Reranker and Generator are required; Cache, Memory and Refresher may
// be nil to disable caching and conversation memory.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.Rewriter == nil:
		return nil, errors.New("rewriter is required")
	case deps.Embedder == nil:
		return nil, errors.New("embedder is required")
	case deps.Searcher == nil:
		return nil, errors.New("searcher is required")
	case deps.Reranker == nil:
		return nil, errors.New("reranker is required")
	case deps.Generator == nil:
		return nil, errors.New("generator is required")
	}

	cfg.ApplyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Pipeline{deps: deps, cfg: cfg, logger: logger}, nil
}

// Ask answers one query.
func (p *Pipeline) Ask(ctx context.Context, query Query) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pipeline.ask", trace.WithAttributes(
		attribute.String("conversation_id", query.ConversationID),
		attribute.String("language", query.Language),
	))
	defer span.End()

	query.normalize(p.cfg.DefaultLanguage, p.cfg.DefaultMaxChunks, p.cfg.MaxChunksCap)
	if err := query.validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	summary, recentTurns := p.loadMemory(ctx, query.ConversationID)

	classified := p.classify(ctx, query, summary, recentTurns)
	span.SetAttributes(attribute.String("category", string(classified.Category)))

	if !classified.Category.NeedsRetrieval() {
		resp := &Response{
			Answer:   classified.DirectResponse,
			Sources:  []Source{},
			Category: string(classified.Category),
		}
		p.recordTurns(ctx, query, resp)
		return resp, nil
	}

	var key string
	if query.cacheEnabled() {
		key = cache.Fingerprint(query.Text, query.Language, query.MaxChunks, query.Filters)
		if cached := p.cacheLookup(ctx, key); cached != nil {
			cached.Cached = true
			cached.Category = string(classified.Category)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			p.recordTurns(ctx, query, cached)
			return cached, nil
		}
	}

	rewritten := p.deps.Rewriter.Rewrite(query.Text, query.Language)

	emb, err := p.deps.Embedder.EmbedQuery(ctx, rewritten)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Join(ErrEmbeddingFailed, err)
	}

	retrievalLimit := query.MaxChunks * p.cfg.RetrievalOversample
	chunks, err := p.deps.Searcher.HybridSearch(ctx, emb, rewritten, retrievalLimit, query.Filters)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, errors.Join(ErrRetrievalFailed, err)
	}
	span.SetAttributes(attribute.Int("retrieved", len(chunks)))

	var reranked reranker.Result
	if query.rerankEnabled() {
		reranked = p.deps.Reranker.Rerank(ctx, rewritten, chunks, query.MaxChunks)
	} else {
		// Caller opted out: candidates pass through in similarity order,
		// truncated to the requested window.
		if len(chunks) > query.MaxChunks {
			chunks = chunks[:query.MaxChunks]
		}
		reranked = reranker.Result{Chunks: chunks}
	}

	generated, err := p.deps.Generator.Generate(ctx, answer.Request{
		Query:       query.Text,
		Language:    query.Language,
		Chunks:      reranked.Chunks,
		Summary:     summary,
		RecentTurns: recentTurns,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Join(ErrGenerationFailed, err)
	}

	resp := &Response{
		Answer:         generated.Text,
		Sources:        sourcesFromChunks(generated.Sources),
		Category:       string(classified.Category),
		Degraded:       reranked.Degraded,
		Provider:       generated.Provider,
		Usage:          generated.Usage,
		RewrittenQuery: rewritten,
	}

	if query.cacheEnabled() {
		p.cacheStore(ctx, key, resp)
	}
	p.recordTurns(ctx, query, resp)

	return resp, nil
}

// classify runs classification under its own timeout.
func (p *Pipeline) classify(ctx context.Context, query Query, summary string, recentTurns []llm.Message) classifier.Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	defer cancel()

	return p.deps.Classifier.Classify(ctx, classifier.Input{
		Query:       query.Text,
		Language:    query.Language,
		Summary:     summary,
		RecentTurns: recentTurns,
		FileDigests: query.FileDigests,
	})
}

// loadMemory reads conversational context. Memory failures degrade to
// an empty context, never fail the request.
func (p *Pipeline) loadMemory(ctx context.Context, conversationID string) (string, []llm.Message) {
	if p.deps.Memory == nil || conversationID == "" {
		return "", nil
	}

	summary, err := p.deps.Memory.Summary(ctx, conversationID)
	if err != nil {
		p.logger.Warn(ctx, "summary load failed, continuing without it", zap.Error(err))
		summary = memory.Summary{}
	}

	turns, err := p.deps.Memory.RecentTurns(ctx, conversationID, p.cfg.ShortTermWindow)
	if err != nil {
		p.logger.Warn(ctx, "recent turns load failed, continuing without them", zap.Error(err))
		turns = nil
	}

	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}
	return summary.Text, messages
}

// cacheLookup treats every failure as a miss.
func (p *Pipeline) cacheLookup(ctx context.Context, key string) *Response {
	if p.deps.Cache == nil {
		return nil
	}

	payload, err := p.deps.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			p.logger.Warn(ctx, "cache lookup failed, treating as miss", zap.Error(err))
		}
		return nil
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		p.logger.Warn(ctx, "cached payload undecodable, treating as miss", zap.Error(err))
		return nil
	}
	return &resp
}

// cacheStore writes best-effort; a failed write is logged and dropped.
func (p *Pipeline) cacheStore(ctx context.Context, key string, resp *Response) {
	if p.deps.Cache == nil {
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		p.logger.Warn(ctx, "response marshal for cache failed", zap.Error(err))
		return
	}
	if err := p.deps.Cache.Set(ctx, key, payload); err != nil {
		p.logger.Warn(ctx, "cache write failed", zap.Error(err))
	}
}

// recordTurns appends the exchange to conversation memory and schedules
// a background summary refresh. Failures are logged, never surfaced.
func (p *Pipeline) recordTurns(ctx context.Context, query Query, resp *Response) {
	if p.deps.Memory == nil || query.ConversationID == "" {
		return
	}

	now := time.Now()
	turns := []memory.Turn{
		{Role: memory.RoleUser, Content: query.Text, TokenCount: estimateTokens(query.Text), Timestamp: now},
		{Role: memory.RoleAssistant, Content: resp.Answer, TokenCount: estimateTokens(resp.Answer), Timestamp: now},
	}
	for _, t := range turns {
		if err := p.deps.Memory.AppendTurn(ctx, query.ConversationID, t); err != nil {
			p.logger.Warn(ctx, "turn append failed", zap.Error(err))
			return
		}
	}

	if p.deps.Refresher != nil {
		p.deps.Refresher.Enqueue(query.ConversationID)
	}
}

// estimateTokens approximates token counts for memory accounting.
func estimateTokens(s string) int {
	return utf8.RuneCountInString(s)/4 + 1
}
