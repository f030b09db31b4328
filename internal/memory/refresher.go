package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yektalaw/pasokhd/internal/llm"
	"github.com/yektalaw/pasokhd/internal/logging"
)

// RefresherConfig controls when and how summaries regenerate.
type RefresherConfig struct {
	// RegenThreshold is how many turns may accumulate past the last
	// summarized count before a refresh regenerates the summary.
	RegenThreshold int

	// SummaryCap is the maximum summary length in characters. A stored
	// summary that exceeds it also triggers regeneration.
	SummaryCap int

	// QueueSize bounds the pending refresh queue. Enqueue drops work
	// when the queue is full rather than blocking the response path.
	QueueSize int

	// Timeout bounds a single summarization call.
	Timeout time.Duration
}

// ApplyDefaults fills zero fields with production defaults.
func (c *RefresherConfig) ApplyDefaults() {
	if c.RegenThreshold <= 0 {
		c.RegenThreshold = 20
	}
	if c.SummaryCap <= 0 {
		c.SummaryCap = 2000
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

const summarySystemPrompt = `You maintain a running summary of a legal consultation conversation.
Given the prior summary (possibly empty) and the full conversation, write an
updated summary in the conversation's language. Preserve: the user's legal
situation, laws and articles discussed, advice already given, and any open
follow-ups. Be concise. Output only the summary text.`

// Refresher regenerates long-term summaries in the background.
//
// Refreshes for the same conversation are serialized; refreshes for
// different conversations run on the shared worker. A refresh failure
// is logged and retried on the next trigger, never surfaced to callers.
type Refresher struct {
	store    Store
	provider llm.Provider
	logger   *logging.Logger
	cfg      RefresherConfig

	queue chan string
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool

	stopOnce sync.Once
}

// NewRefresher creates a refresher and starts its worker.
func NewRefresher(store Store, provider llm.Provider, logger *logging.Logger, cfg RefresherConfig) *Refresher {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}

	r := &Refresher{
		store:    store,
		provider: provider,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan string, cfg.QueueSize),
		inflight: make(map[string]bool),
	}

	r.wg.Add(1)
	go r.run()
	return r
}

// Enqueue schedules a refresh check for the conversation. It never
// blocks; when the queue is full or the conversation is already queued,
// the request is dropped and the next turn will re-trigger it.
func (r *Refresher) Enqueue(conversationID string) {
	if conversationID == "" {
		return
	}

	r.mu.Lock()
	if r.inflight[conversationID] {
		r.mu.Unlock()
		return
	}
	r.inflight[conversationID] = true
	r.mu.Unlock()

	select {
	case r.queue <- conversationID:
	default:
		r.mu.Lock()
		delete(r.inflight, conversationID)
		r.mu.Unlock()
		r.logger.Warn(context.Background(), "memory refresh queue full, dropping",
			zap.String("conversation_id", conversationID))
	}
}

// Stop drains the queue and waits for in-progress refreshes to finish.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Refresher) run() {
	defer r.wg.Done()
	for conversationID := range r.queue {
		r.refresh(conversationID)

		r.mu.Lock()
		delete(r.inflight, conversationID)
		r.mu.Unlock()
	}
}

func (r *Refresher) refresh(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	if err := r.RefreshIfNeeded(ctx, conversationID); err != nil {
		r.logger.Warn(ctx, "summary refresh failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

// RefreshIfNeeded regenerates the summary when enough new turns have
// accumulated or the stored summary exceeds the character cap. A
// conversation that needs no refresh is a no-op.
func (r *Refresher) RefreshIfNeeded(ctx context.Context, conversationID string) error {
	count, err := r.store.TurnCount(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reading turn count: %w", err)
	}

	current, err := r.store.Summary(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reading summary: %w", err)
	}

	// Regenerate only once the accumulation strictly exceeds the
	// threshold: at exactly RegenThreshold new turns the summary stands.
	newTurns := count - current.LastTurnCount
	if newTurns <= r.cfg.RegenThreshold && len([]rune(current.Text)) <= r.cfg.SummaryCap {
		return nil
	}

	turns, err := r.store.AllTurns(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reading turns: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	text, err := r.summarize(ctx, current.Text, turns)
	if err != nil {
		return fmt.Errorf("generating summary: %w", err)
	}

	if runes := []rune(text); len(runes) > r.cfg.SummaryCap {
		text = string(runes[:r.cfg.SummaryCap])
	}

	if err := r.store.SetSummary(ctx, conversationID, Summary{
		Text:          text,
		LastTurnCount: count,
	}); err != nil {
		return fmt.Errorf("storing summary: %w", err)
	}

	r.logger.Debug(ctx, "summary regenerated",
		zap.String("conversation_id", conversationID),
		zap.Int("turn_count", count))
	return nil
}

func (r *Refresher) summarize(ctx context.Context, priorSummary string, turns []Turn) (string, error) {
	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Prior summary:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Conversation:\n")
	for _, t := range turns {
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	res, err := r.provider.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}
