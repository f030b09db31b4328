package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yektalaw/pasokhd/internal/llm"
)

func appendUserTurns(t *testing.T, store Store, conversationID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := store.AppendTurn(ctx, conversationID, Turn{
			Role:      RoleUser,
			Content:   fmt.Sprintf("turn %d", i+1),
			Timestamp: time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestInMemoryStoreRecentTurnsOldestFirst(t *testing.T) {
	store := NewInMemoryStore()
	appendUserTurns(t, store, "c1", 15)

	turns, err := store.RecentTurns(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 10)

	// The window is the last 10 turns, oldest first.
	assert.Equal(t, "turn 6", turns[0].Content)
	assert.Equal(t, "turn 15", turns[9].Content)
}

func TestInMemoryStoreRecentTurnsFewerThanWindow(t *testing.T) {
	store := NewInMemoryStore()
	appendUserTurns(t, store, "c1", 3)

	turns, err := store.RecentTurns(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 3)
	assert.Equal(t, "turn 1", turns[0].Content)
}

func TestInMemoryStoreEmptyConversation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	turns, err := store.RecentTurns(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	sum, err := store.Summary(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, sum)

	count, err := store.TurnCount(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInMemoryStoreSummaryRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	want := Summary{Text: "user asked about lease termination", LastTurnCount: 4}
	require.NoError(t, store.SetSummary(ctx, "c1", want))

	got, err := store.Summary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// fakeSummarizer returns a deterministic summary and records calls.
type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeSummarizer) Generate(ctx context.Context, messages []llm.Message) (*llm.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return &llm.GenerateResult{Text: f.text}, nil
}

func (f *fakeSummarizer) Name() string { return "fake" }

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRefreshSkippedBelowThreshold(t *testing.T) {
	store := NewInMemoryStore()
	appendUserTurns(t, store, "c1", 19)

	provider := &fakeSummarizer{text: "summary"}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20})
	defer r.Stop()

	require.NoError(t, r.RefreshIfNeeded(context.Background(), "c1"))
	assert.Zero(t, provider.callCount())

	sum, err := store.Summary(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestRefreshHoldsAtExactThreshold(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	// Exactly 20 accumulated turns: the summary stands until the
	// threshold is exceeded.
	appendUserTurns(t, store, "c1", 20)

	provider := &fakeSummarizer{text: "summary"}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20})
	defer r.Stop()

	require.NoError(t, r.RefreshIfNeeded(ctx, "c1"))
	assert.Zero(t, provider.callCount())

	sum, err := store.Summary(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestRefreshRegeneratesPastThreshold(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	// The 21st turn pushes the accumulation past the threshold of 20,
	// and the stored marker records all 21 turns.
	appendUserTurns(t, store, "c1", 21)

	provider := &fakeSummarizer{text: "fresh summary"}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20})
	defer r.Stop()

	require.NoError(t, r.RefreshIfNeeded(ctx, "c1"))

	sum, err := store.Summary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "fresh summary", sum.Text)
	assert.Equal(t, 21, sum.LastTurnCount)
	assert.Equal(t, 1, provider.callCount())
}

func TestRefreshTruncatesToCap(t *testing.T) {
	store := NewInMemoryStore()
	appendUserTurns(t, store, "c1", 25)

	provider := &fakeSummarizer{text: strings.Repeat("ق", 3000)}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20, SummaryCap: 2000})
	defer r.Stop()

	require.NoError(t, r.RefreshIfNeeded(context.Background(), "c1"))

	sum, err := store.Summary(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, []rune(sum.Text), 2000)
}

func TestRefreshRegeneratesOversizedSummary(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	appendUserTurns(t, store, "c1", 5)
	require.NoError(t, store.SetSummary(ctx, "c1", Summary{
		Text:          strings.Repeat("x", 2500),
		LastTurnCount: 5,
	}))

	provider := &fakeSummarizer{text: "tight summary"}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20, SummaryCap: 2000})
	defer r.Stop()

	require.NoError(t, r.RefreshIfNeeded(ctx, "c1"))

	sum, err := store.Summary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "tight summary", sum.Text)
}

func TestRefreshFailureLeavesSummaryIntact(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetSummary(ctx, "c1", Summary{Text: "stale", LastTurnCount: 1}))
	appendUserTurns(t, store, "c1", 25)

	provider := &fakeSummarizer{err: fmt.Errorf("provider down")}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20})
	defer r.Stop()

	err := r.RefreshIfNeeded(ctx, "c1")
	assert.Error(t, err)

	sum, sErr := store.Summary(ctx, "c1")
	require.NoError(t, sErr)
	assert.Equal(t, "stale", sum.Text)
	assert.Equal(t, 1, sum.LastTurnCount)
}

func TestEnqueueProcessesInBackground(t *testing.T) {
	store := NewInMemoryStore()
	appendUserTurns(t, store, "c1", 21)

	provider := &fakeSummarizer{text: "background summary"}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20})

	r.Enqueue("c1")
	r.Stop()

	sum, err := store.Summary(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "background summary", sum.Text)
	assert.Equal(t, 21, sum.LastTurnCount)
}

func TestEnqueueDeduplicatesPendingConversation(t *testing.T) {
	store := NewInMemoryStore()
	appendUserTurns(t, store, "c1", 21)

	provider := &fakeSummarizer{text: "summary"}
	r := NewRefresher(store, provider, nil, RefresherConfig{RegenThreshold: 20, QueueSize: 16})

	for i := 0; i < 10; i++ {
		r.Enqueue("c1")
	}
	r.Stop()

	// All duplicates collapse into at most one refresh per drain.
	assert.LessOrEqual(t, provider.callCount(), 1)
}

func TestEnqueueEmptyConversationIgnored(t *testing.T) {
	store := NewInMemoryStore()
	provider := &fakeSummarizer{text: "summary"}
	r := NewRefresher(store, provider, nil, RefresherConfig{})

	r.Enqueue("")
	r.Stop()

	assert.Zero(t, provider.callCount())
}
