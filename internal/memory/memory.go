// Package memory provides two-tier conversational memory.
//
// Short-term memory is a bounded window of the most recent turns,
// returned verbatim and oldest-first. Long-term memory is a rolling
// natural-language summary of the full history, capped at a configured
// character budget and regenerated asynchronously by the Refresher
// whenever enough new turns accumulate. The refresh never blocks the
// response path.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the conversation has no stored state yet.
var ErrNotFound = errors.New("conversation not found")

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a conversation. Turns are append-only.
type Turn struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// Summary is the long-term memory record for a conversation.
type Summary struct {
	// Text is the rolling summary, at most the configured character cap.
	Text string `json:"text"`
	// LastTurnCount is the turn count at which Text was last regenerated.
	LastTurnCount int `json:"last_turn_count"`
}

// Store persists conversation turns and summaries.
//
// Implementations must support concurrent reads. Writes to one
// conversation's summary are serialized by the Refresher, not the store.
type Store interface {
	// AppendTurn appends a turn to the conversation history.
	AppendTurn(ctx context.Context, conversationID string, turn Turn) error

	// RecentTurns returns up to n of the most recent turns, oldest first.
	// Older turns are excluded, never summarized into the window.
	RecentTurns(ctx context.Context, conversationID string, n int) ([]Turn, error)

	// AllTurns returns the full turn history, oldest first.
	AllTurns(ctx context.Context, conversationID string) ([]Turn, error)

	// TurnCount returns the number of stored turns.
	TurnCount(ctx context.Context, conversationID string) (int, error)

	// Summary returns the current long-term summary. A conversation
	// without one yields a zero Summary, not an error.
	Summary(ctx context.Context, conversationID string) (Summary, error)

	// SetSummary replaces the long-term summary.
	SetSummary(ctx context.Context, conversationID string, s Summary) error
}
