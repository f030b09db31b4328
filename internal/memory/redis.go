package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis. Turns live in a list per
// conversation, the summary in a JSON string key next to it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func turnsKey(conversationID string) string {
	return "pasokhd:conv:" + conversationID + ":turns"
}

func summaryKey(conversationID string) string {
	return "pasokhd:conv:" + conversationID + ":summary"
}

// AppendTurn implements Store.
func (s *RedisStore) AppendTurn(ctx context.Context, conversationID string, turn Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshaling turn: %w", err)
	}
	if err := s.client.RPush(ctx, turnsKey(conversationID), payload).Err(); err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

// RecentTurns implements Store.
func (s *RedisStore) RecentTurns(ctx context.Context, conversationID string, n int) ([]Turn, error) {
	if n <= 0 {
		return []Turn{}, nil
	}
	raw, err := s.client.LRange(ctx, turnsKey(conversationID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading recent turns: %w", err)
	}
	return decodeTurns(raw)
}

// AllTurns implements Store.
func (s *RedisStore) AllTurns(ctx context.Context, conversationID string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, turnsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}
	return decodeTurns(raw)
}

func decodeTurns(raw []string) ([]Turn, error) {
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// TurnCount implements Store.
func (s *RedisStore) TurnCount(ctx context.Context, conversationID string) (int, error) {
	count, err := s.client.LLen(ctx, turnsKey(conversationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return int(count), nil
}

// Summary implements Store.
func (s *RedisStore) Summary(ctx context.Context, conversationID string) (Summary, error) {
	raw, err := s.client.Get(ctx, summaryKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("reading summary: %w", err)
	}

	var sum Summary
	if err := json.Unmarshal([]byte(raw), &sum); err != nil {
		return Summary{}, fmt.Errorf("decoding summary: %w", err)
	}
	return sum, nil
}

// SetSummary implements Store.
func (s *RedisStore) SetSummary(ctx context.Context, conversationID string, sum Summary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if err := s.client.Set(ctx, summaryKey(conversationID), payload, 0).Err(); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
