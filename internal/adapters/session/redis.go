package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// RedisStore keeps conversations in Redis lists, one JSON turn per element.
type RedisStore struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	maxTurns int
}

// NewRedisStore creates a store. A zero ttl keeps keys forever.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration, maxTurns int) *RedisStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &RedisStore{rdb: rdb, ttl: ttl, maxTurns: maxTurns}
}

func conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:turns", conversationID)
}

// Append pushes turns, trims the list to the limit and refreshes the TTL in
// one transaction.
func (s *RedisStore) Append(ctx context.Context, conversationID string, turns ...entities.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]any, len(turns))
	for i, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		values[i] = b
	}

	key := conversationKey(conversationID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to append conversation turns")
		return fmt.Errorf("redis append %s: %w", key, err)
	}
	return nil
}

// Load returns the stored turns, oldest first. Undecodable elements are
// skipped.
func (s *RedisStore) Load(ctx context.Context, conversationID string) ([]entities.ConversationTurn, error) {
	key := conversationKey(conversationID)
	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []entities.ConversationTurn{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation")
		return nil, fmt.Errorf("redis load %s: %w", key, err)
	}

	turns := make([]entities.ConversationTurn, 0, len(rows))
	for i, row := range rows {
		var t entities.ConversationTurn
		if err := json.Unmarshal([]byte(row), &t); err != nil {
			logx.Warn().Err(err).Str("key", key).Int("index", i).Msg("skipping undecodable turn")
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear deletes a conversation.
func (s *RedisStore) Clear(ctx context.Context, conversationID string) error {
	key := conversationKey(conversationID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}
