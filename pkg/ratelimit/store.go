package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyState is the Redis key holding the shared rate limit snapshot.
const RedisKeyState = "filings:rate_limit:state"

// redisStateTTL bounds how long a published snapshot outlives its window.
// A snapshot older than this describes an expired window and is useless.
const redisStateTTL = 5 * time.Minute

// Store persists rate limit snapshots so multiple processes sharing one API
// key observe the same budget. Load returns (nil, nil) when no snapshot is
// stored.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load retrieves the shared snapshot.
func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	data, err := s.redis.Get(ctx, RedisKeyState).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get rate limit state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal rate limit state: %w", err)
	}
	return &state, nil
}

// Save publishes a snapshot. The entry expires with its window so a stale
// snapshot cannot gate a fresh process forever.
func (s *RedisStore) Save(ctx context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("rate limit state cannot be nil")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal rate limit state: %w", err)
	}

	ttl := redisStateTTL
	if state.ResetAt != nil {
		if until := time.Until(*state.ResetAt); until > 0 && until < ttl {
			ttl = until + time.Minute
		}
	}

	if err := s.redis.Set(ctx, RedisKeyState, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set rate limit state: %w", err)
	}
	return nil
}
