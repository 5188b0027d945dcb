package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sequences and the ledger in Redis so that several
// processes writing to the same output directory never pick the same name.
type RedisStore struct {
	redis  *redis.Client
	runTTL time.Duration
}

// NewRedisStore creates a store on an existing client. Ledger entries expire
// after runTTL; 0 keeps them forever.
func NewRedisStore(redisClient *redis.Client, runTTL time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		runTTL: runTTL,
	}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStore(client, 0), nil
}

// Next increments the sequence for key atomically.
func (s *RedisStore) Next(ctx context.Context, key Key) (int64, error) {
	n, err := s.redis.Incr(ctx, key.SequenceKey()).Result()
	if err != nil {
		storeErrors.WithLabelValues("next").Inc()
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// Record stores run as the latest run for key.
func (s *RedisStore) Record(ctx context.Context, key Key, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		storeErrors.WithLabelValues("record").Inc()
		return fmt.Errorf("marshal run: %w", err)
	}

	if err := s.redis.Set(ctx, key.RunKey(), data, s.runTTL).Err(); err != nil {
		storeErrors.WithLabelValues("record").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	runsRecorded.WithLabelValues("redis").Inc()
	return nil
}

// Last returns the latest run for key, or ErrNoRun.
func (s *RedisStore) Last(ctx context.Context, key Key) (*Run, error) {
	data, err := s.redis.Get(ctx, key.RunKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoRun
		}
		storeErrors.WithLabelValues("last").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		storeErrors.WithLabelValues("last").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}
	return &run, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
