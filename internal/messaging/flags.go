package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"dtfcapture/internal/constants"
)

// Flag names one notification that must be sent at most once per flow.
type Flag string

const (
	FlagFailure          Flag = "failure"
	FlagPartialRetry     Flag = "partial-retry"
	FlagRequeueThreshold Flag = "requeue-threshold"
	FlagRetryLimit       Flag = "retry-limit"
)

var allFlags = []Flag{FlagFailure, FlagPartialRetry, FlagRequeueThreshold, FlagRetryLimit}

const (
	DefaultFlagStoreSize = 10000
	DefaultFlagTTL       = 24 * time.Hour
)

type FlagStore interface {
	// MarkOnce sets the flag and reports whether it was not set before.
	MarkOnce(ctx context.Context, flowID uuid.UUID, flag Flag) (bool, error)
	// Clear removes every flag of the flow.
	Clear(ctx context.Context, flowID uuid.UUID) error
}

func flagKey(flowID uuid.UUID, flag Flag) string {
	return constants.CacheKeyPrefixNotified + flowID.String() + ":" + string(flag)
}

// MemoryFlagStore keeps flags in a bounded LRU so a long-running process
// cannot grow without limit when flows never succeed.
type MemoryFlagStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

func NewMemoryFlagStore(size int, ttl time.Duration) *MemoryFlagStore {
	if size <= 0 {
		size = DefaultFlagStoreSize
	}
	if ttl <= 0 {
		ttl = DefaultFlagTTL
	}
	return &MemoryFlagStore{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *MemoryFlagStore) MarkOnce(_ context.Context, flowID uuid.UUID, flag Flag) (bool, error) {
	key := flagKey(flowID, flag)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(key) {
		return false, nil
	}
	s.cache.Add(key, struct{}{})
	return true, nil
}

func (s *MemoryFlagStore) Clear(_ context.Context, flowID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range allFlags {
		s.cache.Remove(flagKey(flowID, f))
	}
	return nil
}

// RedisFlagStore shares flags between consumer instances.
type RedisFlagStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFlagStore(client *redis.Client, ttl time.Duration) *RedisFlagStore {
	if ttl <= 0 {
		ttl = DefaultFlagTTL
	}
	return &RedisFlagStore{client: client, ttl: ttl}
}

func (s *RedisFlagStore) MarkOnce(ctx context.Context, flowID uuid.UUID, flag Flag) (bool, error) {
	ok, err := s.client.SetNX(ctx, flagKey(flowID, flag), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return ok, nil
}

func (s *RedisFlagStore) Clear(ctx context.Context, flowID uuid.UUID) error {
	keys := make([]string, 0, len(allFlags))
	for _, f := range allFlags {
		keys = append(keys, flagKey(flowID, f))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis Del failed: %w", err)
	}
	return nil
}
