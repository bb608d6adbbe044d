package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-tutor/internal/platform/cache"
)

// BudgetChecker checks and records daily token usage per user.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining today.
	Check(ctx context.Context, userID string) (bool, error)
	// Record adds token usage for the user to today's tally.
	Record(ctx context.Context, userID string, tokens int) error
}

// dayStamp buckets usage by UTC calendar day.
func dayStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}

// InMemoryBudget tracks usage in process memory. Used when no cache is configured.
type InMemoryBudget struct {
	mu    sync.Mutex
	limit int64
	usage map[string]int64 // userID:day -> tokens used
	now   func() time.Time
}

// NewInMemoryBudget creates a tracker with a per-user daily limit. A limit of
// zero or less means unlimited.
func NewInMemoryBudget(dailyLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit: dailyLimit,
		usage: make(map[string]int64),
		now:   time.Now,
	}
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[userID+":"+dayStamp(b.now())] < b.limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[userID+":"+dayStamp(b.now())] += int64(tokens)
	return nil
}

// Usage returns today's usage and the configured limit for a user.
func (b *InMemoryBudget) Usage(userID string) (used int64, limit int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[userID+":"+dayStamp(b.now())], b.limit
}

// RedisBudget keeps daily counters in Redis so every replica shares them.
type RedisBudget struct {
	client *redis.Client
	limit  int64
	now    func() time.Time
}

// NewRedisBudget creates a Redis-backed tracker. A limit of zero or less means unlimited.
func NewRedisBudget(client *redis.Client, dailyLimit int64) *RedisBudget {
	return &RedisBudget{client: client, limit: dailyLimit, now: time.Now}
}

func (b *RedisBudget) key(userID string) string {
	return cache.Key("budget", userID, dayStamp(b.now()))
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, err := b.client.Get(ctx, b.key(userID)).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading budget: %w", err)
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	key := b.key(userID)
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording budget: %w", err)
	}
	return nil
}
