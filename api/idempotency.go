package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "dedupe"

// RedisDeduper stores processed idempotency keys in Redis so all instances
// can avoid reprocessing the same command.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", dedupeKeyPrefix, scope, key)
}

// Remove deletes previously recorded keys so the caller may retry the
// commands after a failed apply.
func (r *RedisDeduper) Remove(ctx context.Context, scope string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(scope, k)
	}
	return r.client.Del(ctx, full...).Err()
}

// AddMany attempts to add the provided keys in a single Redis pipeline and
// returns a boolean slice indicating which keys were newly recorded. When an
// error occurs, the slice contains the results for commands processed before
// the failure so callers may roll back any successful additions.
func (r *RedisDeduper) AddMany(ctx context.Context, scope string, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	results := make([]bool, len(keys))
	cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.SetNX(ctx, r.key(scope, key), 1, r.ttl)
		}
		return nil
	})
	if err != nil {
		return results, err
	}
	if len(cmds) != len(keys) {
		return results, fmt.Errorf("deduper pipeline mismatch: expected %d results, got %d", len(keys), len(cmds))
	}
	for i, cmd := range cmds {
		boolCmd, ok := cmd.(*redis.BoolCmd)
		if !ok {
			return results, fmt.Errorf("unexpected redis response type %T", cmd)
		}
		val, cmdErr := boolCmd.Result()
		if cmdErr != nil {
			return results, cmdErr
		}
		results[i] = val
	}
	return results, nil
}

// MemoryDeduper keeps idempotency keys in process memory. It serves single
// instance deployments that run without Redis.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

// NewMemoryDeduper returns a deduper whose keys expire after ttl. A zero ttl
// keeps keys forever.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *MemoryDeduper) AddMany(_ context.Context, scope string, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	results := make([]bool, len(keys))
	for i, k := range keys {
		full := scope + ":" + k
		if exp, ok := m.seen[full]; ok && (m.ttl <= 0 || now.Before(exp)) {
			continue
		}
		m.seen[full] = now.Add(m.ttl)
		results[i] = true
	}
	if len(m.seen) > 4096 {
		m.sweep(now)
	}
	return results, nil
}

func (m *MemoryDeduper) Remove(_ context.Context, scope string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.seen, scope+":"+k)
	}
	return nil
}

func (m *MemoryDeduper) sweep(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for k, exp := range m.seen {
		if !now.Before(exp) {
			delete(m.seen, k)
		}
	}
}
