package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"repricelab/domain"
)

type backend interface {
	LoadBoard(ctx context.Context, id string) (domain.Board, error)
	SaveBoard(ctx context.Context, b domain.Board, expected int64) (domain.Board, error)
}

// Cache wraps a board backend with a Redis read-through cache. Saves write
// the new board through, and entries only ever move forward in version.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) LoadBoard(ctx context.Context, id string) (domain.Board, error) {
	if b, ok := c.loadFromCache(ctx, id); ok {
		return b, nil
	}

	b, err := c.base.LoadBoard(ctx, id)
	if err != nil {
		return domain.Board{}, err
	}

	c.store(ctx, b)
	return b, nil
}

func (c *Cache) SaveBoard(ctx context.Context, b domain.Board, expected int64) (domain.Board, error) {
	saved, err := c.base.SaveBoard(ctx, b, expected)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			// The cached copy may be behind; replace it so the retry reads the
			// winner's version.
			c.refresh(ctx, b.ID)
		}
		return domain.Board{}, err
	}

	if !c.store(ctx, saved) {
		c.evict(ctx, b.ID)
	}
	return saved, nil
}

func (c *Cache) refresh(ctx context.Context, id string) {
	b, err := c.base.LoadBoard(ctx, id)
	if err != nil || !c.store(ctx, b) {
		c.evict(ctx, id)
	}
}

func (c *Cache) loadFromCache(ctx context.Context, id string) (domain.Board, bool) {
	if c.redis == nil {
		return domain.Board{}, false
	}
	data, err := c.redis.HGet(ctx, boardCacheKey(id), "data").Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			c.evict(ctx, id)
		}
		return domain.Board{}, false
	}
	var b domain.Board
	if err := json.Unmarshal(data, &b); err != nil {
		c.evict(ctx, id)
		return domain.Board{}, false
	}
	return b, true
}

// storeIfNewer writes the board unless the cache already holds the same or a
// later version. A read that raced a save can therefore never put an older
// board back.
var storeIfNewer = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'version'))
if cur and cur >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// store reports whether the cache now holds b or something newer.
func (c *Cache) store(ctx context.Context, b domain.Board) bool {
	if c.redis == nil || c.ttl == 0 {
		return false
	}
	data, err := json.Marshal(b)
	if err != nil {
		return false
	}
	err = storeIfNewer.Run(ctx, c.redis, []string{boardCacheKey(b.ID)}, b.Version, data, c.ttl.Milliseconds()).Err()
	return err == nil
}

func (c *Cache) evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(id)).Result()
}

func boardCacheKey(id string) string {
	return "board-cache:" + id
}
