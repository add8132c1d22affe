package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"repricelab/domain"
)

// RedisStore keeps each board as one JSON value. Saves run inside a
// WATCH/MULTI transaction on the board key.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func boardKey(id string) string {
	return "board:" + id
}

func (r *RedisStore) LoadBoard(ctx context.Context, id string) (domain.Board, error) {
	return loadRedisBoard(ctx, r.client, id)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadRedisBoard(ctx context.Context, c redisGetter, id string) (domain.Board, error) {
	data, err := c.Get(ctx, boardKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Board{}, domain.ErrBoardNotFound
	}
	if err != nil {
		return domain.Board{}, err
	}
	var b domain.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return domain.Board{}, fmt.Errorf("decode board %s: %w", id, err)
	}
	return b, nil
}

func (r *RedisStore) SaveBoard(ctx context.Context, b domain.Board, expected int64) (domain.Board, error) {
	b.Version = expected + 1
	data, err := json.Marshal(b)
	if err != nil {
		return domain.Board{}, err
	}
	key := boardKey(b.ID)

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := loadRedisBoard(ctx, tx, b.ID)
		switch {
		case errors.Is(err, domain.ErrBoardNotFound):
			if expected != 0 {
				return domain.ErrConcurrencyConflict
			}
		case err != nil:
			return err
		case cur.Version != expected:
			return domain.ErrConcurrencyConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.Board{}, domain.ErrConcurrencyConflict
	}
	if err != nil {
		return domain.Board{}, err
	}
	return b, nil
}
