package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter implements the Store interface using Redis.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter creates a new Redis store adapter.
// The redisURL should be in the format: redis://[:password@]host[:port][/database]
func NewRedisAdapter(redisURL string) (*RedisAdapter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &RedisAdapter{client: redis.NewClient(opts)}, nil
}

// Get retrieves a value from Redis by key.
func (r *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// MGet retrieves several values in one round trip.
func (r *RedisAdapter) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget %d keys: %w", len(keys), err)
	}

	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// Set stores a value in Redis with the specified TTL.
func (r *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a value from Redis by key.
func (r *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Members lists the members of a Redis set.
func (r *RedisAdapter) Members(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", key, err)
	}
	return members, nil
}

// AddMember adds a member to a Redis set.
func (r *RedisAdapter) AddMember(ctx context.Context, key, member string) error {
	if err := r.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("failed to add member to %s: %w", key, err)
	}
	return nil
}

// RemoveMember removes a member from a Redis set.
func (r *RedisAdapter) RemoveMember(ctx context.Context, key, member string) error {
	if err := r.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("failed to remove member from %s: %w", key, err)
	}
	return nil
}

// Ranked returns all members of a sorted set ordered by score.
func (r *RedisAdapter) Ranked(ctx context.Context, key string, descending bool) ([]string, error) {
	var (
		members []string
		err     error
	)
	if descending {
		members, err = r.client.ZRevRange(ctx, key, 0, -1).Result()
	} else {
		members, err = r.client.ZRange(ctx, key, 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to range %s: %w", key, err)
	}
	return members, nil
}

// Append adds an entry to a Redis stream.
func (r *RedisAdapter) Append(ctx context.Context, stream string, values map[string]any) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	return id, nil
}

// Update runs fn under WATCH and commits its queued writes with MULTI/EXEC.
func (r *RedisAdapter) Update(ctx context.Context, fn func(tx Txn) error, watch ...string) error {
	err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := &redisTxn{ctx: ctx, tx: rtx}
		if err := fn(t); err != nil {
			return err
		}
		if len(t.ops) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range t.ops {
				op(pipe)
			}
			return nil
		})
		return err
	}, watch...)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// Ping checks if Redis is reachable.
func (r *RedisAdapter) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisAdapter) Close() error {
	return r.client.Close()
}

type redisTxn struct {
	ctx context.Context
	tx  *redis.Tx
	ops []func(redis.Pipeliner)
}

func (t *redisTxn) Get(key string) ([]byte, error) {
	val, err := t.tx.Get(t.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

func (t *redisTxn) IsMember(key, member string) (bool, error) {
	ok, err := t.tx.SIsMember(t.ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check member of %s: %w", key, err)
	}
	return ok, nil
}

func (t *redisTxn) Set(key string, value []byte) {
	t.ops = append(t.ops, func(p redis.Pipeliner) { p.Set(t.ctx, key, value, 0) })
}

func (t *redisTxn) Delete(key string) {
	t.ops = append(t.ops, func(p redis.Pipeliner) { p.Del(t.ctx, key) })
}

func (t *redisTxn) AddMember(key, member string) {
	t.ops = append(t.ops, func(p redis.Pipeliner) { p.SAdd(t.ctx, key, member) })
}

func (t *redisTxn) RemoveMember(key, member string) {
	t.ops = append(t.ops, func(p redis.Pipeliner) { p.SRem(t.ctx, key, member) })
}

func (t *redisTxn) AddRanked(key string, score float64, member string) {
	t.ops = append(t.ops, func(p redis.Pipeliner) {
		p.ZAdd(t.ctx, key, redis.Z{Score: score, Member: member})
	})
}
