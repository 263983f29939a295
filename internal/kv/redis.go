package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis server. It is the implementation to use
// when ingest gateways and workers run in separate processes.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(opts *redis.Options) *Redis {
	return &Redis{client: redis.NewClient(opts)}
}

func NewRedisFromClient(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (r *Redis) SAdd(ctx context.Context, set, member string) (bool, error) {
	n, err := r.client.SAdd(ctx, set, member).Result()
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", set, err)
	}
	return n == 1, nil
}

func (r *Redis) SRem(ctx context.Context, set, member string) error {
	if err := r.client.SRem(ctx, set, member).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", set, err)
	}
	return nil
}

func (r *Redis) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := r.client.RPush(ctx, key, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("rpush %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return vals, nil
}

func (r *Redis) LLen(ctx context.Context, key string) (int64, error) {
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) BLPop(ctx context.Context, timeout time.Duration, key string) (string, bool, error) {
	res, err := r.client.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("blpop %s: %w", key, err)
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("blpop %s: unexpected reply length %d", key, len(res))
	}
	return res[1], true, nil
}

func (r *Redis) Commit(ctx context.Context, b *Batch) error {
	if b.guardKey == "" {
		if _, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			applyOps(ctx, p, b.ops)
			return nil
		}); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		v, err := tx.Get(ctx, b.guardKey).Result()
		if errors.Is(err, redis.Nil) {
			return ErrGuardFailed
		}
		if err != nil {
			return err
		}
		if v != b.guardValue {
			return ErrGuardFailed
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			applyOps(ctx, p, b.ops)
			return nil
		})
		return err
	}, b.guardKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrGuardFailed), errors.Is(err, redis.TxFailedErr):
		return ErrGuardFailed
	default:
		return fmt.Errorf("commit guarded batch: %w", err)
	}
}

func applyOps(ctx context.Context, p redis.Pipeliner, ops []op) {
	for _, o := range ops {
		switch o.kind {
		case opSet:
			p.Set(ctx, o.key, o.value, 0)
		case opDel:
			p.Del(ctx, o.key)
		case opSRem:
			p.SRem(ctx, o.key, o.value)
		case opLRem:
			p.LRem(ctx, o.key, 0, o.value)
		}
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// FlushAll clears the selected database only.
func (r *Redis) FlushAll(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flush db: %w", err)
	}
	return nil
}
