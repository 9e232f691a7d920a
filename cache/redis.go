package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// remote is the Redis backend. Unlike the in-process store it surfaces
// connectivity errors; the façade decides what to do with them.
type remote struct {
	rdb *redis.Client
}

var _ backend = remote{}

func (remote) name() string { return backendRedis }

func (r remote) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, mapRedisError(err)
	}
	return val, true, nil
}

func (r remote) set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return mapRedisError(r.rdb.Set(ctx, key, val, ttl).Err())
}

func (r remote) del(ctx context.Context, keys ...string) (int64, error) {
	n, err := r.rdb.Del(ctx, keys...).Result()
	return n, mapRedisError(err)
}

func (r remote) exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	return n > 0, mapRedisError(err)
}

func (r remote) expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.PExpire(ctx, key, ttl).Result()
	return ok, mapRedisError(err)
}

func (r remote) persist(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.Persist(ctx, key).Result()
	return ok, mapRedisError(err)
}

// ttl maps PTTL replies: -2 is a missing key, -1 a key without expiry.
func (r remote) ttl(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := r.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, mapRedisError(err)
	}
	switch {
	case d == -2:
		return 0, false, nil
	case d < 0:
		return 0, true, nil
	}
	return d, true, nil
}

func (r remote) incrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := r.rdb.IncrBy(ctx, key, delta).Result()
	return n, mapRedisError(err)
}

func (r remote) hset(ctx context.Context, key, field, value string) (bool, error) {
	n, err := r.rdb.HSet(ctx, key, field, value).Result()
	return n == 1, mapRedisError(err)
}

func (r remote) hsetMany(ctx context.Context, key string, fields map[string]string) (int64, error) {
	n, err := r.rdb.HSet(ctx, key, fields).Result()
	return n, mapRedisError(err)
}

func (r remote) hget(ctx context.Context, key, field string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, mapRedisError(err)
	}
	return v, true, nil
}

func (r remote) hgetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.rdb.HGetAll(ctx, key).Result()
	return m, mapRedisError(err)
}

func (r remote) hdel(ctx context.Context, key string, fields ...string) (int64, error) {
	n, err := r.rdb.HDel(ctx, key, fields...).Result()
	return n, mapRedisError(err)
}

func (r remote) hlen(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.HLen(ctx, key).Result()
	return n, mapRedisError(err)
}

func (r remote) lpush(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := r.rdb.LPush(ctx, key, toAny(values)...).Result()
	return n, mapRedisError(err)
}

func (r remote) rpush(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := r.rdb.RPush(ctx, key, toAny(values)...).Result()
	return n, mapRedisError(err)
}

func (r remote) lrange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := r.rdb.LRange(ctx, key, start, stop).Result()
	return v, mapRedisError(err)
}

func (r remote) ltrim(ctx context.Context, key string, start, stop int64) error {
	return mapRedisError(r.rdb.LTrim(ctx, key, start, stop).Err())
}

func (r remote) llen(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.LLen(ctx, key).Result()
	return n, mapRedisError(err)
}

func (r remote) sadd(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := r.rdb.SAdd(ctx, key, toAny(members)...).Result()
	return n, mapRedisError(err)
}

func (r remote) srem(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := r.rdb.SRem(ctx, key, toAny(members)...).Result()
	return n, mapRedisError(err)
}

func (r remote) smembers(ctx context.Context, key string) ([]string, error) {
	v, err := r.rdb.SMembers(ctx, key).Result()
	return v, mapRedisError(err)
}

func (r remote) sismember(ctx context.Context, key, member string) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, key, member).Result()
	return ok, mapRedisError(err)
}

func (r remote) scard(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.SCard(ctx, key).Result()
	return n, mapRedisError(err)
}

func (r remote) publish(ctx context.Context, channel string, message []byte) error {
	return mapRedisError(r.rdb.Publish(ctx, channel, message).Err())
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
