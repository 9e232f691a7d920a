package cache

import (
	"context"
	"time"

	"github.com/Keksclan/goRawrStash/store"
)

// backend is the operation set shared by Redis and the in-process store.
// A miss is (zero, false, nil); ttl 0 means no expiry.
type backend interface {
	name() string

	get(ctx context.Context, key string) ([]byte, bool, error)
	set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	del(ctx context.Context, keys ...string) (int64, error)
	exists(ctx context.Context, key string) (bool, error)
	expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	persist(ctx context.Context, key string) (bool, error)
	ttl(ctx context.Context, key string) (time.Duration, bool, error)
	incrBy(ctx context.Context, key string, delta int64) (int64, error)

	hset(ctx context.Context, key, field, value string) (bool, error)
	hsetMany(ctx context.Context, key string, fields map[string]string) (int64, error)
	hget(ctx context.Context, key, field string) (string, bool, error)
	hgetAll(ctx context.Context, key string) (map[string]string, error)
	hdel(ctx context.Context, key string, fields ...string) (int64, error)
	hlen(ctx context.Context, key string) (int64, error)

	lpush(ctx context.Context, key string, values ...string) (int64, error)
	rpush(ctx context.Context, key string, values ...string) (int64, error)
	lrange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ltrim(ctx context.Context, key string, start, stop int64) error
	llen(ctx context.Context, key string) (int64, error)

	sadd(ctx context.Context, key string, members ...string) (int64, error)
	srem(ctx context.Context, key string, members ...string) (int64, error)
	smembers(ctx context.Context, key string) ([]string, error)
	sismember(ctx context.Context, key, member string) (bool, error)
	scard(ctx context.Context, key string) (int64, error)

	publish(ctx context.Context, channel string, message []byte) error
}

const (
	backendRedis  = "redis"
	backendMemory = "memory"
)

// memory adapts store.Store to the backend interface. It never fails for
// connectivity reasons.
type memory struct {
	s *store.Store
}

var _ backend = memory{}

func (memory) name() string { return backendMemory }

func (m memory) get(_ context.Context, key string) ([]byte, bool, error) {
	return m.s.Get(key)
}

func (m memory) set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.s.Set(key, val, ttl)
	return nil
}

func (m memory) del(_ context.Context, keys ...string) (int64, error) {
	return int64(m.s.Delete(keys...)), nil
}

func (m memory) exists(_ context.Context, key string) (bool, error) {
	return m.s.Exists(key), nil
}

func (m memory) expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return m.s.Expire(key, ttl), nil
}

func (m memory) persist(_ context.Context, key string) (bool, error) {
	return m.s.Persist(key), nil
}

func (m memory) ttl(_ context.Context, key string) (time.Duration, bool, error) {
	d, ok := m.s.TTL(key)
	return d, ok, nil
}

func (m memory) incrBy(_ context.Context, key string, delta int64) (int64, error) {
	return m.s.IncrBy(key, delta)
}

func (m memory) hset(_ context.Context, key, field, value string) (bool, error) {
	return m.s.HSet(key, field, value)
}

func (m memory) hsetMany(_ context.Context, key string, fields map[string]string) (int64, error) {
	n, err := m.s.HSetMany(key, fields)
	return int64(n), err
}

func (m memory) hget(_ context.Context, key, field string) (string, bool, error) {
	return m.s.HGet(key, field)
}

func (m memory) hgetAll(_ context.Context, key string) (map[string]string, error) {
	return m.s.HGetAll(key)
}

func (m memory) hdel(_ context.Context, key string, fields ...string) (int64, error) {
	n, err := m.s.HDel(key, fields...)
	return int64(n), err
}

func (m memory) hlen(_ context.Context, key string) (int64, error) {
	n, err := m.s.HLen(key)
	return int64(n), err
}

func (m memory) lpush(_ context.Context, key string, values ...string) (int64, error) {
	n, err := m.s.LPush(key, values...)
	return int64(n), err
}

func (m memory) rpush(_ context.Context, key string, values ...string) (int64, error) {
	n, err := m.s.RPush(key, values...)
	return int64(n), err
}

func (m memory) lrange(_ context.Context, key string, start, stop int64) ([]string, error) {
	return m.s.LRange(key, int(start), int(stop))
}

func (m memory) ltrim(_ context.Context, key string, start, stop int64) error {
	return m.s.LTrim(key, int(start), int(stop))
}

func (m memory) llen(_ context.Context, key string) (int64, error) {
	n, err := m.s.LLen(key)
	return int64(n), err
}

func (m memory) sadd(_ context.Context, key string, members ...string) (int64, error) {
	n, err := m.s.SAdd(key, members...)
	return int64(n), err
}

func (m memory) srem(_ context.Context, key string, members ...string) (int64, error) {
	n, err := m.s.SRem(key, members...)
	return int64(n), err
}

func (m memory) smembers(_ context.Context, key string) ([]string, error) {
	return m.s.SMembers(key)
}

func (m memory) sismember(_ context.Context, key, member string) (bool, error) {
	return m.s.SIsMember(key, member)
}

func (m memory) scard(_ context.Context, key string) (int64, error) {
	n, err := m.s.SCard(key)
	return int64(n), err
}

// publish is a no-op: there are no subscribers inside the process.
func (memory) publish(context.Context, string, []byte) error { return nil }
