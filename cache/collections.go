package cache

import "context"

// HSet sets one hash field and reports whether the field is new.
func (f *Facade) HSet(ctx context.Context, key, field, value string) (bool, error) {
	return run(ctx, f, "hset", key, func(ctx context.Context, b backend) (bool, error) {
		return b.hset(ctx, key, field, value)
	})
}

// HSetMany sets several hash fields and returns how many were new.
func (f *Facade) HSetMany(ctx context.Context, key string, fields map[string]string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	return run(ctx, f, "hset", key, func(ctx context.Context, b backend) (int64, error) {
		return b.hsetMany(ctx, key, fields)
	})
}

// HGet returns one hash field.
func (f *Facade) HGet(ctx context.Context, key, field string) (string, bool, error) {
	type hit struct {
		v  string
		ok bool
	}
	h, err := run(ctx, f, "hget", key, func(ctx context.Context, b backend) (hit, error) {
		v, ok, err := b.hget(ctx, key, field)
		return hit{v, ok}, err
	})
	return h.v, h.ok, err
}

// HGetAll returns every field of the hash. A missing key yields an empty map.
func (f *Facade) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return run(ctx, f, "hgetall", key, func(ctx context.Context, b backend) (map[string]string, error) {
		return b.hgetAll(ctx, key)
	})
}

// HDel removes hash fields and returns how many existed. Removing the last
// field removes the key.
func (f *Facade) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	return run(ctx, f, "hdel", key, func(ctx context.Context, b backend) (int64, error) {
		return b.hdel(ctx, key, fields...)
	})
}

// HLen returns the number of fields in the hash.
func (f *Facade) HLen(ctx context.Context, key string) (int64, error) {
	return run(ctx, f, "hlen", key, func(ctx context.Context, b backend) (int64, error) {
		return b.hlen(ctx, key)
	})
}

// LPush prepends values one after another and returns the new length.
func (f *Facade) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	if len(values) == 0 {
		return f.LLen(ctx, key)
	}
	return run(ctx, f, "lpush", key, func(ctx context.Context, b backend) (int64, error) {
		return b.lpush(ctx, key, values...)
	})
}

// RPush appends values and returns the new length.
func (f *Facade) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	if len(values) == 0 {
		return f.LLen(ctx, key)
	}
	return run(ctx, f, "rpush", key, func(ctx context.Context, b backend) (int64, error) {
		return b.rpush(ctx, key, values...)
	})
}

// LRange returns the elements between start and stop inclusive. Negative
// indexes count from the tail.
func (f *Facade) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return run(ctx, f, "lrange", key, func(ctx context.Context, b backend) ([]string, error) {
		return b.lrange(ctx, key, start, stop)
	})
}

// LTrim keeps only the elements between start and stop inclusive.
func (f *Facade) LTrim(ctx context.Context, key string, start, stop int64) error {
	_, err := run(ctx, f, "ltrim", key, func(ctx context.Context, b backend) (struct{}, error) {
		return struct{}{}, b.ltrim(ctx, key, start, stop)
	})
	return err
}

// LLen returns the list length.
func (f *Facade) LLen(ctx context.Context, key string) (int64, error) {
	return run(ctx, f, "llen", key, func(ctx context.Context, b backend) (int64, error) {
		return b.llen(ctx, key)
	})
}

// SAdd adds members and returns how many were new.
func (f *Facade) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return run(ctx, f, "sadd", key, func(ctx context.Context, b backend) (int64, error) {
		return b.sadd(ctx, key, members...)
	})
}

// SRem removes members and returns how many existed. Removing the last
// member removes the key.
func (f *Facade) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return run(ctx, f, "srem", key, func(ctx context.Context, b backend) (int64, error) {
		return b.srem(ctx, key, members...)
	})
}

// SMembers returns the set members. Order is unspecified for Redis and
// sorted for the in-process store.
func (f *Facade) SMembers(ctx context.Context, key string) ([]string, error) {
	return run(ctx, f, "smembers", key, func(ctx context.Context, b backend) ([]string, error) {
		return b.smembers(ctx, key)
	})
}

// SIsMember reports whether member is in the set.
func (f *Facade) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return run(ctx, f, "sismember", key, func(ctx context.Context, b backend) (bool, error) {
		return b.sismember(ctx, key, member)
	})
}

// SCard returns the set size.
func (f *Facade) SCard(ctx context.Context, key string) (int64, error) {
	return run(ctx, f, "scard", key, func(ctx context.Context, b backend) (int64, error) {
		return b.scard(ctx, key)
	})
}
