package recipes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/cache"
)

// InvalidationChannel carries the keys of invalidated views between
// instances so each one can drop its near-cache copies.
const InvalidationChannel = "stash:views:invalidate"

// View is a cached, denormalised snapshot of relational data identified by
// one numeric id.
type View struct {
	Name string
	Key  func(id int64) string
	TTL  time.Duration
}

// Views reads and writes cached views through the façade, with an optional
// near cache in front and load de-duplication on misses.
type Views struct {
	f     *cache.Facade
	near  *cache.NearCache
	log   *zap.Logger
	group cache.Group
}

func newViews(f *cache.Facade, near *cache.NearCache, log *zap.Logger) *Views {
	return &Views{f: f, near: near, log: log}
}

// Get decodes the cached view into dst and reports a hit.
func (v *Views) Get(ctx context.Context, view View, id int64, dst any) (bool, error) {
	key := view.Key(id)
	raw, ok, err := v.raw(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := v.f.Codec().Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores val as the cached view.
func (v *Views) Set(ctx context.Context, view View, id int64, val any) error {
	raw, err := v.f.Codec().Marshal(val)
	if err != nil {
		return err
	}
	return v.store(ctx, view, view.Key(id), raw)
}

// Invalidate drops the cached views for ids. Errors are logged and
// swallowed: a stale view is bounded by its TTL.
func (v *Views) Invalidate(ctx context.Context, view View, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, n := range ids {
		keys[i] = view.Key(n)
		if v.near != nil {
			v.near.Del(keys[i])
		}
	}
	if _, err := v.f.Del(ctx, keys...); err != nil {
		v.log.Debug("view invalidation failed", zap.String("view", view.Name), zap.Error(err))
	}
	if v.near != nil {
		if err := v.f.PublishValue(ctx, InvalidationChannel, keys); err != nil {
			v.log.Debug("view invalidation broadcast failed", zap.String("view", view.Name), zap.Error(err))
		}
	}
}

// Listen drops near-cache entries invalidated by other instances until ctx
// is done or the returned subscription is closed. Without a near cache
// there is nothing to drop and the subscription is inert.
func (v *Views) Listen(ctx context.Context) (*cache.Subscription, error) {
	if v.near == nil {
		return &cache.Subscription{}, nil
	}
	return v.f.Subscribe(ctx, InvalidationChannel, func(msg []byte) {
		var keys []string
		if err := v.f.Codec().Unmarshal(msg, &keys); err != nil {
			v.log.Debug("bad invalidation message", zap.Error(err))
			return
		}
		for _, k := range keys {
			v.near.Del(k)
		}
	})
}

func (v *Views) raw(ctx context.Context, key string) ([]byte, bool, error) {
	if v.near != nil {
		if raw, ok := v.near.Get(key); ok {
			return raw, true, nil
		}
	}
	raw, ok, err := v.f.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if v.near != nil {
		v.near.Set(key, raw)
	}
	return raw, true, nil
}

func (v *Views) store(ctx context.Context, view View, key string, raw []byte) error {
	if v.near != nil {
		v.near.Set(key, raw)
	}
	return v.f.Set(ctx, key, raw, view.TTL)
}

// Fetch returns the view for id from the cache, or calls load on a miss and
// caches the result. Concurrent misses for the same key share one load.
// Cache errors only cost a reload; load errors are returned.
func Fetch[T any](ctx context.Context, v *Views, view View, id int64, load func(context.Context) (T, error)) (T, error) {
	var zero T
	key := view.Key(id)
	codec := v.f.Codec()

	raw, ok, err := v.raw(ctx, key)
	if err != nil {
		v.log.Debug("view read failed, loading", zap.String("view", view.Name), zap.Error(err))
	}
	if ok {
		var out T
		if err := codec.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		v.log.Debug("cached view undecodable, loading", zap.String("view", view.Name))
	}

	raw, _, err = v.group.Do(key, func() ([]byte, error) {
		val, err := load(ctx)
		if err != nil {
			return nil, err
		}
		b, err := codec.Marshal(val)
		if err != nil {
			return nil, err
		}
		if err := v.store(ctx, view, key, b); err != nil {
			v.log.Debug("view write failed", zap.String("view", view.Name), zap.Error(err))
		}
		return b, nil
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := codec.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// ReadThrough always calls load and never reads the cache. Use it right
// after a mutation, when a cached copy may race the write. With refresh set
// the loaded value replaces the cached view; otherwise the cache is left
// alone.
func ReadThrough[T any](ctx context.Context, v *Views, view View, id int64, refresh bool, load func(context.Context) (T, error)) (T, error) {
	val, err := load(ctx)
	if err != nil || !refresh {
		return val, err
	}
	if err := v.Set(ctx, view, id, val); err != nil {
		v.log.Debug("view refresh failed", zap.String("view", view.Name), zap.Error(err))
	}
	return val, nil
}
