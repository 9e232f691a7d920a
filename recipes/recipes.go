// Package recipes layers the domain caching patterns on the cache façade:
// presence and socket mapping, chat caches with unread counters and typing
// sets, and shopping-list caches.
//
// Every recipe is a key template, a TTL and the mutations that invalidate
// it. Invalidation is pushed by the code that changes the underlying rows;
// TTLs only bound the damage of a missed invalidation. Cache failures never
// fail the request being served: getters return their error so the caller
// can fall back to the database, and the trigger methods (MessageSent,
// ItemsChanged, ...) log at debug and carry on.
package recipes

import (
	"time"

	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/cache"
)

// Recipes bundles every recipe over one façade.
type Recipes struct {
	Views    *Views
	Presence *Presence
	Chats    *Chats
	Lists    *Lists
}

// Option configures Recipes.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	ttls    TTLs
	near    *cache.NearCache
	nowFunc func() time.Time
}

// WithLogger sets the logger for swallowed cache errors.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTTLs overrides recipe lifetimes. Zero fields keep their default.
func WithTTLs(t TTLs) Option {
	return func(o *options) { o.ttls = t }
}

// WithNearCache puts an in-process near cache in front of the views.
func WithNearCache(n *cache.NearCache) Option {
	return func(o *options) { o.near = n }
}

// WithClock sets the time source for presence timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.nowFunc = now }
}

// New builds every recipe over f.
func New(f *cache.Facade, opts ...Option) *Recipes {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.nowFunc == nil {
		o.nowFunc = time.Now
	}
	o.ttls.fill()
	log := o.logger.Named("recipes")

	views := newViews(f, o.near, log)
	return &Recipes{
		Views:    views,
		Presence: &Presence{f: f, ttl: o.ttls, log: log, nowFunc: o.nowFunc},
		Chats:    newChats(f, views, o.ttls, log),
		Lists:    newLists(views, o.ttls),
	}
}
