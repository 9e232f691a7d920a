// Package gorawrstash wires the cache, presence and rate-limiting layer into
// one service object.
//
// A Stash is built once at start-up and handed to request handlers. It
// prefers Redis and degrades to an in-process expiring store when Redis is
// absent or unreachable, so starting without Redis is never an error:
//
//	st, err := gorawrstash.New(gorawrstash.WithRedisURL(os.Getenv("REDIS_URL")))
//	if err != nil {
//		return err
//	}
//	if err := st.Start(ctx); err != nil {
//		return err
//	}
//	defer st.Close()
//
//	online, _ := st.Recipes().Presence.IsOnline(ctx, userID)
package gorawrstash

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/cache"
	"github.com/Keksclan/goRawrStash/clientip"
	"github.com/Keksclan/goRawrStash/conn"
	"github.com/Keksclan/goRawrStash/metrics"
	"github.com/Keksclan/goRawrStash/policy"
	"github.com/Keksclan/goRawrStash/ratelimit"
	"github.com/Keksclan/goRawrStash/recipes"
	"github.com/Keksclan/goRawrStash/store"
	"github.com/Keksclan/goRawrStash/tracing"
)

// Stash owns every component of the layer. All methods are safe for
// concurrent use.
type Stash struct {
	cfg     config
	log     *zap.Logger
	metrics *metrics.Collectors

	store    *store.Store
	conn     *conn.Manager
	cache    *cache.Facade
	near     *cache.NearCache
	recipes  *recipes.Recipes
	limiter  *ratelimit.FixedWindow
	policies *ratelimit.Policies
	gate     *ratelimit.TokenBucket
	ips      *clientip.Resolver
	tracing  *tracing.Config

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sub     *cache.Subscription
}

// New builds a Stash. Nothing is dialled and no goroutine is started until
// Start is called.
func New(opts ...Option) (*Stash, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	cfg.applyDefaults()

	codec := cfg.codec
	if codec == nil {
		var err error
		if codec, err = cache.CodecByName(cfg.codecName); err != nil {
			return nil, err
		}
	}
	ips, err := clientip.New(cfg.trustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Stash{cfg: cfg, log: cfg.logger, ips: ips}
	s.metrics = metrics.New(cfg.registry)

	s.store = store.New(store.Config{
		SweepInterval: cfg.sweepInterval,
		OnEvict:       s.metrics.StoreEvicted,
	})
	s.metrics.TrackStoreEntries(s.store.Len)

	s.conn = conn.NewManager(conn.Config{
		Addr:           cfg.redisURL,
		ConnectTimeout: cfg.connectTimeout,
		WatchInterval:  cfg.watchInterval,
	}, cfg.logger)
	s.conn.OnModeChange(func(_, to conn.Mode) {
		s.metrics.SetCacheMode(int(to))
	})

	cacheOpts := []cache.Option{
		cache.WithLogger(cfg.logger),
		cache.WithCodec(codec),
		cache.WithMetrics(s.metrics),
		cache.WithBreaker(cfg.breaker),
	}
	if cfg.tracing {
		tp := cfg.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		cacheOpts = append(cacheOpts, cache.WithTracerProvider(tp))
		s.tracing = &tracing.Config{
			TracerProvider: tp,
			CacheMode:      func() string { return s.conn.Mode().String() },
		}
	}
	s.cache = cache.New(s.conn, s.store, cacheOpts...)

	recipeOpts := []recipes.Option{recipes.WithLogger(cfg.logger), recipes.WithTTLs(cfg.ttls)}
	if cfg.nearSize > 0 {
		if s.near, err = cache.NewNearCache(cfg.nearSize, cfg.nearTTL); err != nil {
			return nil, fmt.Errorf("gorawrstash: near cache: %w", err)
		}
		recipeOpts = append(recipeOpts, recipes.WithNearCache(s.near))
	}
	s.recipes = recipes.New(s.cache, recipeOpts...)

	s.limiter = ratelimit.NewFixedWindow(s.cache, cfg.rateLimit, cfg.rateWindow,
		ratelimit.WithLogger(cfg.logger.Named("ratelimit")),
		ratelimit.WithMetrics(s.metrics),
	)
	var resolver *policy.Resolver
	if len(cfg.groups) > 0 {
		resolver = policy.NewResolver(cfg.groups...)
	}
	s.policies = ratelimit.NewPolicies(s.limiter, resolver)
	if cfg.globalRPS > 0 {
		s.gate = ratelimit.NewTokenBucket(cfg.globalRPS, cfg.globalBurst)
	}
	return s, nil
}

// Start connects to Redis (or settles on degraded mode), starts the store
// sweeper and, when connected, the connection watcher and the listener for
// near-cache invalidations from other instances. A failed connection
// is not an error. Start may be called once.
func (s *Stash) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("gorawrstash: already started")
	}
	s.started = true

	mode := s.conn.Connect(ctx)
	s.metrics.SetCacheMode(int(mode))
	s.log.Info("stash started", zap.Stringer("mode", mode))

	// The background goroutines outlive ctx, which only bounds connecting.
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.store.Start(bg)
	if mode == conn.Connected {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.conn.Watch(bg)
		}()
		if s.near != nil {
			sub, err := s.recipes.Views.Listen(bg)
			if err != nil {
				s.log.Warn("near cache invalidation listener not started", zap.Error(err))
			}
			s.sub = sub
		}
	}
	return nil
}

// Close stops the background goroutines and releases the Redis client.
// Later cache calls fail with cache.ErrClosed.
func (s *Stash) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = sub.Close()
	s.wg.Wait()
	s.store.Stop()
	if s.near != nil {
		s.near.Close()
	}
	_ = s.cache.Close()
	return s.conn.Close()
}

// Mode returns the current connection mode.
func (s *Stash) Mode() conn.Mode { return s.conn.Mode() }

// Cache returns the uniform store façade.
func (s *Stash) Cache() *cache.Facade { return s.cache }

// Recipes returns the domain cache recipes.
func (s *Stash) Recipes() *recipes.Recipes { return s.recipes }

// Limiter returns the default fixed-window limiter.
func (s *Stash) Limiter() *ratelimit.FixedWindow { return s.limiter }

// Policies returns the per-route limiter selection.
func (s *Stash) Policies() *ratelimit.Policies { return s.policies }

// Logger returns the logger the Stash was built with.
func (s *Stash) Logger() *zap.Logger { return s.log }
