// Package cache provides the uniform store façade: one set of key-value and
// collection operations answered by Redis while it is connected and by the
// in-process expiring store otherwise.
//
// The connection mode is read on every call. A Redis error on a single call
// is logged, counted and answered from memory for that call only; repeated
// errors open a circuit breaker that routes calls to memory until a probe
// succeeds. Neither changes the global mode, which only package conn owns.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/breaker"
	"github.com/Keksclan/goRawrStash/conn"
	"github.com/Keksclan/goRawrStash/metrics"
	"github.com/Keksclan/goRawrStash/retry"
	"github.com/Keksclan/goRawrStash/store"
)

// Connection is the part of conn.Manager the façade depends on.
type Connection interface {
	Mode() conn.Mode
	Client() *redis.Client
}

// Facade is the single entry point for cache reads and writes.
type Facade struct {
	conn    Connection
	mem     memory
	codec   Codec
	log     *zap.Logger
	metrics *metrics.Collectors
	tracer  trace.Tracer
	breaker *breaker.Breaker
	closed  atomic.Bool
}

// New creates a Facade over the given connection and in-process store.
func New(c Connection, s *store.Store, opts ...Option) *Facade {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.codec == nil {
		cfg.codec = JSON{}
	}
	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	log := cfg.logger.Named("cache")
	bcfg := cfg.breaker
	if bcfg.OnStateChange == nil {
		bcfg.OnStateChange = func(from, to breaker.State) {
			log.Info("redis breaker state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}

	return &Facade{
		conn:    c,
		mem:     memory{s: s},
		codec:   cfg.codec,
		log:     log,
		metrics: cfg.metrics,
		tracer:  tp.Tracer("github.com/Keksclan/goRawrStash/cache"),
		breaker: breaker.New(bcfg),
	}
}

// Mode returns the current connection mode.
func (f *Facade) Mode() conn.Mode { return f.conn.Mode() }

// Codec returns the codec used for structured values.
func (f *Facade) Codec() Codec { return f.codec }

// Close makes every later call fail with ErrClosed. It does not close the
// connection or the store, which the caller owns.
func (f *Facade) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *Facade) remote() (backend, bool) {
	if f.conn.Mode() != conn.Connected {
		return nil, false
	}
	rdb := f.conn.Client()
	if rdb == nil {
		return nil, false
	}
	return remote{rdb: rdb}, true
}

// run executes fn against Redis when connected and against memory otherwise
// or when the Redis call fails.
func run[T any](ctx context.Context, f *Facade, op, key string, fn func(context.Context, backend) (T, error)) (T, error) {
	var zero T
	if f.closed.Load() {
		return zero, &OpError{Op: op, Key: key, Err: ErrClosed}
	}

	ctx, span := f.tracer.Start(ctx, "cache."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("cache.op", op), attribute.String("cache.key", key))

	if rb, ok := f.remote(); ok {
		if !f.breaker.Allow() {
			f.metrics.CacheFallback(op, "breaker_open")
			span.AddEvent("breaker open")
		} else {
			v, err := fn(ctx, rb)
			switch {
			case err == nil:
				f.breaker.OnSuccess()
				f.finish(span, op, backendRedis, nil)
				return v, nil
			case logical(err):
				f.breaker.OnSuccess()
				f.finish(span, op, backendRedis, err)
				return zero, &OpError{Op: op, Key: key, Backend: backendRedis, Err: err}
			case retry.IsContextError(err) && ctx.Err() != nil:
				f.finish(span, op, backendRedis, err)
				return zero, &OpError{Op: op, Key: key, Backend: backendRedis, Err: err}
			}
			f.breaker.OnFailure()
			f.metrics.CacheOp(op, backendRedis, "error")
			f.metrics.CacheFallback(op, "error")
			span.RecordError(err)
			f.log.Warn("redis call failed, answering from memory",
				zap.String("op", op),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	v, err := fn(ctx, f.mem)
	f.finish(span, op, backendMemory, err)
	if err != nil {
		return zero, &OpError{Op: op, Key: key, Backend: backendMemory, Err: err}
	}
	return v, nil
}

func (f *Facade) finish(span trace.Span, op, backendName string, err error) {
	span.SetAttributes(attribute.String("cache.backend", backendName))
	result := "ok"
	if err != nil {
		result = "error"
		span.SetStatus(otelcodes.Error, err.Error())
	}
	f.metrics.CacheOp(op, backendName, result)
}

func clampTTL(ttl time.Duration) time.Duration {
	return max(ttl, 0)
}

// Get returns the raw value stored under key.
func (f *Facade) Get(ctx context.Context, key string) ([]byte, bool, error) {
	type hit struct {
		v  []byte
		ok bool
	}
	h, err := run(ctx, f, "get", key, func(ctx context.Context, b backend) (hit, error) {
		v, ok, err := b.get(ctx, key)
		return hit{v, ok}, err
	})
	return h.v, h.ok, err
}

// GetValue decodes the value stored under key into dst using the codec.
func (f *Facade) GetValue(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := f.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := f.codec.Unmarshal(raw, dst); err != nil {
		return false, &OpError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

// Set stores a raw value. A zero TTL means no expiry; any previous TTL is
// cleared.
func (f *Facade) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ttl = clampTTL(ttl)
	_, err := run(ctx, f, "set", key, func(ctx context.Context, b backend) (struct{}, error) {
		return struct{}{}, b.set(ctx, key, val, ttl)
	})
	return err
}

// SetValue encodes v with the codec and stores it.
func (f *Facade) SetValue(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := f.codec.Marshal(v)
	if err != nil {
		return &OpError{Op: "encode", Key: key, Err: err}
	}
	return f.Set(ctx, key, raw, ttl)
}

// Del removes keys of any kind and returns how many existed.
func (f *Facade) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return run(ctx, f, "del", keys[0], func(ctx context.Context, b backend) (int64, error) {
		return b.del(ctx, keys...)
	})
}

// Exists reports whether key holds a value of any kind.
func (f *Facade) Exists(ctx context.Context, key string) (bool, error) {
	return run(ctx, f, "exists", key, func(ctx context.Context, b backend) (bool, error) {
		return b.exists(ctx, key)
	})
}

// Expire sets the TTL of an existing key and reports whether it existed. A
// non-positive TTL deletes the key.
func (f *Facade) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ttl = clampTTL(ttl)
	return run(ctx, f, "expire", key, func(ctx context.Context, b backend) (bool, error) {
		return b.expire(ctx, key, ttl)
	})
}

// Persist removes the TTL of key.
func (f *Facade) Persist(ctx context.Context, key string) (bool, error) {
	return run(ctx, f, "persist", key, func(ctx context.Context, b backend) (bool, error) {
		return b.persist(ctx, key)
	})
}

// TTL returns the remaining lifetime of key. ok is false for a missing key
// and a zero duration with ok means no expiry.
func (f *Facade) TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error) {
	type res struct {
		d  time.Duration
		ok bool
	}
	r, err := run(ctx, f, "ttl", key, func(ctx context.Context, b backend) (res, error) {
		d, ok, err := b.ttl(ctx, key)
		return res{d, ok}, err
	})
	return r.d, r.ok, err
}

// Incr increments the integer under key, creating it at 1. The TTL is kept.
func (f *Facade) Incr(ctx context.Context, key string) (int64, error) {
	return f.IncrBy(ctx, key, 1)
}

// IncrBy adds delta to the integer under key. The TTL is kept.
func (f *Facade) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return run(ctx, f, "incr", key, func(ctx context.Context, b backend) (int64, error) {
		return b.incrBy(ctx, key, delta)
	})
}

// Publish sends message on channel when Redis is connected and does nothing
// otherwise. Delivery is best effort: failures are logged, never returned.
func (f *Facade) Publish(ctx context.Context, channel string, message []byte) error {
	if f.closed.Load() {
		return &OpError{Op: "publish", Key: channel, Err: ErrClosed}
	}
	rb, ok := f.remote()
	if !ok || !f.breaker.Allow() {
		return nil
	}
	if err := rb.publish(ctx, channel, message); err != nil {
		f.breaker.OnFailure()
		f.metrics.CacheOp("publish", backendRedis, "error")
		f.log.Warn("redis publish failed", zap.String("channel", channel), zap.Error(err))
		return nil
	}
	f.breaker.OnSuccess()
	f.metrics.CacheOp("publish", backendRedis, "ok")
	return nil
}

// PublishValue encodes v with the codec and publishes it.
func (f *Facade) PublishValue(ctx context.Context, channel string, v any) error {
	raw, err := f.codec.Marshal(v)
	if err != nil {
		return &OpError{Op: "encode", Key: channel, Err: err}
	}
	return f.Publish(ctx, channel, raw)
}

// Subscription is a live Redis channel subscription. The zero value, handed
// out while degraded, is inert.
type Subscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *Subscription) stop() error {
	s.once.Do(func() { s.err = s.ps.Close() })
	return s.err
}

// Close ends the subscription and waits for the delivery loop to return.
func (s *Subscription) Close() error {
	if s == nil || s.ps == nil {
		return nil
	}
	err := s.stop()
	<-s.done
	return err
}

// Subscribe delivers every message published on channel to handle, one at a
// time, until the subscription or ctx is closed. It returns once Redis has
// confirmed the subscription, so a later Publish from any instance is seen.
// While degraded there is nobody to hear from and an inert Subscription is
// returned.
func (f *Facade) Subscribe(ctx context.Context, channel string, handle func([]byte)) (*Subscription, error) {
	if f.closed.Load() {
		return nil, &OpError{Op: "subscribe", Key: channel, Err: ErrClosed}
	}
	if f.conn.Mode() != conn.Connected || f.conn.Client() == nil {
		return &Subscription{}, nil
	}
	ps := f.conn.Client().Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &OpError{Op: "subscribe", Key: channel, Err: mapRedisError(err)}
	}
	sub := &Subscription{ps: ps, done: make(chan struct{})}
	msgs := ps.Channel()
	go func() {
		defer close(sub.done)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				handle([]byte(msg.Payload))
			case <-ctx.Done():
				_ = sub.stop()
				return
			}
		}
	}()
	return sub, nil
}
