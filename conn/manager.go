// Package conn owns the Redis client and the global connection mode.
//
// A Manager starts Uninitialized, moves to Connecting on the first Connect
// call and settles in either Connected or Degraded. Degraded is terminal for
// the life of the process: there is no automatic reconnect. Connection
// failures are logged once and never returned as errors; callers ask Mode
// and route to the in-process store themselves.
package conn

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/retry"
)

// Mode is the global connection mode.
type Mode int32

const (
	Uninitialized Mode = iota
	Connecting
	Connected
	Degraded
)

func (m Mode) String() string {
	switch m {
	case Uninitialized:
		return "uninitialized"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Config holds the connection parameters.
type Config struct {
	// Addr is either host:port or a redis:// / rediss:// URL. Empty means
	// no Redis is configured and the manager goes straight to Degraded.
	Addr string

	// Password and DB apply to the host:port form only; URLs carry their own.
	Password string
	DB       int

	// ConnectTimeout bounds every ping. Zero selects 2 seconds.
	ConnectTimeout time.Duration

	// Attempts is the number of initial pings, at most 2 (one retry). Zero
	// selects 2.
	Attempts int

	// RetryDelay is the pause before the retry. Zero selects 200ms.
	RetryDelay time.Duration

	// WatchInterval is the ping period used by Watch. Zero selects 5 seconds.
	WatchInterval time.Duration

	// WatchFailures is the number of consecutive failed watch pings after
	// which the connection is declared lost. Zero selects 3.
	WatchFailures int
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 2 * time.Second
	}
	if c.Attempts <= 0 || c.Attempts > 2 {
		c.Attempts = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = 5 * time.Second
	}
	if c.WatchFailures <= 0 {
		c.WatchFailures = 3
	}
}

// Manager holds the Redis client and the connection mode. All methods are
// safe for concurrent use.
type Manager struct {
	cfg Config
	log *zap.Logger

	mode   atomic.Int32
	client atomic.Pointer[redis.Client]

	mu        sync.Mutex
	listeners []func(from, to Mode)
}

// NewManager creates a Manager in the Uninitialized mode. A nil logger
// disables logging.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, log: logger.Named("conn")}
}

// Connect attempts to reach Redis and returns the resulting mode. Only the
// first call dials; later calls return the current mode.
func (m *Manager) Connect(ctx context.Context) Mode {
	if !m.mode.CompareAndSwap(int32(Uninitialized), int32(Connecting)) {
		return m.Mode()
	}
	m.notify(Uninitialized, Connecting)

	if m.cfg.Addr == "" {
		m.log.Info("redis not configured, using in-process store")
		m.setMode(Degraded)
		return Degraded
	}

	opts, err := m.options()
	if err != nil {
		m.log.Warn("invalid redis address, using in-process store", zap.Error(err))
		m.setMode(Degraded)
		return Degraded
	}

	rdb := redis.NewClient(opts)
	_, err = retry.Do(ctx, retry.Config{
		MaxAttempts: m.cfg.Attempts,
		BaseDelay:   m.cfg.RetryDelay,
		Retryable:   func(error) bool { return ctx.Err() == nil },
		OnRetry: func(attempt int, err error) {
			m.log.Debug("redis ping failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		},
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.ping(ctx, rdb)
	})
	if err != nil {
		_ = rdb.Close()
		m.log.Warn("redis unreachable, using in-process store",
			zap.String("addr", opts.Addr),
			zap.Int("attempts", m.cfg.Attempts),
			zap.Error(err),
		)
		m.setMode(Degraded)
		return Degraded
	}

	m.client.Store(rdb)
	m.log.Info("redis connected", zap.String("addr", opts.Addr))
	m.setMode(Connected)
	return Connected
}

func (m *Manager) options() (*redis.Options, error) {
	if strings.Contains(m.cfg.Addr, "://") {
		opts, err := redis.ParseURL(m.cfg.Addr)
		if err != nil {
			return nil, err
		}
		opts.DialTimeout = m.cfg.ConnectTimeout
		opts.MaxRetries = -1
		return opts, nil
	}
	return &redis.Options{
		Addr:        m.cfg.Addr,
		Password:    m.cfg.Password,
		DB:          m.cfg.DB,
		DialTimeout: m.cfg.ConnectTimeout,
		// A failed call falls back to memory instead of being retried here.
		MaxRetries: -1,
	}, nil
}

func (m *Manager) ping(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// Mode returns the current connection mode.
func (m *Manager) Mode() Mode {
	return Mode(m.mode.Load())
}

// Connected reports whether the mode is Connected.
func (m *Manager) Connected() bool {
	return m.Mode() == Connected
}

// Client returns the Redis client, or nil unless the mode is Connected.
func (m *Manager) Client() *redis.Client {
	if !m.Connected() {
		return nil
	}
	return m.client.Load()
}

// MarkLost moves a Connected manager to Degraded. It has no effect in any
// other mode and there is no way back.
func (m *Manager) MarkLost(err error) {
	if !m.mode.CompareAndSwap(int32(Connected), int32(Degraded)) {
		return
	}
	m.log.Warn("redis connection lost, switching to in-process store", zap.Error(err))
	m.notify(Connected, Degraded)
}

// Watch pings Redis every WatchInterval while the manager is Connected and
// calls MarkLost after WatchFailures consecutive failures. It returns when
// ctx is done or the connection is lost.
func (m *Manager) Watch(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.WatchInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rdb := m.Client()
		if rdb == nil {
			return
		}
		err := m.ping(ctx, rdb)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}
		failures++
		m.log.Debug("redis watch ping failed", zap.Int("failures", failures), zap.Error(err))
		if failures >= m.cfg.WatchFailures {
			m.MarkLost(err)
			return
		}
	}
}

// OnModeChange registers fn to be called after every mode transition.
func (m *Manager) OnModeChange(fn func(from, to Mode)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Close releases the Redis client. A Connected manager becomes Degraded.
func (m *Manager) Close() error {
	if m.mode.CompareAndSwap(int32(Connected), int32(Degraded)) {
		m.notify(Connected, Degraded)
	}
	if rdb := m.client.Swap(nil); rdb != nil {
		return rdb.Close()
	}
	return nil
}

func (m *Manager) setMode(to Mode) {
	from := Mode(m.mode.Swap(int32(to)))
	if from != to {
		m.notify(from, to)
	}
}

func (m *Manager) notify(from, to Mode) {
	m.mu.Lock()
	fns := make([]func(from, to Mode), len(m.listeners))
	copy(fns, m.listeners)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(from, to)
	}
}
