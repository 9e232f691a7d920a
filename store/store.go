// Package store provides the in-process expiring store that backs the cache
// when Redis is unreachable.
//
// Every entry carries a Kind tag (scalar, hash, list or set) fixed at
// creation. Using a key with a different kind returns [ErrWrongType] instead
// of reinterpreting the value. Expired entries are invisible to reads as soon
// as the clock passes their deadline; the optional sweeper only reclaims
// memory.
package store

import (
	"bytes"
	"errors"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrWrongType is returned when an operation targets a key holding a
	// different kind of value.
	ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")

	// ErrNotInteger is returned by Incr when the scalar cannot be parsed as a
	// base-10 int64.
	ErrNotInteger = errors.New("store: value is not an integer")
)

// Kind identifies the shape of the value stored under a key.
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindHash
	KindList
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindHash:
		return "hash"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

// entry is a tagged value. Only the field matching kind is populated.
type entry struct {
	kind      Kind
	scalar    []byte
	hash      map[string]string
	list      []string
	set       map[string]struct{}
	expiresAt time.Time // zero => never expires
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// empty reports whether a collection entry has no elements left. Empty
// collections are removed, matching Redis.
func (e *entry) empty() bool {
	switch e.kind {
	case KindHash:
		return len(e.hash) == 0
	case KindList:
		return len(e.list) == 0
	case KindSet:
		return len(e.set) == 0
	}
	return false
}

// Config holds the Store parameters.
type Config struct {
	// SweepInterval is how often the background sweeper removes expired
	// entries. Zero selects one second.
	SweepInterval time.Duration

	// OnEvict, if set, is called with the number of entries removed by each
	// sweep pass that removed at least one entry.
	OnEvict func(n int)

	// Now is the clock that TTLs are measured against. Nil selects time.Now.
	Now func() time.Time
}

// Store is a concurrency-safe map of tagged entries with optional TTLs.
type Store struct {
	mu    sync.Mutex
	items map[string]*entry

	cfg     Config
	nowFunc func() time.Time

	sweepMu sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an empty Store. The sweeper is not started; call Start.
func New(cfg Config) *Store {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		items:   make(map[string]*entry),
		cfg:     cfg,
		nowFunc: cfg.Now,
	}
}

func (s *Store) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

// deadline converts a relative TTL to an absolute expiry. Non-positive TTLs
// mean no expiry.
func (s *Store) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// lookup returns the live entry for key, deleting it first if it has expired.
// Must be called with s.mu held.
func (s *Store) lookup(key string) (*entry, bool) {
	e, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.items, key)
		return nil, false
	}
	return e, true
}

// lookupKind returns the live entry for key and verifies its kind. A missing
// key returns (nil, nil). Must be called with s.mu held.
func (s *Store) lookupKind(key string, kind Kind) (*entry, error) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	if e.kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

// Set stores a scalar value, replacing whatever was stored under key
// (including collections) and resetting its TTL.
func (s *Store) Set(key string, value []byte, ttl time.Duration) {
	e := &entry{kind: KindScalar, scalar: bytes.Clone(value), expiresAt: s.deadline(ttl)}
	s.mu.Lock()
	s.items[key] = e
	s.mu.Unlock()
}

// Get returns the scalar stored under key. The boolean reports a hit.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindScalar)
	if err != nil || e == nil {
		return nil, false, err
	}
	return bytes.Clone(e.scalar), true, nil
}

// Delete removes the given keys regardless of kind and returns how many
// live entries were removed.
func (s *Store) Delete(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := s.lookup(k); ok {
			delete(s.items, k)
			n++
		}
	}
	return n
}

// Exists reports whether a live entry of any kind is stored under key.
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key)
	return ok
}

// KindOf returns the kind of the live entry stored under key.
func (s *Store) KindOf(key string) (Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Expire attaches a TTL to an existing key. It returns false when the key
// does not exist. A non-positive TTL deletes the key, as Redis does.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return false
	}
	if ttl <= 0 {
		delete(s.items, key)
		return true
	}
	e.expiresAt = s.deadline(ttl)
	return true
}

// Persist removes the TTL of key. It returns false when the key does not
// exist or had no TTL.
func (s *Store) Persist(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok || e.expiresAt.IsZero() {
		return false
	}
	e.expiresAt = time.Time{}
	return true
}

// TTL returns the remaining lifetime of key. ok is false for a missing key;
// a zero duration with ok means the key never expires.
func (s *Store) TTL(key string) (ttl time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return 0, false
	}
	if e.expiresAt.IsZero() {
		return 0, true
	}
	return e.expiresAt.Sub(s.now()), true
}

// Incr increments the integer scalar under key by one. See IncrBy.
func (s *Store) Incr(key string) (int64, error) {
	return s.IncrBy(key, 1)
}

// IncrBy adds delta to the integer scalar under key. An absent key starts at
// zero, so the first Incr returns 1. The TTL of an existing key is kept.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookupKind(key, KindScalar)
	if err != nil {
		return 0, err
	}
	if e == nil {
		s.items[key] = &entry{kind: KindScalar, scalar: strconv.AppendInt(nil, delta, 10)}
		return delta, nil
	}
	n, err := strconv.ParseInt(string(e.scalar), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	n += delta
	e.scalar = strconv.AppendInt(e.scalar[:0], n, 10)
	return n, nil
}

// Len returns the number of entries currently held, including expired
// entries the sweeper has not reclaimed yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Flush removes every entry.
func (s *Store) Flush() {
	s.mu.Lock()
	s.items = make(map[string]*entry)
	s.mu.Unlock()
}
