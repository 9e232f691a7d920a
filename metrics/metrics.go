// Package metrics holds the Prometheus collectors shared by the cache façade,
// the expiring store and the rate limiter.
//
// All methods are safe to call on a nil *Collectors, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stash"

// Collectors groups every metric the module exports.
type Collectors struct {
	reg prometheus.Registerer

	cacheOps       *prometheus.CounterVec
	cacheFallbacks *prometheus.CounterVec
	cacheMode      prometheus.Gauge
	storeEvictions prometheus.Counter
	rateDecisions  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		reg: reg,
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "ops_total",
			Help:      "Cache operations by operation, answering backend and result.",
		}, []string{"op", "backend", "result"}),
		cacheFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fallbacks_total",
			Help:      "Calls answered by the in-process store while Redis was expected.",
		}, []string{"op", "reason"}),
		cacheMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "mode",
			Help:      "Connection mode: 0 uninitialized, 1 connecting, 2 connected, 3 degraded.",
		}),
		storeEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Expired entries reclaimed by the in-process store sweeper.",
		}),
		rateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions.",
		}, []string{"decision"}),
	}
	if reg != nil {
		reg.MustRegister(c.cacheOps, c.cacheFallbacks, c.cacheMode, c.storeEvictions, c.rateDecisions)
	}
	return c
}

// CacheOp counts one façade operation.
func (c *Collectors) CacheOp(op, backend, result string) {
	if c == nil {
		return
	}
	c.cacheOps.WithLabelValues(op, backend, result).Inc()
}

// CacheFallback counts one call answered by memory instead of Redis.
func (c *Collectors) CacheFallback(op, reason string) {
	if c == nil {
		return
	}
	c.cacheFallbacks.WithLabelValues(op, reason).Inc()
}

// SetCacheMode records the numeric connection mode.
func (c *Collectors) SetCacheMode(mode int) {
	if c == nil {
		return
	}
	c.cacheMode.Set(float64(mode))
}

// StoreEvicted adds n sweeper evictions.
func (c *Collectors) StoreEvicted(n int) {
	if c == nil {
		return
	}
	c.storeEvictions.Add(float64(n))
}

// TrackStoreEntries exports the in-process store size, sampled at scrape
// time through fn.
func (c *Collectors) TrackStoreEntries(fn func() int) {
	if c == nil || c.reg == nil {
		return
	}
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "entries",
		Help:      "Entries held by the in-process store, including expired ones not yet swept.",
	}, func() float64 { return float64(fn()) }))
}

// RateDecision counts one rate limiter decision ("allowed", "denied" or
// "error").
func (c *Collectors) RateDecision(decision string) {
	if c == nil {
		return
	}
	c.rateDecisions.WithLabelValues(decision).Inc()
}
