package ratelimit

import (
	"sync"

	"github.com/Keksclan/goRawrStash/policy"
)

// Policies picks the limiter for a request target (a gRPC full method or an
// HTTP path). Targets matching a group with a RateLimit rule get a limiter
// of their own, created lazily and keyed by group name; everything else uses
// the default limiter.
type Policies struct {
	def      *FixedWindow
	resolver *policy.Resolver

	mu     sync.Mutex
	groups map[string]*FixedWindow
}

// NewPolicies creates a Policies around def. r may be nil.
func NewPolicies(def *FixedWindow, r *policy.Resolver) *Policies {
	return &Policies{def: def, resolver: r, groups: make(map[string]*FixedWindow)}
}

// For returns the limiter for target. A nil limiter means the target is
// exempt from rate limiting.
func (p *Policies) For(target string) *FixedWindow {
	_, w := p.Lookup(target)
	return w
}

// Lookup is For that also reports the name of the matched group, or "" when
// no group matched.
func (p *Policies) Lookup(target string) (group string, w *FixedWindow) {
	if p.resolver == nil {
		return "", p.def
	}
	name, pol, ok := p.resolver.Resolve(target)
	if !ok || pol == nil {
		return "", p.def
	}
	if pol.Exempt {
		return name, nil
	}
	if pol.RateLimit == nil {
		return name, p.def
	}
	return name, p.group(name, pol.RateLimit)
}

func (p *Policies) group(name string, rule *policy.RateLimitRule) *FixedWindow {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.groups[name]; ok {
		return w
	}
	// Group counters live under their own prefix so a group and the default
	// limiter never share a count.
	w := &FixedWindow{
		c:       p.def.c,
		limit:   rule.Limit,
		window:  rule.Window,
		prefix:  p.def.prefix + name + ":",
		log:     p.def.log,
		metrics: p.def.metrics,
		nowFunc: p.def.nowFunc,
	}
	p.groups[name] = w
	return w
}
