package policy

import (
	"fmt"
	"strings"
)

// entry is one rule flattened out of its group.
type entry struct {
	rule
	group  string
	policy *Policy
}

// Resolver maps a gRPC full method name or an HTTP path to the best-matching
// group and its policy. It is immutable once built and safe for concurrent
// use.
type Resolver struct {
	entries []entry
}

// NewResolver creates a Resolver from the supplied group builders. It panics
// when two groups share a name, because the name keys the group's counters.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	seen := make(map[string]bool, len(groups))
	res := &Resolver{}
	for _, g := range groups {
		if seen[g.name] {
			panic(fmt.Sprintf("policy: duplicate group %q", g.name))
		}
		seen[g.name] = true
		for _, r := range g.rules {
			res.entries = append(res.entries, entry{rule: r, group: g.name, policy: g.policy})
		}
	}
	return res
}

// Resolve finds the best-matching group for target.
//
// Priority rules:
//   - Exact matches beat prefix matches, which beat regex matches.
//   - Among matches of the same kind the longer match wins.
//   - On a full tie the rule registered first wins.
//
// If no group matches, ok is false.
func (res *Resolver) Resolve(target string) (groupName string, pol *Policy, ok bool) {
	var best *entry
	bestLen := -1
	for i := range res.entries {
		e := &res.entries[i]
		n, matched := e.match(target)
		if !matched {
			continue
		}
		if best == nil || e.kind < best.kind || (e.kind == best.kind && n > bestLen) {
			best, bestLen = e, n
		}
	}
	if best == nil {
		return "", nil, false
	}
	return best.group, best.policy, true
}

// match returns the matched length, used to rank rules of the same kind.
func (r *rule) match(target string) (length int, ok bool) {
	switch r.kind {
	case kindExact:
		return len(r.pattern), target == r.pattern
	case kindPrefix:
		return len(r.pattern), strings.HasPrefix(target, r.pattern)
	case kindRegex:
		if loc := r.re.FindStringIndex(target); loc != nil {
			return loc[1] - loc[0], true
		}
	}
	return 0, false
}
