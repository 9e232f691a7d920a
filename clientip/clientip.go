// Package clientip determines the address a request really came from, for
// use as the rate-limit identifier of anonymous callers.
//
// Forwarding headers are honoured only when the immediate peer is a trusted
// proxy; otherwise any client could pick its own identifier.
package clientip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// DefaultHeaderPriority is the ordered list of headers inspected when a
// Resolver has no HeaderPriority of its own.
var DefaultHeaderPriority = []string{"x-real-ip", "x-forwarded-for"}

// Resolver extracts client addresses from gRPC and HTTP requests.
type Resolver struct {
	trustedProxies []netip.Prefix
	headerPriority []string
}

// New creates a Resolver. trustedProxies holds CIDRs or bare addresses.
func New(trustedProxies []string, headerPriority ...string) (*Resolver, error) {
	proxies, err := ParsePrefixes(trustedProxies)
	if err != nil {
		return nil, fmt.Errorf("clientip: invalid trusted proxy: %w", err)
	}
	if len(headerPriority) == 0 {
		headerPriority = DefaultHeaderPriority
	}
	return &Resolver{trustedProxies: proxies, headerPriority: headerPriority}, nil
}

// FromGRPC resolves the client of the RPC carried by ctx.
func (r *Resolver) FromGRPC(ctx context.Context) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	peerAddr, ok := parseHostPort(p.Addr.String())
	if !ok {
		return netip.Addr{}, false
	}
	if r.trusted(peerAddr) {
		md, _ := metadata.FromIncomingContext(ctx)
		if addr, found := r.fromHeaders(md.Get); found {
			return addr, true
		}
	}
	return peerAddr, true
}

// FromHTTP resolves the client of req.
func (r *Resolver) FromHTTP(req *http.Request) (netip.Addr, bool) {
	peerAddr, ok := parseHostPort(req.RemoteAddr)
	if !ok {
		return netip.Addr{}, false
	}
	if r.trusted(peerAddr) {
		if addr, found := r.fromHeaders(req.Header.Values); found {
			return addr, true
		}
	}
	return peerAddr, true
}

func (r *Resolver) trusted(addr netip.Addr) bool {
	for _, p := range r.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// fromHeaders walks the header keys in priority order and returns the first
// valid address. For multi-value headers such as X-Forwarded-For the
// left-most entry is the client.
func (r *Resolver) fromHeaders(get func(string) []string) (netip.Addr, bool) {
	for _, key := range r.headerPriority {
		for _, v := range get(key) {
			for part := range strings.SplitSeq(v, ",") {
				trimmed := strings.TrimSpace(part)
				if trimmed == "" {
					continue
				}
				if ip, err := netip.ParseAddr(trimmed); err == nil {
					return ip.Unmap(), true
				}
			}
		}
	}
	return netip.Addr{}, false
}

// parseHostPort parses "host:port" or a bare host into an address.
func parseHostPort(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// ParsePrefixes parses CIDR strings. A bare address is a single-host prefix.
func ParsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("%q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p)
	}
	return out, nil
}
