package authhttp

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPFunc determines the client IP used for rate limiting and events.
//
// Returning an empty string means "unknown" and causes rate limiting to fail open.
type ClientIPFunc func(r *http.Request) string

// DefaultClientIP uses RemoteAddr when it is a public address. Private and
// loopback peers yield "" so a reverse proxy is never limited as one client.
func DefaultClientIP() ClientIPFunc {
	return func(r *http.Request) string {
		a, ok := peerAddr(r)
		if !ok || !isPublicAddr(a) {
			return ""
		}
		return a.String()
	}
}

// ClientIPFromForwardedHeaders trusts CF-Connecting-IP and X-Forwarded-For
// only when the immediate peer is in trustedProxies. The client is the
// right-most X-Forwarded-For hop that is not itself a trusted proxy; entries
// left of it were supplied by the client.
func ClientIPFromForwardedHeaders(trustedProxies []netip.Prefix) ClientIPFunc {
	return func(r *http.Request) string {
		peer, ok := peerAddr(r)
		if !ok {
			return ""
		}
		if containsAddr(trustedProxies, peer) {
			if a, ok := headerAddr(r.Header.Get("CF-Connecting-IP")); ok {
				return a.String()
			}
			if a, ok := forwardedFor(r.Header.Values("X-Forwarded-For"), trustedProxies); ok {
				return a.String()
			}
		}
		if isPublicAddr(peer) {
			return peer.String()
		}
		return ""
	}
}

// ParseTrustedProxies parses CIDRs (or bare IPs) for ClientIPFromForwardedHeaders.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			a, err := netip.ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func containsAddr(prefixes []netip.Prefix, a netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func forwardedFor(values []string, trustedProxies []netip.Prefix) (netip.Addr, bool) {
	var hops []string
	for _, v := range values {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return netip.Addr{}, false
		}
		a = a.Unmap()
		if containsAddr(trustedProxies, a) {
			continue
		}
		return a, isPublicAddr(a)
	}
	return netip.Addr{}, false
}

func headerAddr(v string) (netip.Addr, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return netip.Addr{}, false
	}
	a, err := netip.ParseAddr(v)
	if err != nil || !isPublicAddr(a) {
		return netip.Addr{}, false
	}
	return a, true
}

func remoteIP(r *http.Request) string {
	if r == nil || r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func peerAddr(r *http.Request) (netip.Addr, bool) {
	a, err := netip.ParseAddr(remoteIP(r))
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func isPublicAddr(a netip.Addr) bool {
	if !a.IsValid() {
		return false
	}
	if a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalMulticast() || a.IsLinkLocalUnicast() {
		return false
	}
	return !a.IsMulticast() && !a.IsUnspecified()
}
