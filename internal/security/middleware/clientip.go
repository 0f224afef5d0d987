package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPResolver determines the client address of a request. X-Forwarded-For is
// only honoured when the socket peer is a configured trusted proxy; a nil
// resolver always uses the socket address.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver parses trusted proxies given as addresses or CIDR ranges.
func NewIPResolver(trustedProxies []string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, raw := range trustedProxies {
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// ClientIP returns the socket address unless it belongs to a trusted proxy,
// in which case the nearest untrusted X-Forwarded-For hop is used.
func (ir *IPResolver) ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ir == nil || !ir.isTrusted(host) {
		return host
	}

	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return host
	}
	hops := strings.Split(fwd, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !ir.isTrusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func (ir *IPResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range ir.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
