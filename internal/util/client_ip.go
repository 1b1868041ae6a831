package util

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies decides when forwarded headers may be believed. A nil
// value trusts nothing and every request resolves to its direct peer.
type TrustedProxies struct {
	ranges []*net.IPNet
}

// NewTrustedProxies builds the allowlist from CIDR ranges or single
// addresses. An empty list yields a nil allowlist.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	var ranges []*net.IPNet
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		ipNet, err := parseProxyEntry(entry)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, ipNet)
	}
	if len(ranges) == 0 {
		return nil, nil
	}
	return &TrustedProxies{ranges: ranges}, nil
}

func parseProxyEntry(entry string) (*net.IPNet, error) {
	if strings.Contains(entry, "/") {
		_, ipNet, err := net.ParseCIDR(entry)
		return ipNet, err
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid trusted proxy entry %q", entry)
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

func (t *TrustedProxies) trusts(ip net.IP) bool {
	if t == nil || ip == nil {
		return false
	}
	for _, r := range t.ranges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller address for audit logs and rate-limit
// keys. X-Forwarded-For is walked right to left and the first hop
// outside the trusted ranges wins; X-Real-IP is a fallback when the
// forwarded chain is unusable. Untrusted peers always resolve to the
// socket address so a client cannot spoof its own identity.
func (t *TrustedProxies) ClientIP(r *http.Request) string {
	peer := ipFromHostPort(r.RemoteAddr)
	if peer == nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !t.trusts(peer) {
		return peer.String()
	}

	hops := forwardedChain(r.Header.Get("X-Forwarded-For"))
	if len(hops) > 0 {
		hops = append(hops, peer)
		for i := len(hops) - 1; i >= 0; i-- {
			if !t.trusts(hops[i]) {
				return hops[i].String()
			}
		}
		// Every hop is a proxy of ours; the leftmost is the closest
		// thing to a client the chain has.
		return hops[0].String()
	}

	if real := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); real != nil {
		return real.String()
	}
	return peer.String()
}

func forwardedChain(header string) []net.IP {
	if header == "" {
		return nil
	}
	var hops []net.IP
	for _, part := range strings.Split(header, ",") {
		if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
			hops = append(hops, ip)
		}
	}
	return hops
}

func ipFromHostPort(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
