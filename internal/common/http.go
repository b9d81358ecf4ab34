package common

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the peer address of the request. Forwarding headers are
// not read here: when the service runs behind a trusted proxy, chi's RealIP
// middleware has already rewritten RemoteAddr. IPv6 peers are reduced to
// their /64 since a single host usually owns the whole prefix.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	raw := strings.TrimSpace(r.RemoteAddr)
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		ap, perr := netip.ParseAddrPort(raw)
		if perr != nil {
			return raw
		}
		addr = ap.Addr()
	}
	addr = addr.Unmap()
	if addr.Is6() {
		if prefix, err := addr.Prefix(64); err == nil {
			return prefix.String()
		}
	}
	return addr.String()
}
