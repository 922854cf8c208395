package ssrf

import (
	"net/netip"
	"strings"
)

// privatePrefixes lists ranges that never belong to a public platform host.
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),      // current network
	netip.MustParsePrefix("10.0.0.0/8"),     // private
	netip.MustParsePrefix("100.64.0.0/10"),  // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),    // loopback
	netip.MustParsePrefix("169.254.0.0/16"), // link-local, cloud metadata
	netip.MustParsePrefix("172.16.0.0/12"),  // private
	netip.MustParsePrefix("192.168.0.0/16"), // private
	netip.MustParsePrefix("::/128"),         // unspecified
	netip.MustParsePrefix("::1/128"),        // loopback
	netip.MustParsePrefix("fc00::/7"),       // unique local
	netip.MustParsePrefix("fe80::/10"),      // link-local
	netip.MustParsePrefix("fec0::/10"),      // deprecated site-local
}

// IsPrivateIP reports whether addr falls in a private, loopback, link-local
// or otherwise internal range. IPv4-mapped IPv6 addresses are checked as IPv4.
func IsPrivateIP(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range privatePrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// IsPrivateIPAddress parses address (brackets and zones allowed) and reports
// whether it is private. Strings that are not IP literals return false.
func IsPrivateIPAddress(address string) bool {
	normalized := normalizeHostname(address)
	if normalized == "" {
		return false
	}
	if i := strings.IndexByte(normalized, '%'); i >= 0 {
		normalized = normalized[:i]
	}
	addr, err := netip.ParseAddr(normalized)
	if err != nil {
		return false
	}
	return IsPrivateIP(addr)
}
