// Package anonymize reduces client addresses to a non-identifying form
// before they are stored or logged.
package anonymize

import (
	"net/netip"
	"strings"
)

// IP anonymizes a bare IP address (no port).
//
//   - IPv4: the last octet is replaced with 0 (203.0.113.77 -> 203.0.113.0)
//   - IPv6: the last colon group is replaced with 0000, the rest is kept as written
//   - IPv4-mapped IPv6 keeps the mapping prefix and zeroes the embedded IPv4 octet
//
// Anything that does not parse as an IP address yields "". The raw input is
// never returned.
func IP(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Zones carry interface names, not host identity, and are dropped.
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return ""
	}

	switch {
	case addr.Is4():
		return zeroLastOctet(s)
	case addr.Is4In6() && strings.Contains(s, "."):
		i := strings.LastIndexByte(s, ':')
		return s[:i+1] + zeroLastOctet(s[i+1:])
	default:
		i := strings.LastIndexByte(s, ':')
		return s[:i+1] + "0000"
	}
}

// zeroLastOctet expects a validated dotted-quad.
func zeroLastOctet(s string) string {
	i := strings.LastIndexByte(s, '.')
	return s[:i+1] + "0"
}
