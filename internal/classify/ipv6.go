package classify

import (
	"fmt"
	"net"
	"strings"
)

// FormatAddr renders an address for display. IPv6 addresses are compressed to
// their shortest legal textual form; IPv4 stays dotted quad. Rendering is
// done on demand and never cached on a record.
func FormatAddr(ip net.IP) string {
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return CompressIPv6(ip)
}

// CompressIPv6 produces the canonical compressed form of a 16-byte address:
// the longest run of zero groups collapses to "::", ties broken by the
// leftmost run.
func CompressIPv6(ip net.IP) string {
	ip = ip.To16()
	if ip == nil {
		return ""
	}

	var groups [8]uint16
	for i := 0; i < 8; i++ {
		groups[i] = uint16(ip[2*i])<<8 | uint16(ip[2*i+1])
	}

	// Find the leftmost longest run of zero groups. Runs of length one are
	// not worth compressing.
	bestStart, bestLen := -1, 1
	for i := 0; i < 8; {
		if groups[i] != 0 {
			i++
			continue
		}
		j := i
		for j < 8 && groups[j] == 0 {
			j++
		}
		if j-i > bestLen {
			bestStart, bestLen = i, j-i
		}
		i = j
	}

	var b strings.Builder
	for i := 0; i < 8; i++ {
		if i == bestStart {
			b.WriteString("::")
			i += bestLen - 1
			continue
		}
		if i > 0 && !(bestStart >= 0 && i == bestStart+bestLen) {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%x", groups[i])
	}
	return b.String()
}
