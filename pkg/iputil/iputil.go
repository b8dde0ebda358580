package iputil

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIPv4 parses a dotted-quad IPv4 address into its uint32 form.
// Anything that is not exactly four in-range octets is rejected.
func ParseIPv4(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}

	var n uint32
	for _, part := range parts {
		octet, err := strconv.Atoi(part)
		if err != nil || octet < 0 || octet > 255 {
			return 0, false
		}
		n = n<<8 | uint32(octet)
	}
	return n, true
}

// ParseCIDR parses IPv4 CIDR notation into an inclusive [start, end]
// address range. The address portion is masked by the prefix length, so
// "10.0.0.7/24" yields the same range as "10.0.0.0/24". A bare address
// without a slash is treated as a /32.
func ParseCIDR(s string) (start, end uint32, ok bool) {
	s = strings.TrimSpace(s)

	addrPart := s
	bits := 32
	if idx := strings.IndexByte(s, '/'); idx != -1 {
		addrPart = s[:idx]
		parsed, err := strconv.Atoi(s[idx+1:])
		if err != nil || parsed < 0 || parsed > 32 {
			return 0, 0, false
		}
		bits = parsed
	}

	addr, ok := ParseIPv4(addrPart)
	if !ok {
		return 0, 0, false
	}

	size := uint64(1) << (32 - uint(bits))
	start = addr & MaskFor(bits)
	end = start + uint32(size-1)
	return start, end, true
}

// MaskFor returns the network mask for a prefix length.
func MaskFor(bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	if bits >= 32 {
		return ^uint32(0)
	}
	return ^uint32(0) << (32 - uint(bits))
}

// Uint32ToIP converts a uint32 back to dotted-quad notation.
func Uint32ToIP(n uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}
