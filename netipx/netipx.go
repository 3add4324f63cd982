// SPDX-License-Identifier: GPL-3.0-or-later

// Package netipx contains [net/netip] extensions.
package netipx

import (
	"net"
	"net/netip"
	"strings"
)

// AddrToAddrPort converts a [net.Addr] to a [netip.AddrPort].
//
// If the input is nil or neither a [*net.TCPAddr] nor [*net.UDPAddr],
// returns an unspecified IPv6 address with port 0.
func AddrToAddrPort(addr net.Addr) netip.AddrPort {
	switch v := addr.(type) {
	case *net.TCPAddr:
		return v.AddrPort()
	case *net.UDPAddr:
		return v.AddrPort()
	default:
		return netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
	}
}

// ParseLiteral parses a host that may be an IP address literal,
// optionally enclosed in square brackets as found in URLs. The
// returned address is unmapped, so "::ffff:1.2.3.4" becomes "1.2.3.4".
func ParseLiteral(host string) (netip.Addr, bool) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// IsLiteral returns whether host is an IP address literal.
func IsLiteral(host string) bool {
	_, ok := ParseLiteral(host)
	return ok
}

// SameAddr returns whether two strings represent the same IP address,
// tolerating different textual encodings of the same IPv6 address.
// Non-literal strings are never equal to anything.
func SameAddr(a, b string) bool {
	aa, aok := ParseLiteral(a)
	bb, bok := ParseLiteral(b)
	return aok && bok && aa == bb
}

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsPublic returns whether addr is a globally routable unicast address,
// that is, neither loopback, private, link-local, shared, multicast
// nor unspecified.
func IsPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	default:
		return addr.IsGlobalUnicast()
	}
}
