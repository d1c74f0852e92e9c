package iptrie

import "net/netip"

// KeyV4 returns the 4-byte big-endian key for addr, suitable for a
// NewV4 trie. addr must be an IPv4 (or IPv4-in-IPv6) address.
func KeyV4(addr netip.Addr) []byte {
	a := addr.As4()
	return a[:]
}

// KeyV6 returns the 16-byte big-endian key for addr, embedding an IPv4
// address per RFC 4291 (::ffff:a.b.c.d) as the sink's ClickHouse column
// mapping also does.
func KeyV6(addr netip.Addr) []byte {
	a := addr.As16()
	return a[:]
}
