// Package geolookup stands in for the external MaxMind/geolocation plugin.
// It defines the lookup contract and an LRU-cached decorator any real
// MaxMind-backed implementation can wrap; no database parsing is
// implemented here.
package geolookup

import (
	"net/netip"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is the enrichment data a geo/ASN lookup contributes to a record
// (country code, AS number/org, and anything the original fieldClassifier
// derived from them).
type Entry struct {
	CountryCode string
	ASNumber uint32
	ASOrg string
}

// Lookup resolves an IP address to an Entry. A real implementation wraps a
// MaxMind (or similar) database; this package only defines the contract
// and a cache decorator.
type Lookup interface {
	Lookup(addr netip.Addr) (Entry, bool)
}

// Static is a fixed-table Lookup used by tests and as a placeholder before
// a real database is wired in.
type Static map[netip.Addr]Entry

func (s Static) Lookup(addr netip.Addr) (Entry, bool) {
	e, ok := s[addr]
	return e, ok
}

// cacheEntry distinguishes a cached miss from a cached hit so LRUCached
// doesn't need a sentinel Entry value.
type cacheEntry struct {
	entry Entry
	found bool
}

// LRUCached decorates an underlying Lookup (typically backed by slow
// database I/O) with a fixed-size LRU cache of recent results, including
// negative (not-found) results.
type LRUCached struct {
	underlying Lookup
	cache *lru.Cache[netip.Addr, cacheEntry]
}

// NewLRUCached wraps underlying with an LRU cache holding up to size
// entries.
func NewLRUCached(underlying Lookup, size int) (*LRUCached, error) {
	cache, err := lru.New[netip.Addr, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCached{underlying: underlying, cache: cache}, nil
}

func (c *LRUCached) Lookup(addr netip.Addr) (Entry, bool) {
	if cached, ok := c.cache.Get(addr); ok {
		return cached.entry, cached.found
	}
	entry, found := c.underlying.Lookup(addr)
	c.cache.Add(addr, cacheEntry{entry: entry, found: found})
	return entry, found
}

// Stats exposes the underlying LRU's current size, useful as a telemetry
// leaf.
func (c *LRUCached) Stats() (len int) {
	return c.cache.Len()
}
