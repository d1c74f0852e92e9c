package geolookup

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLookup(t *testing.T) {
	addr := netip.MustParseAddr("198.51.100.1")
	s := Static{addr: {CountryCode: "US", ASNumber: 64500}}

	e, ok := s.Lookup(addr)
	require.True(t, ok)
	assert.Equal(t, "US", e.CountryCode)

	_, ok = s.Lookup(netip.MustParseAddr("203.0.113.1"))
	assert.False(t, ok)
}

type countingLookup struct {
	calls int
	table Static
}

func (c *countingLookup) Lookup(addr netip.Addr) (Entry, bool) {
	c.calls++
	return c.table.Lookup(addr)
}

func TestLRUCachedAvoidsRepeatedUnderlyingCalls(t *testing.T) {
	addr := netip.MustParseAddr("198.51.100.1")
	underlying := &countingLookup{table: Static{addr: {CountryCode: "US"}}}

	cached, err := NewLRUCached(underlying, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e, ok := cached.Lookup(addr)
		require.True(t, ok)
		assert.Equal(t, "US", e.CountryCode)
	}
	assert.Equal(t, 1, underlying.calls)
}

func TestLRUCachedCachesNegativeResults(t *testing.T) {
	addr := netip.MustParseAddr("203.0.113.1")
	underlying := &countingLookup{table: Static{}}

	cached, err := NewLRUCached(underlying, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := cached.Lookup(addr)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, underlying.calls)
}
