package dedup

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func k1() FlowKey {
	return FlowKey{
		SrcIP: netip.MustParseAddr("1.1.1.1"),
		DstIP: netip.MustParseAddr("2.2.2.2"),
		SrcPort: 80,
		DstPort: 443,
		Proto: 6,
	}
}

func at(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}

// Scenario 1: capacity exponent 3 (one bucket, 8 slots), timeout 1000ms.
func TestDedupScenarioBasic(t *testing.T) {
	d, err := New(3, 1000*time.Millisecond)
	require.NoError(t, err)

	key := k1()

	assert.False(t, d.IsDuplicate(key, 1, at(0)), "first observation is never a duplicate")
	assert.False(t, d.IsDuplicate(key, 1, at(500)), "same link within timeout is not a duplicate")
	assert.True(t, d.IsDuplicate(key, 2, at(700)), "different link within timeout is a duplicate")
	assert.False(t, d.IsDuplicate(key, 1, at(2500)), "expired entry is reinserted, not a duplicate")
}

// Scenario 2: capacity exponent 3 (8 slots), huge timeout, 9th
// distinct key evicts the earliest-expiry entry.
func TestDedupScenarioEviction(t *testing.T) {
	d, err := New(3, 1_000_000*time.Millisecond)
	require.NoError(t, err)

	keys := make([]FlowKey, 9)
	for i := range keys[:8] {
		keys[i] = FlowKey{
			SrcIP: netip.MustParseAddr("1.1.1.1"),
			DstIP: netip.MustParseAddr("2.2.2.2"),
			SrcPort: uint16(1000 + i),
			DstPort: 443,
			Proto: 6,
		}
		assert.False(t, d.IsDuplicate(keys[i], 1, at(int64(i))))
	}

	ninth := FlowKey{
		SrcIP: netip.MustParseAddr("1.1.1.1"),
		DstIP: netip.MustParseAddr("2.2.2.2"),
		SrcPort: 9999,
		DstPort: 443,
		Proto: 6,
	}

	slot, res := d.m.Insert(ninth, 1, at(8))
	assert.Equal(t, Replaced, res)
	assert.Equal(t, keys[0].Hash()&d.m.mask, slot.Hash&d.m.mask, "victim bucket must match the 9th key's bucket (only one bucket here)")

	// The evicted key (inserted at t=0) now reads as a miss.
	_, stillThere := d.m.Insert(keys[0], 1, at(9))
	assert.NotEqual(t, AlreadyPresent, stillThere)
}

func TestDedupAbsentIsAlwaysInserted(t *testing.T) {
	d, err := New(4, time.Second)
	require.NoError(t, err)
	assert.False(t, d.IsDuplicate(k1(), 42, at(0)))
	assert.Equal(t, uint64(1), d.Stats().Inserted)
}

func TestDedupSameLinkCounters(t *testing.T) {
	d, err := New(4, time.Second)
	require.NoError(t, err)

	key := k1()
	d.IsDuplicate(key, 1, at(0))
	d.IsDuplicate(key, 1, at(100))

	assert.Equal(t, uint64(2), d.Stats().Inserted)
	assert.Equal(t, uint64(0), d.Stats().Deduplicated)
}

func TestDedupCrossLinkCounters(t *testing.T) {
	d, err := New(4, time.Second)
	require.NoError(t, err)

	key := k1()
	d.IsDuplicate(key, 1, at(0))
	dup := d.IsDuplicate(key, 2, at(100))

	assert.True(t, dup)
	assert.Equal(t, uint64(1), d.Stats().Deduplicated)
}

func TestNewTimeoutMapBadCapacity(t *testing.T) {
	_, err := NewTimeoutMap[FlowKey, LinkBitField](2, time.Second, true, HashFlowKey)
	assert.ErrorIs(t, err, ErrBadCapacity)
}

func TestBucketCapReplacesEarliestExpiry(t *testing.T) {
	b := NewBucket[int](time.Hour, false)
	for i := 0; i < 8; i++ {
		idx, res := b.Insert(uint64(i), i, at(int64(i)))
		require.Equal(t, Inserted, res)
		require.Equal(t, i, idx)
	}

	idx, res := b.Insert(999, 999, at(8))
	assert.Equal(t, Replaced, res)
	assert.Equal(t, 0, idx, "victim must be the slot with smallest lastTouched (hash=0, inserted at t=0)")
}

func TestAllSkipsExpiredEntries(t *testing.T) {
	m, err := NewTimeoutMap[FlowKey, LinkBitField](3, 100*time.Millisecond, false, HashFlowKey)
	require.NoError(t, err)

	m.Insert(k1(), 1, at(0))

	count := 0
	for range m.All(at(50)) {
		count++
	}
	assert.Equal(t, 1, count)

	count = 0
	for range m.All(at(500)) {
		count++
	}
	assert.Equal(t, 0, count, "expired entries must not be visited")
}
