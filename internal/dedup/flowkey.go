package dedup

import (
	"net/netip"

	"github.com/cespare/xxhash/v2"
)

// FlowKey is the 5-tuple equivalence key for deduplication.
// Equality and hash ignore timestamps.
type FlowKey struct {
	SrcIP netip.Addr
	DstIP netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto uint8
}

// Hash computes the 64-bit key hash used to shard and identify the entry
// in a TimeoutMap, via xxhash over the tuple's canonical byte encoding.
func (k FlowKey) Hash() uint64 {
	var buf [4 + 16 + 16 + 2 + 2 + 1]byte
	n := 0
	n += copy(buf[n:], []byte("v"))
	n += copy(buf[n:], k.SrcIP.AsSlice())
	n += copy(buf[n:], k.DstIP.AsSlice())
	buf[n] = byte(k.SrcPort >> 8)
	buf[n+1] = byte(k.SrcPort)
	n += 2
	buf[n] = byte(k.DstPort >> 8)
	buf[n+1] = byte(k.DstPort)
	n += 2
	buf[n] = k.Proto
	n++
	return xxhash.Sum64(buf[:n])
}

// HashFlowKey adapts FlowKey.Hash to the func(K) uint64 shape expected by
// NewTimeoutMap.
func HashFlowKey(k FlowKey) uint64 { return k.Hash() }
