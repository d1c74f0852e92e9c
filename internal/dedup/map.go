package dedup

import (
	"errors"
	"iter"
	"time"
)

// ErrBadCapacity is returned by NewTimeoutMap when the requested capacity
// exponent is below the minimum bucket width.
var ErrBadCapacity = errors.New("dedup: capacity exponent must be >= 3")

// TimeoutMap is a fixed-size, hash-sharded array of Buckets.
// Keys are hashed by the caller-supplied hasher to a 64-bit value; the low
// bits select the bucket, the full hash is the in-bucket identity.
type TimeoutMap[K any, V any] struct {
	buckets []*Bucket[V]
	mask uint64
	hasher func(K) uint64
	timeout time.Duration
}

// NewTimeoutMap builds a map with 2^(k-3) buckets. k must be >= 3.
func NewTimeoutMap[K any, V any](k int, timeout time.Duration, updateOnHit bool, hasher func(K) uint64) (*TimeoutMap[K, V], error) {
	if k < 3 {
		return nil, ErrBadCapacity
	}
	n := 1 << uint(k-3)
	buckets := make([]*Bucket[V], n)
	for i := range buckets {
		buckets[i] = NewBucket[V](timeout, updateOnHit)
	}
	return &TimeoutMap[K, V]{
		buckets: buckets,
		mask: uint64(n - 1),
		hasher: hasher,
		timeout: timeout,
	}, nil
}

// Slot identifies the exact bucket/slot an Insert landed in.
type Slot struct {
	Bucket int
	Index int
	Hash uint64
}

// Insert hashes key and inserts it into the selected bucket.
func (m *TimeoutMap[K, V]) Insert(key K, value V, now time.Time) (Slot, InsertResult) {
	h := m.hasher(key)
	bi := int(h & m.mask)
	idx, res := m.buckets[bi].Insert(h, value, now)
	return Slot{Bucket: bi, Index: idx, Hash: h}, res
}

// Erase removes key if present.
func (m *TimeoutMap[K, V]) Erase(key K) bool {
	h := m.hasher(key)
	bi := int(h & m.mask)
	return m.buckets[bi].Erase(h)
}

// Clear empties every bucket.
func (m *TimeoutMap[K, V]) Clear() {
	for _, b := range m.buckets {
		b.Clear()
	}
}

// Value returns the value at the slot returned by a previous Insert, if
// still live as of now.
func (m *TimeoutMap[K, V]) Value(s Slot, now time.Time) (V, bool) {
	return m.buckets[s.Bucket].SlotValue(s.Index, now)
}

// All iterates every live, non-expired slot in bucket-then-slot order.
// Expired slots are skipped automatically.
func (m *TimeoutMap[K, V]) All(now time.Time) iter.Seq2[uint64, V] {
	return func(yield func(uint64, V) bool) {
		for _, b := range m.buckets {
			for i := 0; i < bucketSlots; i++ {
				v, ok := b.SlotValue(i, now)
				if !ok {
					continue
				}
				if !yield(b.hashes[i], v) {
					return
				}
			}
		}
	}
}

// Buckets returns the number of buckets backing the map (for tests/telemetry).
func (m *TimeoutMap[K, V]) Buckets() int { return len(m.buckets) }
