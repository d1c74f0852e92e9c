package dedup

import "time"

// LinkBitField is the opaque per-collector tag carried on each record,
// indicating which observation point emitted it.
type LinkBitField uint64

// Stats holds the three counters exposed by the deduplicator's telemetry.
type Stats struct {
	Inserted uint64
	Replaced uint64
	Deduplicated uint64
}

// Deduplicator classifies incoming (FlowKey, LinkBitField) observations as
// duplicate or not. A fresh flow, or the same flow
// re-observed by the same collector, is not a duplicate; the same flow
// observed by two different collectors is.
//
// Not safe for concurrent use — the driver's receive loop is
// single-threaded.
type Deduplicator struct {
	m *TimeoutMap[FlowKey, LinkBitField]
	stats Stats
}

// New builds a Deduplicator with 2^(capacityExp-3) buckets and the given
// per-entry timeout. Entries refresh their expiry on every hit so a
// continuously-observed long flow never times out mid-stream.
func New(capacityExp int, timeout time.Duration) (*Deduplicator, error) {
	m, err := NewTimeoutMap[FlowKey, LinkBitField](capacityExp, timeout, true, HashFlowKey)
	if err != nil {
		return nil, err
	}
	return &Deduplicator{m: m}, nil
}

// IsDuplicate extracts nothing itself — callers pass the already-extracted
// FlowKey and link bitfield; extraction from a record.View is
// the driver's job (cmd/dedup), kept out of this core so the core stays
// schema-agnostic.
func (d *Deduplicator) IsDuplicate(key FlowKey, link LinkBitField, now time.Time) bool {
	slot, res := d.m.Insert(key, link, now)

	switch res {
	case Inserted:
		d.stats.Inserted++
		return false
	case Replaced:
		d.stats.Replaced++
		return false
	case AlreadyPresent:
		stored, _ := d.m.Value(slot, now)
		if stored != link {
			d.stats.Deduplicated++
			return true
		}
		d.stats.Inserted++
		return false
	default:
		return false
	}
}

func (d *Deduplicator) Stats() Stats { return d.stats }

func (d *Deduplicator) Clear() { d.m.Clear() }
