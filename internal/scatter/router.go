package scatter

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// MaxOutputs bounds the number of configured outputs.
const MaxOutputs = 128

// compiledBranch is a Branch with its field names resolved to FieldIDs
// against the active schema.
type compiledBranch struct {
	conditional record.FieldID
	hasCond bool
	fields []record.FieldID
}

// Router distributes records across a fixed number of outputs, either by
// hashing the fields selected by a matching rule branch, or round-robin
// when no rule is configured or no branch matched.
type Router struct {
	numOutputs int
	branches []compiledBranch

	total int64
	sent []int64
}

// NewRouter compiles rule against resolve (typically record.Schema.Resolve)
// for a router over numOutputs outputs.
func NewRouter(numOutputs int, rule Rule, resolve func(string) (record.FieldID, error)) (*Router, error) {
	if numOutputs <= 0 || numOutputs > MaxOutputs {
		return nil, fmt.Errorf("scatter: number of outputs must be between 1 and %d", MaxOutputs)
	}

	r := &Router{numOutputs: numOutputs, sent: make([]int64, numOutputs)}
	for _, b := range rule.Branches {
		cb := compiledBranch{}
		if b.ConditionalField != "" {
			id, err := resolve(b.ConditionalField)
			if err != nil {
				return nil, fmt.Errorf("scatter: conditional field %q: %w", b.ConditionalField, err)
			}
			cb.conditional = id
			cb.hasCond = true
		}
		for _, name := range b.FieldNames {
			id, err := resolve(name)
			if err != nil {
				return nil, fmt.Errorf("scatter: hash field %q: %w", name, err)
			}
			cb.fields = append(cb.fields, id)
		}
		r.branches = append(r.branches, cb)
	}
	return r, nil
}

// OutputIndex selects the output for view, the first
// branch whose condition is satisfied (or unconditional) contributes its
// fields' canonical bytes to an xxhash digest that is reduced modulo
// numOutputs; an empty rule set, or no field data collected, falls back to
// round-robin.
func (r *Router) OutputIndex(view *record.View) int {
	r.total++

	if len(r.branches) == 0 {
		idx := int((r.total - 1) % int64(r.numOutputs))
		r.sent[idx]++
		return idx
	}

	var hashInput []byte
	for _, b := range r.branches {
		if b.hasCond {
			v, ok := view.Get(b.conditional)
			if !ok || isZero(v) {
				continue
			}
		}
		for _, fid := range b.fields {
			v, ok := view.Get(fid)
			if !ok {
				continue
			}
			hashInput = append(hashInput, v.Bits()...)
		}
		break
	}

	if len(hashInput) == 0 {
		idx := int((r.total - 1) % int64(r.numOutputs))
		r.sent[idx]++
		return idx
	}

	idx := int(xxhash.Sum64(hashInput) % uint64(r.numOutputs))
	r.sent[idx]++
	return idx
}

func isZero(v record.Value) bool {
	if i, err := v.Int(); err == nil {
		return i == 0
	}
	if u, err := v.Uint(); err == nil {
		return u == 0
	}
	if f, err := v.Float(); err == nil {
		return f == 0
	}
	return false
}

// Stats reports the total records routed and the per-output counts.
type Stats struct {
	TotalRecords int64
	SentRecords []int64
}

func (r *Router) Stats() Stats {
	out := Stats{TotalRecords: r.total, SentRecords: make([]int64, len(r.sent))}
	copy(out.SentRecords, r.sent)
	return out
}
