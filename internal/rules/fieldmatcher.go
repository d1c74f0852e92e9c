package rules

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/cesnet/nemea-flowmods/internal/iptrie"
	"github.com/cesnet/nemea-flowmods/internal/record"
)

// exactFieldMatcher backs both the numeric and the string matcher groups
//: a byte-exact lookup plus the wildcard set, i.e. every rule
// that either declared an explicit wildcard on this field or never
// mentioned the field at all.
type exactFieldMatcher struct {
	fieldID record.FieldID
	index *valueIndex
	wildcard *roaring.Bitmap
}

func newExactFieldMatcher(fieldID record.FieldID, ruleCount int) *exactFieldMatcher {
	wc := roaring.New()
	wc.AddRange(0, uint64(ruleCount))
	return &exactFieldMatcher{fieldID: fieldID, index: newValueIndex(), wildcard: wc}
}

func (m *exactFieldMatcher) addExact(bits []byte, ruleID int) {
	m.index.add(bits, ruleID)
	m.wildcard.Remove(uint32(ruleID))
}

func (m *exactFieldMatcher) localSet(v record.Value, present bool) *roaring.Bitmap {
	if !present {
		return m.wildcard
	}
	return roaring.Or(m.index.lookup(v.Bits()), m.wildcard)
}

// ipFieldMatcher matches an IP-typed field against registered prefixes via
// longest-prefix-set collection.
type ipFieldMatcher struct {
	fieldID record.FieldID
	v4 *iptrie.Trie
	v6 *iptrie.Trie
	wildcard *roaring.Bitmap
}

func newIPFieldMatcher(fieldID record.FieldID, ruleCount int) *ipFieldMatcher {
	wc := roaring.New()
	wc.AddRange(0, uint64(ruleCount))
	return &ipFieldMatcher{fieldID: fieldID, v4: iptrie.NewV4(), v6: iptrie.NewV6(), wildcard: wc}
}

func (m *ipFieldMatcher) addPrefix(keyBytes []byte, length int, ruleID int, isV4 bool) {
	if isV4 {
		m.v4.Insert(keyBytes, length, ruleID)
	} else {
		m.v6.Insert(keyBytes, length, ruleID)
	}
	m.wildcard.Remove(uint32(ruleID))
}

func (m *ipFieldMatcher) localSet(v record.Value, present bool) *roaring.Bitmap {
	if !present {
		return m.wildcard
	}
	addr, _, err := v.IP()
	if err != nil {
		return m.wildcard
	}

	bm := roaring.New()
	var ids []int
	if addr.Is4() || addr.Is4In6() {
		ids = m.v4.Search(iptrie.KeyV4(addr))
	} else {
		ids = m.v6.Search(iptrie.KeyV6(addr))
	}
	for _, id := range ids {
		bm.Add(uint32(id))
	}
	return roaring.Or(bm, m.wildcard)
}

// regexFieldMatcher holds the per-field regex patterns, tested only against
// rule IDs still alive after the numeric/string/ip passes.
type regexFieldMatcher struct {
	fieldID record.FieldID
	patterns []regexRule
}

type regexRule struct {
	ruleID int
	p *Pattern
}

func (m *regexFieldMatcher) apply(v record.Value, present bool, matched *roaring.Bitmap) {
	var s string
	if present {
		s, _ = v.Str()
	}
	for _, r := range m.patterns {
		if !matched.Contains(uint32(r.ruleID)) {
			continue
		}
		if !present || !r.p.Regex.MatchString(s) {
			matched.Remove(uint32(r.ruleID))
		}
	}
}
