package rules

import (
	"fmt"
	"net/netip"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/cesnet/nemea-flowmods/internal/iptrie"
	"github.com/cesnet/nemea-flowmods/internal/record"
)

// RulesEngine evaluates a record.View against a compiled RuleSet, returning
// the bitset of rule IDs it satisfies. Matchers are grouped by
// kind and evaluated in ascending cost order — numeric, then string, then
// ip-prefix, then regex — short-circuiting as soon as the running
// intersection is empty.
type RulesEngine struct {
	ruleCount int
	numeric []*exactFieldMatcher
	strings []*exactFieldMatcher
	ips []*ipFieldMatcher
	regexes []*regexFieldMatcher
}

// NewEngine compiles rs against the field IDs resolve returns for each of
// rs.Fields' names. resolve is typically record.Schema.Resolve for the
// currently active schema.
func NewEngine(rs *RuleSet, resolve func(name string) (record.FieldID, error)) (*RulesEngine, error) {
	n := len(rs.Rules)
	fieldIDs := make([]record.FieldID, len(rs.Fields))
	for i, f := range rs.Fields {
		id, err := resolve(f.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnknownField, f.Name, err)
		}
		fieldIDs[i] = id
	}

	e := &RulesEngine{ruleCount: n}

	numericByIdx := map[int]*exactFieldMatcher{}
	stringByIdx := map[int]*exactFieldMatcher{}
	ipByIdx := map[int]*ipFieldMatcher{}
	regexByIdx := map[int]*regexFieldMatcher{}

	for _, rule := range rs.Rules {
		for _, rf := range rule.Fields {
			if rf.Pattern == nil || rf.Pattern.Kind == PatternWildcard {
				continue
			}
			idx := rf.FieldIndex
			spec := rs.Fields[idx]
			cat := classify(spec.Kind)

			switch {
			case rf.Pattern.Kind == PatternRegex:
				rm, ok := regexByIdx[idx]
				if !ok {
					rm = &regexFieldMatcher{fieldID: fieldIDs[idx]}
					regexByIdx[idx] = rm
					e.regexes = append(e.regexes, rm)
				}
				rm.patterns = append(rm.patterns, regexRule{ruleID: rule.ID, p: rf.Pattern})

			case rf.Pattern.Kind == PatternIPPrefix:
				if cat != categoryIP {
					return nil, fmt.Errorf("rules: field %q: ip-prefix pattern on non-ip column", spec.Name)
				}
				im, ok := ipByIdx[idx]
				if !ok {
					im = newIPFieldMatcher(fieldIDs[idx], n)
					ipByIdx[idx] = im
					e.ips = append(e.ips, im)
				}
				keyBytes, length, isV4 := ipKey(spec.Kind, rf.Pattern.Prefix)
				im.addPrefix(keyBytes, length, rule.ID, isV4)

			case cat == categoryString:
				sm, ok := stringByIdx[idx]
				if !ok {
					sm = newExactFieldMatcher(fieldIDs[idx], n)
					stringByIdx[idx] = sm
					e.strings = append(e.strings, sm)
				}
				sm.addExact(rf.Pattern.Bits, rule.ID)

			case cat == categoryScalar:
				nm, ok := numericByIdx[idx]
				if !ok {
					nm = newExactFieldMatcher(fieldIDs[idx], n)
					numericByIdx[idx] = nm
					e.numeric = append(e.numeric, nm)
				}
				nm.addExact(rf.Pattern.Bits, rule.ID)

			default:
				return nil, fmt.Errorf("rules: field %q: kind %v is not matchable", spec.Name, spec.Kind)
			}
		}
	}

	return e, nil
}

// ipKey converts a parsed IP prefix into the trie key bytes, trie prefix
// length, and v4-vs-v6 selector for the field it was declared on.
func ipKey(fieldKind record.Kind, prefix netip.Prefix) ([]byte, int, bool) {
	addr := prefix.Addr()
	length := prefix.Bits()
	if fieldKind == record.KindIPv4 {
		return iptrie.KeyV4(addr), length, true
	}
	if addr.Is4() {
		length += 96
	}
	return iptrie.KeyV6(addr), length, false
}

// Match returns the bitset of rule IDs satisfied by view.
func (e *RulesEngine) Match(view *record.View) *roaring.Bitmap {
	matched := roaring.New()
	matched.AddRange(0, uint64(e.ruleCount))

	for _, m := range e.numeric {
		v, present := view.Get(m.fieldID)
		matched.And(m.localSet(v, present))
		if matched.IsEmpty() {
			return matched
		}
	}
	for _, m := range e.strings {
		v, present := view.Get(m.fieldID)
		matched.And(m.localSet(v, present))
		if matched.IsEmpty() {
			return matched
		}
	}
	for _, m := range e.ips {
		v, present := view.Get(m.fieldID)
		matched.And(m.localSet(v, present))
		if matched.IsEmpty() {
			return matched
		}
	}
	for _, m := range e.regexes {
		v, present := view.Get(m.fieldID)
		m.apply(v, present, matched)
		if matched.IsEmpty() {
			return matched
		}
	}
	return matched
}

// RuleCount returns the number of rules compiled into the engine.
func (e *RulesEngine) RuleCount() int { return e.ruleCount }
