// Package rules implements the rule-set evaluator: per-field
// matchers (numeric-exact, string-exact, regex, ip-prefix, wildcard)
// intersected into a final matched-rule bitset, plus the whitelist/
// blacklist List Detector driver built on top of it.
package rules

import (
	"fmt"
	"net/netip"
	"regexp"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// PatternKind is the tag of a RuleField's pattern.
type PatternKind uint8

const (
	PatternWildcard PatternKind = iota
	PatternExactScalar
	PatternExactString
	PatternRegex
	PatternIPPrefix
)

// Pattern is one RuleField's match predicate. A nil *Pattern denotes the
// absent/wildcard case.
type Pattern struct {
	Kind PatternKind

	// PatternExactScalar / PatternExactString
	Bits []byte

	// PatternRegex
	Regex *regexp.Regexp

	// PatternIPPrefix
	Prefix netip.Prefix
}

// ExactScalar builds a pattern matching a scalar value's canonical bit
// encoding.
func ExactScalar(v record.Value) *Pattern {
	return &Pattern{Kind: PatternExactScalar, Bits: v.Bits()}
}

// ExactString builds a pattern matching a string value exactly.
func ExactString(s string) *Pattern {
	return &Pattern{Kind: PatternExactString, Bits: []byte(s)}
}

// RegexPattern compiles src into a regex pattern.
func RegexPattern(src string) (*Pattern, error) {
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("rules: bad regex %q: %w", src, err)
	}
	return &Pattern{Kind: PatternRegex, Regex: re}, nil
}

// IPPrefixPattern builds a pattern matching addresses within prefix.
func IPPrefixPattern(prefix netip.Prefix) *Pattern {
	return &Pattern{Kind: PatternIPPrefix, Prefix: prefix}
}
