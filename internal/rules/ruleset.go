package rules

import (
	"fmt"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// FieldSpec names one column of a rule set's header.
type FieldSpec struct {
	Name string
	Kind record.Kind
}

// RuleField is one cell of a rule row: a pattern against FieldIndex, or a
// nil Pattern for an explicit/implicit wildcard.
type RuleField struct {
	FieldIndex int
	Pattern *Pattern
}

// Rule is one row of a parsed rule list.
type Rule struct {
	ID int
	Fields []RuleField
}

// RuleSet is a fully parsed rule list: the column header plus every rule
// row, prior to being bound against a live record.Schema by NewEngine.
type RuleSet struct {
	Fields []FieldSpec
	Rules []Rule
}

// ErrUnknownField is returned by NewEngine when a rule set's column name
// does not resolve against the current schema.
var ErrUnknownField = fmt.Errorf("rules: column does not resolve against schema")

// category classifies a FieldSpec.Kind into the matcher group that handles
// it.
type category int

const (
	categoryScalar category = iota
	categoryString
	categoryIP
	categoryUnmatchable
)

func classify(k record.Kind) category {
	switch k {
	case record.KindIPv4, record.KindIPv6:
		return categoryIP
	case record.KindString:
		return categoryString
	case record.KindI8, record.KindI16, record.KindI32, record.KindI64,
		record.KindU8, record.KindU16, record.KindU32, record.KindU64,
		record.KindChar, record.KindF32, record.KindF64, record.KindTime,
		record.KindMAC, record.KindBytes:
		return categoryScalar
	default:
		return categoryUnmatchable
	}
}
