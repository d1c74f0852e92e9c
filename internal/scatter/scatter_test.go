package scatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

func TestParseRuleSingleUnconditionalBranch(t *testing.T) {
	rule, err := ParseRule("<>:(SRC_IP,DST_IP)")
	require.NoError(t, err)
	require.Len(t, rule.Branches, 1)
	assert.Equal(t, "", rule.Branches[0].ConditionalField)
	assert.Equal(t, []string{"SRC_IP", "DST_IP"}, rule.Branches[0].FieldNames)
}

func TestParseRuleMultipleConditionalBranches(t *testing.T) {
	rule, err := ParseRule("<TCP_FLAGS>:(SRC_IP, SRC_PORT) | <>:(SRC_IP)")
	require.NoError(t, err)
	require.Len(t, rule.Branches, 2)
	assert.Equal(t, "TCP_FLAGS", rule.Branches[0].ConditionalField)
	assert.Equal(t, []string{"SRC_IP", "SRC_PORT"}, rule.Branches[0].FieldNames)
	assert.Equal(t, "", rule.Branches[1].ConditionalField)
}

func TestParseRuleEmptyIsValid(t *testing.T) {
	rule, err := ParseRule("")
	require.NoError(t, err)
	assert.Empty(t, rule.Branches)
}

func TestParseRuleMalformed(t *testing.T) {
	_, err := ParseRule("SRC_IP,DST_IP")
	assert.Error(t, err)

	_, err = ParseRule("<>:()")
	assert.Error(t, err)
}

func schemaForScatter() *record.Schema {
	return record.NewSchema([]record.Field{
			{Name: "SRC_IP", Kind: record.KindU32},
			{Name: "DST_IP", Kind: record.KindU32},
			{Name: "TCP_FLAGS", Kind: record.KindU8},
		}, 1)
}

func TestRouterRoundRobinWithEmptyRule(t *testing.T) {
	s := schemaForScatter()
	r, err := NewRouter(4, Rule{}, s.Resolve)
	require.NoError(t, err)

	view := record.NewView(s)
	var got []int
	for i := 0; i < 8; i++ {
		got = append(got, r.OutputIndex(view))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, got)
}

func TestRouterHashIsStableForSameFields(t *testing.T) {
	s := schemaForScatter()
	rule, err := ParseRule("<>:(SRC_IP,DST_IP)")
	require.NoError(t, err)
	r, err := NewRouter(4, rule, s.Resolve)
	require.NoError(t, err)

	srcID, _ := s.Resolve("SRC_IP")
	dstID, _ := s.Resolve("DST_IP")

	v1 := record.NewView(s)
	require.NoError(t, v1.Set(srcID, record.NewU32(10)))
	require.NoError(t, v1.Set(dstID, record.NewU32(20)))

	v2 := record.NewView(s)
	require.NoError(t, v2.Set(srcID, record.NewU32(10)))
	require.NoError(t, v2.Set(dstID, record.NewU32(20)))

	assert.Equal(t, r.OutputIndex(v1), r.OutputIndex(v2))
}

func TestRouterConditionalBranchFallsThroughWhenZero(t *testing.T) {
	s := schemaForScatter()
	rule, err := ParseRule("<TCP_FLAGS>:(SRC_IP) | <>:(DST_IP)")
	require.NoError(t, err)
	r, err := NewRouter(4, rule, s.Resolve)
	require.NoError(t, err)

	flagsID, _ := s.Resolve("TCP_FLAGS")
	dstID, _ := s.Resolve("DST_IP")

	v := record.NewView(s)
	require.NoError(t, v.Set(flagsID, record.NewU8(0)))
	require.NoError(t, v.Set(dstID, record.NewU32(42)))

	idx := r.OutputIndex(v)
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, 4)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.TotalRecords)
}

func TestNewRouterRejectsBadOutputCount(t *testing.T) {
	s := schemaForScatter()
	_, err := NewRouter(0, Rule{}, s.Resolve)
	assert.Error(t, err)
	_, err = NewRouter(MaxOutputs+1, Rule{}, s.Resolve)
	assert.Error(t, err)
}
