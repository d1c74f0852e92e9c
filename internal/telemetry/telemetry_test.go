package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndReadLeaf(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Register("dedup/inserted", func() Content { return Scalar(42) }))

	c, ok := tree.Read("dedup/inserted")
	require.True(t, ok)
	assert.Equal(t, Scalar(42), c)
}

func TestReadDirectoryBuildsDict(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Register("rules/r1/matchedCount", func() Content { return Scalar(3) }))
	require.NoError(t, tree.Register("rules/r2/matchedCount", func() Content { return Scalar(5) }))

	c, ok := tree.Read("rules")
	require.True(t, ok)
	d, ok := c.(Dict)
	require.True(t, ok)
	assert.Len(t, d, 2)
}

func TestAggregateSumsAcrossWildcard(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Register("rules/r1/matchedCount", func() Content { return Scalar(3) }))
	require.NoError(t, tree.Register("rules/r2/matchedCount", func() Content { return Scalar(5) }))

	c, ok := tree.Aggregate("rules/*/matchedCount", SumReducer(""))
	require.True(t, ok)
	assert.Equal(t, Scalar(8), c)
}

func TestAggregateMissingPatternFails(t *testing.T) {
	tree := NewTree()
	_, ok := tree.Aggregate("nothere/*/x", SumReducer(""))
	assert.False(t, ok)
}

func TestListReturnsSortedChildNames(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Register("a/x", func() Content { return Scalar(1) }))
	require.NoError(t, tree.Register("a/y", func() Content { return Scalar(2) }))

	assert.Equal(t, []string{"x", "y"}, tree.List("a"))
}

func TestEncodeLineProtocolProducesOneLinePerLeaf(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Register("dedup/inserted", func() Content { return Scalar(1) }))
	require.NoError(t, tree.Register("dedup/dropped", func() Content { return ScalarWithUnit{Value: 2, Unit: "records"} }))

	out, err := tree.EncodeLineProtocol("dedup", time.Unix(0, 1_700_000_000_000_000_000))
	require.NoError(t, err)
	assert.Contains(t, string(out), "telemetry,path=dedup/inserted")
	assert.Contains(t, string(out), "telemetry,path=dedup/dropped")
}
