package rules

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

func testSchema() *record.Schema {
	return record.NewSchema([]record.Field{
			{Name: "SRC_IP", Kind: record.KindIPv4},
			{Name: "DST_PORT", Kind: record.KindU16},
			{Name: "PROTOCOL", Kind: record.KindU8},
			{Name: "DNS_NAME", Kind: record.KindString},
		}, 1)
}

func mustResolve(t *testing.T, s *record.Schema) func(string) (record.FieldID, error) {
	t.Helper()
	return s.Resolve
}

func viewWith(t *testing.T, s *record.Schema, vals map[string]record.Value) *record.View {
	t.Helper()
	v := record.NewView(s)
	for name, val := range vals {
		id, err := s.Resolve(name)
		require.NoError(t, err)
		require.NoError(t, v.Set(id, val))
	}
	return v
}

// Scenario 3, prefix column only: the rule set a one-column CSV row
// "10.0.0.0/8" parses to, built directly; under whitelist a record matching
// the prefix passes and one outside it is dropped.
func TestListDetectorWhitelistCSVPrefix(t *testing.T) {
	s := testSchema()

	prefix := netip.MustParsePrefix("10.0.0.0/8")
	rs := &RuleSet{
		Fields: []FieldSpec{{Name: "SRC_IP", Kind: record.KindIPv4}},
		Rules: []Rule{
			{ID: 0, Fields: []RuleField{{FieldIndex: 0, Pattern: IPPrefixPattern(prefix)}}},
		},
	}

	engine, err := NewEngine(rs, mustResolve(t, s))
	require.NoError(t, err)
	ld := NewListDetector(Whitelist, engine)

	inside := viewWith(t, s, map[string]record.Value{
			"SRC_IP": record.NewIPv4(netip.MustParseAddr("10.1.2.3"), 32),
	})
	assert.True(t, ld.Evaluate(inside))

	outside := viewWith(t, s, map[string]record.Value{
			"SRC_IP": record.NewIPv4(netip.MustParseAddr("192.168.1.1"), 32),
	})
	assert.False(t, ld.Evaluate(outside))

	passed, dropped := ld.Stats()
	assert.Equal(t, uint64(1), passed)
	assert.Equal(t, uint64(1), dropped)
}

// Scenario 4: a regex rule on a string field, evaluated blacklist.
func TestListDetectorBlacklistRegex(t *testing.T) {
	s := testSchema()

	pat, err := RegexPattern(`.*\.evil\.example$`)
	require.NoError(t, err)

	rs := &RuleSet{
		Fields: []FieldSpec{{Name: "DNS_NAME", Kind: record.KindString}},
		Rules: []Rule{
			{ID: 0, Fields: []RuleField{{FieldIndex: 0, Pattern: pat}}},
		},
	}

	engine, err := NewEngine(rs, mustResolve(t, s))
	require.NoError(t, err)
	ld := NewListDetector(Blacklist, engine)

	bad := viewWith(t, s, map[string]record.Value{"DNS_NAME": record.NewString("c2.evil.example")})
	assert.False(t, ld.Evaluate(bad), "blacklist rule match must drop")

	good := viewWith(t, s, map[string]record.Value{"DNS_NAME": record.NewString("www.example.com")})
	assert.True(t, ld.Evaluate(good), "no rule match must pass under blacklist")
}

func TestEngineIntersectsAcrossFields(t *testing.T) {
	s := testSchema()

	rs := &RuleSet{
		Fields: []FieldSpec{
			{Name: "DST_PORT", Kind: record.KindU16},
			{Name: "PROTOCOL", Kind: record.KindU8},
		},
		Rules: []Rule{
			{ID: 0, Fields: []RuleField{
					{FieldIndex: 0, Pattern: ExactScalar(record.NewU16(443))},
					{FieldIndex: 1, Pattern: ExactScalar(record.NewU8(6))},
			}},
		},
	}

	engine, err := NewEngine(rs, mustResolve(t, s))
	require.NoError(t, err)

	match := viewWith(t, s, map[string]record.Value{
			"DST_PORT": record.NewU16(443),
			"PROTOCOL": record.NewU8(6),
	})
	assert.False(t, engine.Match(match).IsEmpty())

	noMatch := viewWith(t, s, map[string]record.Value{
			"DST_PORT": record.NewU16(443),
			"PROTOCOL": record.NewU8(17),
	})
	assert.True(t, engine.Match(noMatch).IsEmpty())
}

func TestEngineWildcardFieldAlwaysPasses(t *testing.T) {
	s := testSchema()

	rs := &RuleSet{
		Fields: []FieldSpec{{Name: "DST_PORT", Kind: record.KindU16}},
		Rules: []Rule{
			{ID: 0, Fields: []RuleField{{FieldIndex: 0, Pattern: nil}}},
		},
	}

	engine, err := NewEngine(rs, mustResolve(t, s))
	require.NoError(t, err)

	v := viewWith(t, s, map[string]record.Value{"DST_PORT": record.NewU16(12345)})
	assert.False(t, engine.Match(v).IsEmpty(), "a rule with an explicit wildcard on its only field always matches")
}

func TestEngineUnknownFieldNameFails(t *testing.T) {
	s := testSchema()
	rs := &RuleSet{
		Fields: []FieldSpec{{Name: "NO_SUCH_FIELD", Kind: record.KindU16}},
		Rules: []Rule{{ID: 0, Fields: nil}},
	}
	_, err := NewEngine(rs, mustResolve(t, s))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "whitelist", Whitelist.String())
	assert.Equal(t, "blacklist", Blacklist.String())
}
