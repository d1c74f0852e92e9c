package record

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return NewSchema([]Field{
			{Name: "SRC_IP", Kind: KindIPv4},
			{Name: "DST_PORT", Kind: KindU16},
			{Name: "HTTP_URL", Kind: KindString},
		}, 1)
}

func TestSchemaResolve(t *testing.T) {
	s := testSchema()

	id, err := s.Resolve("DST_PORT")
	require.NoError(t, err)
	assert.Equal(t, FieldID(1), id)

	_, err = s.Resolve("NO_SUCH_FIELD")
	assert.True(t, errors.Is(err, ErrFieldUnknown))
}

func TestViewGetSetRoundTrip(t *testing.T) {
	s := testSchema()
	v := NewView(s)
	v.Reset(s)

	portID, _ := s.Resolve("DST_PORT")
	require.NoError(t, v.Set(portID, NewU16(443)))

	got, present := v.Get(portID)
	require.True(t, present)
	u, err := got.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(443), u)

	urlID, _ := s.Resolve("HTTP_URL")
	_, present = v.Get(urlID)
	assert.False(t, present, "unset field must read as absent")
}

func TestViewTypeMismatch(t *testing.T) {
	s := testSchema()
	v := NewView(s)
	v.Reset(s)

	portID, _ := s.Resolve("DST_PORT")
	err := v.Set(portID, NewString("not a port"))
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestViewResetClearsPriorValues(t *testing.T) {
	s := testSchema()
	v := NewView(s)
	v.Reset(s)

	portID, _ := s.Resolve("DST_PORT")
	require.NoError(t, v.Set(portID, NewU16(80)))

	v.Reset(s)
	_, present := v.Get(portID)
	assert.False(t, present)
}

func TestValueBitsForIP(t *testing.T) {
	addr := netip.MustParseAddr("10.1.2.3")
	val := NewIPv4(addr, 32)
	assert.Equal(t, []byte{10, 1, 2, 3}, val.Bits())
}
