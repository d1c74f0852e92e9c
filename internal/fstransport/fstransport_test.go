package fstransport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

func testSchema(gen uint64) *record.Schema {
	return record.NewSchema([]record.Field{
			{Name: "SRC_PORT", Kind: record.KindU16},
			{Name: "BYTES", Kind: record.KindU64},
		}, gen)
}

func TestMemoryPushRecvRoundTrip(t *testing.T) {
	schema := testSchema(1)
	m := NewMemory(schema, 4)

	view := record.NewView(schema)
	require.NoError(t, view.Set(0, record.NewU16(443)))
	require.NoError(t, view.Set(1, record.NewU64(1500)))

	ctx := context.Background()
	require.NoError(t, m.Push(ctx, view))

	got, changed, ok, err := m.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, changed, "first Recv call should report a format change")

	v, _ := got.Get(0)
	port, _ := v.Uint()
	assert.Equal(t, uint64(443), port)
}

func TestMemoryRecvOnlySignalsChangeOnce(t *testing.T) {
	schema := testSchema(1)
	m := NewMemory(schema, 4)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		view := record.NewView(schema)
		require.NoError(t, view.Set(0, record.NewU16(uint16(i))))
		require.NoError(t, m.Push(ctx, view))
	}

	_, changed1, ok1, err1 := m.Recv(ctx)
	require.NoError(t, err1)
	require.True(t, ok1)
	assert.True(t, changed1)

	_, changed2, ok2, err2 := m.Recv(ctx)
	require.NoError(t, err2)
	require.True(t, ok2)
	assert.False(t, changed2, "second record under same schema generation should not report a change")
}

func TestMemoryCloseUnblocksRecv(t *testing.T) {
	schema := testSchema(1)
	m := NewMemory(schema, 1)
	require.NoError(t, m.Close())

	_, _, ok, err := m.Recv(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	err = m.Push(context.Background(), record.NewView(schema))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryRecvRespectsContextCancellation(t *testing.T) {
	schema := testSchema(1)
	m := NewMemory(schema, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, _, err := m.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAvroSchemaForCoversAllColumnKinds(t *testing.T) {
	schema := record.NewSchema([]record.Field{
			{Name: "SRC_IP", Kind: record.KindIPv4},
			{Name: "DST_IP", Kind: record.KindIPv6},
			{Name: "SRC_MAC", Kind: record.KindMAC},
			{Name: "NAME", Kind: record.KindString},
			{Name: "PAYLOAD", Kind: record.KindBytes},
			{Name: "TTLS", Kind: record.KindArray, ElemKind: record.KindU8},
			{Name: "TS", Kind: record.KindTime},
		}, 1)

	raw := avroSchemaFor(schema)
	assert.Contains(t, raw, `"name":"FlowRecord"`)
	assert.Contains(t, raw, `"name":"SRC_IP"`)
	assert.Contains(t, raw, `"type":"array"`)
}

func TestValueNativeRoundTripScalarKinds(t *testing.T) {
	cases := []record.Value{
		record.NewU16(1234),
		record.NewI32(-7),
		record.NewF64(3.5),
		record.NewString("hello"),
		record.NewBytes([]byte{1, 2, 3}),
		record.NewTime(1_700_000_000_000_000_000),
	}
	for _, v := range cases {
		native, err := valueToNative(v)
		require.NoError(t, err)
		back, err := nativeToValue(v.Kind(), native)
		require.NoError(t, err)
		assert.Equal(t, v.Bits(), back.Bits())
	}
}
