package chsink

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

func TestBlockPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewBlockPool(2, 4)

	b1 := p.Acquire()
	b1.Append([]any{1})
	assert.Equal(t, 1, b1.Len())

	p.Submit(b1)
	got, ok := p.TakeNonBlocking()
	require.True(t, ok)
	assert.Same(t, b1, got)
	assert.Equal(t, 1, got.Len())

	p.Release(got)
	assert.Equal(t, 0, got.Len())

	b2 := p.Acquire()
	assert.Equal(t, 0, b2.Len())
}

func TestBlockFull(t *testing.T) {
	b := newBlock(2)
	assert.False(t, b.Full())
	b.Append([]any{1})
	assert.False(t, b.Full())
	b.Append([]any{2})
	assert.True(t, b.Full())
}

func sinkSchema() *record.Schema {
	return record.NewSchema([]record.Field{
			{Name: "SRC_IP", Kind: record.KindIPv4},
			{Name: "DST_PORT", Kind: record.KindU16},
			{Name: "DNS_NAME", Kind: record.KindString},
		}, 1)
}

func TestAdapterRowConversion(t *testing.T) {
	s := sinkSchema()
	a, err := NewAdapter([]ColumnSpec{
			{ColumnName: "src_ip", FieldName: "SRC_IP"},
			{ColumnName: "dst_port", FieldName: "DST_PORT"},
			{ColumnName: "dns_name", FieldName: "DNS_NAME"},
		}, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"src_ip", "dst_port", "dns_name"}, a.ColumnNames())

	srcID, _ := s.Resolve("SRC_IP")
	portID, _ := s.Resolve("DST_PORT")
	nameID, _ := s.Resolve("DNS_NAME")

	v := record.NewView(s)
	require.NoError(t, v.Set(srcID, record.NewIPv4(netip.MustParseAddr("10.0.0.1"), 32)))
	require.NoError(t, v.Set(portID, record.NewU16(443)))
	require.NoError(t, v.Set(nameID, record.NewString("example.com")))

	row, err := a.Row(v)
	require.NoError(t, err)
	require.Len(t, row, 3)
	assert.Equal(t, uint16(443), row[1])
	assert.Equal(t, "example.com", row[2])
}

func TestAdapterRowMissingFieldUsesZeroValue(t *testing.T) {
	s := sinkSchema()
	a, err := NewAdapter([]ColumnSpec{{ColumnName: "dns_name", FieldName: "DNS_NAME"}}, s)
	require.NoError(t, err)

	v := record.NewView(s)
	row, err := a.Row(v)
	require.NoError(t, err)
	assert.Equal(t, "", row[0])
}

func TestNewAdapterUnknownField(t *testing.T) {
	s := sinkSchema()
	_, err := NewAdapter([]ColumnSpec{{ColumnName: "x", FieldName: "NOPE"}}, s)
	assert.Error(t, err)
}

func TestBuildInsertSQL(t *testing.T) {
	sql := buildInsertSQL("flows", []string{"src_ip", "dst_port"})
	assert.Equal(t, "INSERT INTO flows (src_ip, dst_port)", sql)
}

type fakeBatch struct {
	rows [][]any
	sent *int
	appendN *int
}

func (b *fakeBatch) Append(row ...any) error {
	b.rows = append(b.rows, row)
	*b.appendN++
	return nil
}

func (b *fakeBatch) Send() error {
	*b.sent++
	return nil
}

type fakeClient struct {
	sent int
	appendN int
}

func (c *fakeClient) PrepareInsert(ctx context.Context, sql string) (chBatch, error) {
	return &fakeBatch{sent: &c.sent, appendN: &c.appendN}, nil
}

// failingThenOKClient fails PrepareInsert the first failN calls, then
// delegates to a fakeClient, exercising the worker's retry-with-backoff
// path on insert failure.
type failingThenOKClient struct {
	failN int
	calls int
	ok fakeClient
}

func (c *failingThenOKClient) PrepareInsert(ctx context.Context, sql string) (chBatch, error) {
	c.calls++
	if c.calls <= c.failN {
		return nil, assert.AnError
	}
	return c.ok.PrepareInsert(ctx, sql)
}

func TestSinkRetriesFailedInsertUntilSuccess(t *testing.T) {
	s := sinkSchema()
	sink, err := NewSink(Config{
			Table: "flows",
			Columns: []ColumnSpec{{ColumnName: "dst_port", FieldName: "DST_PORT"}},
			Workers: 1,
			BlockRows: 1,
			Blocks: 1,
		}, s)
	require.NoError(t, err)
	sink.limiter = rate.NewLimiter(rate.Inf, 1)

	client := &failingThenOKClient{failN: 2}
	sink.Start(client)

	portID, _ := s.Resolve("DST_PORT")
	v := record.NewView(s)
	require.NoError(t, v.Set(portID, record.NewU16(1)))
	require.NoError(t, sink.ProcessRecord(v))

	sink.Stop()

	stats := sink.Stats()
	assert.Equal(t, uint64(2), stats.InsertErrors)
	assert.Equal(t, uint64(1), stats.RowsInserted)
	assert.Equal(t, uint64(1), stats.BlocksSent)
}

func TestSinkProcessRecordFlushesOnFullBlock(t *testing.T) {
	s := sinkSchema()
	sink, err := NewSink(Config{
			Table: "flows",
			Columns: []ColumnSpec{{ColumnName: "dst_port", FieldName: "DST_PORT"}},
			Workers: 1,
			BlockRows: 2,
			Blocks: 2,
		}, s)
	require.NoError(t, err)

	client := &fakeClient{}
	sink.Start(client)

	portID, _ := s.Resolve("DST_PORT")
	for i := 0; i < 5; i++ {
		v := record.NewView(s)
		require.NoError(t, v.Set(portID, record.NewU16(uint16(i))))
		require.NoError(t, sink.ProcessRecord(v))
	}

	sink.Stop()

	stats := sink.Stats()
	assert.Equal(t, uint64(5), stats.RowsBuffered)
	assert.Equal(t, uint64(5), stats.RowsInserted)
	assert.Equal(t, uint64(0), stats.InsertErrors)
}
