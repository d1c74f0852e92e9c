package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

func TestParseRuleCSVBasic(t *testing.T) {
	csv := strings.Join([]string{
			"ipv4 SRC_IP,uint16 DST_PORT,string DNS_NAME",
			"10.0.0.0/8,*,*",
			"*,443,/.*\\.evil\\.example$/",
		}, "\n")

	rs, err := ParseRuleCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rs.Fields, 3)
	assert.Equal(t, "SRC_IP", rs.Fields[0].Name)
	assert.Equal(t, record.KindIPv4, rs.Fields[0].Kind)

	require.Len(t, rs.Rules, 2)
	require.Len(t, rs.Rules[0].Fields, 1)
	assert.Equal(t, 0, rs.Rules[0].Fields[0].FieldIndex)

	require.Len(t, rs.Rules[1].Fields, 2)
}

func TestParseRuleCSVBadHeader(t *testing.T) {
	_, err := ParseRuleCSV(strings.NewReader("SRC_IP\n*"))
	assert.Error(t, err)
}

func TestParseRuleCSVUnknownType(t *testing.T) {
	_, err := ParseRuleCSV(strings.NewReader("widget SRC_IP\n*"))
	assert.Error(t, err)
}

func TestParseSinkConfigYAML(t *testing.T) {
	yamlDoc := `
dsn: "clickhouse://localhost:9000/default"
table: flows
workers: 4
block_rows: 4096
columns:
 - column: src_ip
   field: SRC_IP
 - column: dst_port
   field: DST_PORT
`
	cfg, err := ParseSinkConfig([]byte(yamlDoc))
	require.NoError(t, err)
	assert.Equal(t, "flows", cfg.Table)
	assert.Equal(t, 4, cfg.Workers)
	require.Len(t, cfg.Columns, 2)
	assert.Equal(t, "src_ip", cfg.Columns[0].Column)

	ch := cfg.ToChsinkConfig()
	assert.Equal(t, "flows", ch.Table)
	assert.Len(t, ch.Columns, 2)
}

func TestParseSinkConfigRequiresTable(t *testing.T) {
	_, err := ParseSinkConfig([]byte("dsn: x"))
	assert.Error(t, err)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := Fingerprint([]byte("hello"))
	b := Fingerprint([]byte("world"))
	c := Fingerprint([]byte("hello"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}
