package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cesnet/nemea-flowmods/internal/chsink"
)

// SinkConfig is the YAML-format ClickHouse sink config: the
// connection, target table, and its column-to-field mapping.
type SinkConfig struct {
	DSN string `yaml:"dsn"`
	Table string `yaml:"table"`
	Columns []sinkColumnYAML `yaml:"columns"`
	Workers int `yaml:"workers"`
	BlockRows int `yaml:"block_rows"`
	Blocks int `yaml:"blocks"`
	MaxInsertDelay time.Duration `yaml:"max_insert_delay"`
}

type sinkColumnYAML struct {
	Column string `yaml:"column"`
	Field string `yaml:"field"`
}

// ParseSinkConfig decodes a YAML document into a SinkConfig.
func ParseSinkConfig(raw []byte) (SinkConfig, error) {
	var cfg SinkConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return SinkConfig{}, fmt.Errorf("config: parsing sink config: %w", err)
	}
	if cfg.Table == "" {
		return SinkConfig{}, fmt.Errorf("config: sink config missing table")
	}
	return cfg, nil
}

// ToChsinkConfig converts the parsed YAML form into chsink.Config.
func (c SinkConfig) ToChsinkConfig() chsink.Config {
	cols := make([]chsink.ColumnSpec, len(c.Columns))
	for i, col := range c.Columns {
		cols[i] = chsink.ColumnSpec{ColumnName: col.Column, FieldName: col.Field}
	}
	return chsink.Config{
		DSN: c.DSN,
		Table: c.Table,
		Columns: cols,
		Workers: c.Workers,
		BlockRows: c.BlockRows,
		Blocks: c.Blocks,
		MaxInsertDelay: c.MaxInsertDelay,
	}
}
