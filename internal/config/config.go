package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CommonConfig holds the fields a driver's JSON config shares with the
// others: its telemetry/audit wiring and its log level. The drivers under
// cmd/ take these settings from command-line flags and do not use it.
type CommonConfig struct {
	LogLevel string `json:"log_level"`
	TelemetryListen string `json:"telemetry_listen"`
	AuditDB string `json:"audit_db"`
	Transport json.RawMessage `json:"transport"`
}

// LoadJSON validates raw (already sourced via ReadSource) against
// schemaJSON and decodes it into out with unknown fields rejected.
func LoadJSON(raw []byte, schemaJSON string, out any) error {
	Validate(schemaJSON, json.RawMessage(raw))

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("config: decoding: %w", err)
	}
	return nil
}
