// Package config implements the ambient configuration layer shared by all
// four drivers: JSON-Schema-validated module config, YAML sink
// column config, the CSV rule-list format, and the blake2b/gocron
// hot-reload watcher.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

// Validate compiles schemaJSON and validates instance against it, aborting
// the process on failure — a malformed config file is an init-time error.
func Validate(schemaJSON string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("schema.json", schemaJSON)
	if err != nil {
		flog.Abortf("config: compiling schema: %v", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		flog.Abortf("config: decoding instance: %v", err)
	}

	if err := sch.Validate(v); err != nil {
		flog.Abortf("config: %v", err)
	}
}

// ValidateErr is the non-fatal counterpart of Validate: it returns a
// validation failure as an error instead of aborting the running process.
func ValidateErr(schemaJSON string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: decoding instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
