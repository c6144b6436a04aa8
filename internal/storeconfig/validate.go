// Package storeconfig decodes and validates the JSON configuration for a
// Store: bucket sizing, static-row handling and garbage-collection defaults.
package storeconfig

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schema (a JSON Schema document) and checks instance
// against it. It returns a descriptive error instead of raw validation
// internals so callers can log-and-abort cleanly.
func Validate(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("store-config.json", schema)
	if err != nil {
		return fmt.Errorf("storeconfig: invalid schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("storeconfig: malformed config: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("storeconfig: config failed validation: %w", err)
	}
	return nil
}
