package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error

	compiledOnce   sync.Once
	compiledSchema *santhosh.Schema
	compiledErr    error
)

// JSONSchema returns the JSON Schema for the Config struct.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag: "yaml",
		}
		schema := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
	})
	return schemaJSON, schemaErr
}

func compileConfigSchema() (*santhosh.Schema, error) {
	compiledOnce.Do(func() {
		raw, err := JSONSchema()
		if err != nil {
			compiledErr = err
			return
		}
		compiledSchema, compiledErr = santhosh.CompileString("teamsbridge.schema.json", string(raw))
	})
	return compiledSchema, compiledErr
}

// ValidateRaw checks a raw configuration map (after $include resolution)
// against the generated schema. Unknown keys and mistyped values fail here
// with a path to the offending field.
func ValidateRaw(raw map[string]any) error {
	schema, err := compileConfigSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
