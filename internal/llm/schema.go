package llm

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema is a compiled JSON schema for a structured model response.
type Schema struct {
	name     string
	raw      string
	resolved *jsonschema.Resolved
}

// CompileSchema parses and resolves raw.
func CompileSchema(name, raw string) (*Schema, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, fmt.Errorf("parsing %s schema: %w", name, err)
	}

	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{
		ValidateDefaults: true,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving %s schema: %w", name, err)
	}

	return &Schema{name: name, raw: raw, resolved: resolved}, nil
}

// MustCompileSchema is CompileSchema for embedded schemas.
func MustCompileSchema(name, raw string) *Schema {
	s, err := CompileSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name used in errors.
func (s *Schema) Name() string { return s.name }

// Raw returns the schema source.
func (s *Schema) Raw() string { return s.raw }

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(data []byte) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("parsing %s output: %w", s.name, err)
	}
	if err := s.resolved.Validate(instance); err != nil {
		return fmt.Errorf("invalid %s output: %w", s.name, err)
	}
	return nil
}
