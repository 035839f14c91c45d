package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema compiles an agent's parameter schema once, at registration
// time, so Build never pays compilation cost and a broken schema fails the
// service at startup instead of at request time.
func compileSchema(name string, src []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse schema for agent %q: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("automator://agents/%s.schema.json", name)
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for agent %q: %w", name, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for agent %q: %w", name, err)
	}
	return schema, nil
}

// validateRaw checks a raw parameter map against a compiled schema. The map
// is round-tripped through JSON so the validator sees the same value shapes
// a wire payload would have.
func validateRaw(schema *jsonschema.Schema, raw map[string]any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return schema.Validate(instance)
}
