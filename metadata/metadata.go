// Package metadata validates module descriptor sidecar files
// (<name>.module.json, naming required flags/capabilities) against a JSON
// Schema without opening the shared object — grounded on the jsonschema
// module's santhosh-tekuri/jsonschema/v6 usage. The plugin backend does not
// call it.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is the JSON Schema every module.json sidecar must satisfy.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "flags": {
      "type": "array",
      "items": {"type": "string", "enum": ["exports-global-symbols"]}
    },
    "requires": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

// Descriptor is the decoded shape of a validated sidecar file.
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Flags       []string `json:"flags"`
	Requires    []string `json:"requires"`
}

// Validator compiles Schema once and validates sidecar documents against
// it.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the package Schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("module.schema.json", mustUnmarshal(Schema)); err != nil {
		return nil, fmt.Errorf("metadata: add schema resource: %w", err)
	}
	sch, err := c.Compile("module.schema.json")
	if err != nil {
		return nil, fmt.Errorf("metadata: compile schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// ValidateFile reads path, validates it, and decodes it into a Descriptor.
func (v *Validator) ValidateFile(path string) (Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("metadata: read %s: %w", path, err)
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return Descriptor{}, fmt.Errorf("metadata: parse %s: %w", path, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return Descriptor{}, fmt.Errorf("metadata: %s: %w", path, err)
	}

	var d Descriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return Descriptor{}, fmt.Errorf("metadata: decode %s: %w", path, err)
	}
	return d, nil
}

func mustUnmarshal(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
