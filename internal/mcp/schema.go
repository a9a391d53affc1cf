package mcp

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledSchema pairs a tool's raw JSON Schema with its compiled form.
type compiledSchema struct {
	raw    string
	schema *jsonschema.Schema
}

// compileSchema compiles a tool argument schema following the teacher's
// engine.StructuredValidator pattern: UnmarshalJSON for correct number
// handling, then a fresh compiler per schema.
func compileSchema(name, raw string) (*compiledSchema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return &compiledSchema{raw: raw, schema: schema}, nil
}

// validateArgs checks decoded tool arguments against the compiled schema,
// returning a human-readable error suitable for an InvalidInput result.
func (c *compiledSchema) validateArgs(args map[string]any) error {
	if err := c.schema.Validate(args); err != nil {
		return fmt.Errorf("invalid arguments: %s", err)
	}
	return nil
}
