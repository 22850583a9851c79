package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledSchema wraps a compiled JSON Schema so Registry can validate tool
// input payloads before dispatching to the middleware chain.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileSchema compiles a JSON Schema document. A nil or empty raw schema
// yields a nil compiledSchema, meaning "no validation configured" — the
// caller skips the check rather than treating it as an error.
func compileSchema(name Name, raw json.RawMessage) (*compiledSchema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	res, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("tool %s: parse input schema: %w", name, err)
	}
	url := fmt.Sprintf("mem://agentcore/tools/%s/input.json", name)
	if err := c.AddResource(url, res); err != nil {
		return nil, fmt.Errorf("tool %s: add schema resource: %w", name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile input schema: %w", name, err)
	}
	return &compiledSchema{schema: sch}, nil
}

// Validate checks the input payload against the compiled schema. On failure
// it returns a KindInvalidInput Error carrying the validator's detail.
func (c *compiledSchema) Validate(name Name, input json.RawMessage) error {
	if c == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return NewErrorWithCause(KindInvalidInput, fmt.Sprintf("tool %s: input is not valid JSON", name), err)
	}
	if err := c.schema.Validate(v); err != nil {
		return NewErrorWithCause(KindInvalidInput, fmt.Sprintf("tool %s: input failed schema validation", name), err)
	}
	return nil
}
