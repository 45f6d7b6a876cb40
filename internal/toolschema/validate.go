// Package toolschema validates a proposed tool call's input against its
// descriptor's JSON Schema before the call reaches the executor boundary.
package toolschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wintermute-run/wintermute/pkg/models"
)

// schemaCache memoizes compiled schemas keyed by their raw bytes, so a
// tool invoked repeatedly in a session does not recompile its schema on
// every call.
var schemaCache sync.Map

// Validate checks call.Input against desc.Parameters. A descriptor with
// no parameters schema accepts any input, matching a tool author who
// declared no constraints.
func Validate(desc models.ToolDescriptor, call models.ToolCall) error {
	if len(desc.Parameters) == 0 {
		return nil
	}

	schema, err := compile(desc.Name, desc.Parameters)
	if err != nil {
		return fmt.Errorf("toolschema: compile %q: %w", desc.Name, err)
	}

	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("toolschema: decode input for %q: %w", call.Name, err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("toolschema: %q input invalid: %w", call.Name, err)
	}
	return nil
}

func compile(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	key := name + "\x00" + string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
