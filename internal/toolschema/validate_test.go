package toolschema

import (
	"encoding/json"
	"testing"

	"github.com/wintermute-run/wintermute/pkg/models"
)

func descriptor(schema string) models.ToolDescriptor {
	return models.ToolDescriptor{Name: "utc_time", Parameters: json.RawMessage(schema)}
}

func TestValidateAcceptsMatchingInput(t *testing.T) {
	desc := descriptor(`{
		"type": "object",
		"properties": {"format": {"type": "string"}},
		"required": ["format"]
	}`)
	call := models.ToolCall{Name: "utc_time", Input: json.RawMessage(`{"format":"rfc3339"}`)}

	if err := Validate(desc, call); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	desc := descriptor(`{
		"type": "object",
		"properties": {"format": {"type": "string"}},
		"required": ["format"]
	}`)
	call := models.ToolCall{Name: "utc_time", Input: json.RawMessage(`{}`)}

	if err := Validate(desc, call); err == nil {
		t.Fatal("expected error for missing required field")
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	desc := descriptor(`{
		"type": "object",
		"properties": {"count": {"type": "integer"}}
	}`)
	call := models.ToolCall{Name: "utc_time", Input: json.RawMessage(`{"count":"not-a-number"}`)}

	if err := Validate(desc, call); err == nil {
		t.Fatal("expected error for wrong type")
	}
}

func TestValidateNoSchemaAcceptsAnything(t *testing.T) {
	desc := models.ToolDescriptor{Name: "no_schema"}
	call := models.ToolCall{Name: "no_schema", Input: json.RawMessage(`{"anything":true}`)}

	if err := Validate(desc, call); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateEmptyInputDefaultsToEmptyObject(t *testing.T) {
	desc := descriptor(`{"type": "object"}`)
	call := models.ToolCall{Name: "utc_time"}

	if err := Validate(desc, call); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
