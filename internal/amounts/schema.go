package amounts

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaMismatch is returned when a model payload does not have the
// expected shape
var ErrSchemaMismatch = errors.New("json does not match schema")

const tokensSchemaJSON = `{
  "oneOf": [
    {
      "type": "object",
      "required": ["status", "reason"],
      "properties": {
        "status": {"const": "no_amounts_found"},
        "reason": {"type": "string"}
      }
    },
    {
      "type": "object",
      "required": ["raw_tokens", "currency_hint", "confidence"],
      "properties": {
        "raw_tokens": {
          "type": "array",
          "items": {"type": "string", "pattern": "\\d"}
        },
        "currency_hint": {"type": "string", "minLength": 1, "maxLength": 3},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "status": false
      }
    }
  ]
}`

const classificationSchemaJSON = `{
  "type": "object",
  "required": ["amounts", "confidence"],
  "properties": {
    "amounts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "value"],
        "properties": {
          "type": {"enum": ["total_bill", "paid", "due", "discount", "tax", "subtotal", "other"]},
          "value": {"type": "number", "minimum": 0},
          "entity": {"type": ["string", "null"]}
        }
      }
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var (
	tokensSchema         = jsonschema.MustCompileString("tokens.json", tokensSchemaJSON)
	classificationSchema = jsonschema.MustCompileString("classification.json", classificationSchemaJSON)
)

// decodeValidated checks raw against schema before decoding it into out
func decodeValidated(schema *jsonschema.Schema, raw []byte, out any) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
