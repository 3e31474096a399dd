package inference

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const mappingSchemaJSON = `{
  "type": "object",
  "properties": {
    "manufacturer_part_number": {"type": ["string", "null"], "description": "Column header holding the manufacturer part number (MPN)."},
    "designators": {"type": ["string", "null"], "description": "Column header holding the reference designators."},
    "quantity": {"type": ["string", "null"], "description": "Column header holding the quantity."},
    "description": {"type": ["string", "null"], "description": "Column header holding the free-text description."}
  }
}`

const parsedItemSchemaJSON = `{
  "type": "object",
  "required": ["designators", "parameters"],
  "properties": {
    "original_row_text": {"type": ["string", "null"]},
    "manufacturer_part_number": {"type": ["string", "null"], "description": "The primary manufacturer part number (MPN)."},
    "designators": {"type": "array", "items": {"type": "string"}, "description": "Every reference designator, e.g. [\"R1\", \"R2\"]."},
    "quantity": {"type": ["integer", "null"], "minimum": 0, "description": "Total quantity for this line item."},
    "parameters": {
      "type": "object",
      "properties": {
        "electrical_value": {"type": ["string", "null"], "description": "Primary electrical value, e.g. 100nF or 10kΩ."},
        "tolerance": {"type": ["string", "null"], "description": "Tolerance, e.g. 1% or ±5%."},
        "voltage": {"type": ["string", "null"], "description": "Voltage rating, e.g. 25V."},
        "package_footprint": {"type": ["string", "null"], "description": "Package or footprint, e.g. 0603 or SOT-23-3."}
      }
    },
    "parsing_notes": {"type": ["string", "null"], "description": "Any ambiguity found while parsing."}
  }
}`

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["is_valid", "reasoning"],
  "properties": {
    "is_valid": {"type": "boolean"},
    "reasoning": {"type": "string", "minLength": 1, "description": "One sentence."}
  }
}`

const questionsSchemaJSON = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
  }
}`

var (
	mappingSchema    = mustCompile("mapping.json", mappingSchemaJSON)
	parsedItemSchema = mustCompile("parsed_item.json", parsedItemSchemaJSON)
	verdictSchema    = mustCompile("verdict.json", verdictSchemaJSON)
	questionsSchema  = mustCompile("questions.json", questionsSchemaJSON)
)

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

// decodeValidated extracts the JSON object from text, validates it against
// schema and decodes it into out.
func decodeValidated(text string, schema *jsonschema.Schema, out any) error {
	raw := cleanJSON(text)
	if raw == "" {
		return eris.Wrap(ErrInvalidOutput, "empty response")
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return eris.Wrapf(ErrInvalidOutput, "not json: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return eris.Wrapf(ErrInvalidOutput, "schema mismatch: %v", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return eris.Wrapf(ErrInvalidOutput, "decode: %v", err)
	}
	return nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
