package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// lineItemSchema constrains the model's response shape before we decode it.
// Every item field is a string; the model is told to preserve the printed
// text verbatim.
const lineItemSchema = `{
	"type": "object",
	"properties": {
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"quantity": {"type": "string"},
					"unit_price": {"type": "string"}
				},
				"required": ["name"]
			}
		}
	},
	"required": ["items"]
}`

var compiledLineItemSchema = jsonschema.MustCompileString("line_items.schema.json", lineItemSchema)

// parseLineItemJSON parses the JSON response from an extraction provider
func parseLineItemJSON(text string) ([]RawLineItem, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if err := compiledLineItemSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match expected shape: %w", err)
	}

	var payload struct {
		Items []RawLineItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}

	// Trim whitespace; leave the text otherwise untouched for the normalizer
	for i := range payload.Items {
		payload.Items[i].Name = strings.TrimSpace(payload.Items[i].Name)
		payload.Items[i].Quantity = strings.TrimSpace(payload.Items[i].Quantity)
		payload.Items[i].UnitPrice = strings.TrimSpace(payload.Items[i].UnitPrice)
	}

	return payload.Items, nil
}
