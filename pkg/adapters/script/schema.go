package script

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// scriptSchema describes the JSON document the model is asked to return.
const scriptSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["title", "description", "full_script"],
	"properties": {
		"title": {"type": "string", "minLength": 1, "maxLength": 100},
		"description": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"full_script": {"type": "string", "minLength": 1},
		"duration_seconds": {"type": "integer", "minimum": 0}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(scriptSchema)

// validateDocument checks the model output against scriptSchema.
func validateDocument(document []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("model output is not valid JSON: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("model output does not match the script schema: %s", strings.Join(problems, "; "))
}

// extractJSON trims code fences and surrounding prose from a model response.
func extractJSON(text string) ([]byte, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start == -1 || end <= start {
		return nil, false
	}

	return []byte(text[start : end+1]), true
}
