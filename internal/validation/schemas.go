package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator checks the JSONB feature payloads written by the analysis
// pipeline before the engine decodes them. The pipeline is a separate
// codebase, so its blobs are treated as untrusted input: anything that fails
// its schema is downgraded to "absent" by the caller instead of aborting the
// scoring request.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// Feature payload schemas. Kept inline: they version together with the
// decoder types in pkg/models.
var schemaSources = map[string]string{
	"mbti-axes": `{
		"type": "object",
		"properties": {
			"e": {"type": "number", "minimum": 0},
			"i": {"type": "number", "minimum": 0},
			"s": {"type": "number", "minimum": 0},
			"n": {"type": "number", "minimum": 0},
			"t": {"type": "number", "minimum": 0},
			"f": {"type": "number", "minimum": 0},
			"j": {"type": "number", "minimum": 0},
			"p": {"type": "number", "minimum": 0}
		},
		"additionalProperties": false
	}`,
	"big5-traits": `{
		"type": "object",
		"properties": {
			"openness": {"type": "number", "minimum": 0, "maximum": 1},
			"conscientiousness": {"type": "number", "minimum": 0, "maximum": 1},
			"extraversion": {"type": "number", "minimum": 0, "maximum": 1},
			"agreeableness": {"type": "number", "minimum": 0, "maximum": 1},
			"neuroticism": {"type": "number", "minimum": 0, "maximum": 1}
		},
		"required": ["openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism"],
		"additionalProperties": false
	}`,
	"emotion-distribution": `{
		"type": "object",
		"additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
	}`,
	"lifestyle-vector": `{
		"type": "array",
		"items": {"type": "number"}
	}`,
}

// NewSchemaValidator compiles the embedded schemas. Compilation failure is a
// programming error, not runtime input, so it is returned rather than logged.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema, len(schemaSources)),
	}

	for name, source := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return sv, nil
}

// ValidateBytes checks raw JSONB bytes against a named schema.
func (sv *SchemaValidator) ValidateBytes(schemaName string, data []byte) error {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return fmt.Errorf("schema %q not found", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema %q validation: %w", schemaName, err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("schema %q: %s", schemaName, errs[0].String())
		}
		return fmt.Errorf("schema %q: payload invalid", schemaName)
	}

	return nil
}
