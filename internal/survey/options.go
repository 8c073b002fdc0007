package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gather-app/gather/pkg/models"
	"github.com/qri-io/jsonschema"
)

// Option payload shapes by question type. Choice questions carry a flat
// list of option labels; matrix questions carry a rows/columns grid. The
// remaining types take no options at all.
const (
	choiceOptionsSchema = `{
		"type": "array",
		"minItems": 1,
		"maxItems": 100,
		"items": {"type": "string", "minLength": 1, "maxLength": 500}
	}`

	matrixOptionsSchema = `{
		"type": "object",
		"required": ["rows", "columns"],
		"additionalProperties": false,
		"properties": {
			"rows": {
				"type": "array",
				"minItems": 1,
				"maxItems": 100,
				"items": {"type": "string", "minLength": 1, "maxLength": 200}
			},
			"columns": {
				"type": "array",
				"minItems": 1,
				"maxItems": 100,
				"items": {"type": "string", "minLength": 1, "maxLength": 200}
			}
		}
	}`
)

var (
	optionSchemasOnce sync.Once
	optionSchemas     map[models.QuestionType]*jsonschema.Schema
	optionSchemasErr  error
)

func compiledOptionSchemas() (map[models.QuestionType]*jsonschema.Schema, error) {
	optionSchemasOnce.Do(func() {
		sources := map[models.QuestionType]string{
			models.QuestionTypeMultipleChoice: choiceOptionsSchema,
			models.QuestionTypeCheckbox:       choiceOptionsSchema,
			models.QuestionTypeMatrix:         matrixOptionsSchema,
			models.QuestionTypeMatrixSingle:   matrixOptionsSchema,
		}
		cache := make(map[models.QuestionType]*jsonschema.Schema, len(sources))
		for qt, src := range sources {
			rs := &jsonschema.Schema{}
			if err := json.Unmarshal([]byte(src), rs); err != nil {
				optionSchemasErr = fmt.Errorf("compile options schema for %s: %w", qt, err)
				return
			}
			cache[qt] = rs
		}
		optionSchemas = cache
	})
	return optionSchemas, optionSchemasErr
}

// ValidateOptions checks a question's raw options payload against the shape
// its type expects. Absent or null options are fine for every type; types
// without option semantics reject anything else.
func ValidateOptions(ctx context.Context, qt models.QuestionType, options json.RawMessage) error {
	if len(options) == 0 || string(options) == "null" {
		return nil
	}

	schemas, err := compiledOptionSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[qt]
	if !ok {
		return fmt.Errorf("question type %s does not take options", qt)
	}

	verrs, err := schema.ValidateBytes(ctx, options)
	if err != nil {
		return fmt.Errorf("options is not valid JSON: %w", err)
	}
	if len(verrs) > 0 {
		var sb strings.Builder
		for i, v := range verrs {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(v.Message)
		}
		return fmt.Errorf("invalid options for %s: %s", qt, sb.String())
	}
	return nil
}
