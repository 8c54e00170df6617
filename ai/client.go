// Package ai is the boundary to the external reasoning capability. A Client
// takes a natural-language instruction plus an optional structured output
// schema and returns either a conforming object or raw text. Scoring calls
// run with low sampling temperature so reruns stay close to deterministic.
package ai

import "context"

// scoringTemperature keeps scoring calls deterministic-leaning.
const scoringTemperature = 0.2

// FieldType enumerates the schema types the evaluation prompts need.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeArray  FieldType = "array"
	TypeObject FieldType = "object"
)

// Field describes one schema field. Items is set for arrays, Fields for
// objects.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Items       *Field
	Fields      []Field
}

// Schema is a provider-neutral structured output contract.
type Schema struct {
	Fields []Field
}

// Required lists the names of the required top-level fields.
func (s *Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Client is implemented per provider (Gemini, OpenAI).
//
// GenerateStructured never fails on a non-JSON response: a malformed payload
// degrades to an empty object so the caller falls back to defaults instead
// of burning retries on a non-transient fault. Transport and API errors are
// returned as-is and are the retryable class.
type Client interface {
	GenerateStructured(ctx context.Context, prompt string, schema *Schema) (map[string]any, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
