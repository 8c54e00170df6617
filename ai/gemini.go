package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultGeminiEmbedModel = "text-embedding-004"

	// Matches the dimensionality of the seeded context collection.
	embeddingDimensions = 384
)

// GeminiClient implements Client on the Gemini API backend.
type GeminiClient struct {
	client     *genai.Client
	model      string
	embedModel string
	log        *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		embedModel: defaultGeminiEmbedModel,
		log:        log.With(zap.String("provider", "gemini"), zap.String("model", model)),
	}, nil
}

// GenerateStructured runs a schema-constrained generation and leniently
// decodes the response.
func (g *GeminiClient) GenerateStructured(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](scoringTemperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(schema),
	}

	raw, err := g.generate(ctx, prompt, cfg)
	if err != nil {
		return nil, err
	}

	return decodeLenient(raw, g.log), nil
}

// GenerateText runs an unconstrained generation and returns the raw text.
// An empty response is not an error; callers substitute their fallback.
func (g *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](scoringTemperature),
	}
	return g.generate(ctx, prompt, cfg)
}

// Embed returns one embedding vector per input text.
func (g *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr[int32](embeddingDimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			continue
		}
		vectors = append(vectors, e.Values)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed content: got %d vectors for %d texts", len(vectors), len(texts))
	}

	return vectors, nil
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	return objectSchema(s.Fields, "")
}

func objectSchema(fields []Field, description string) *genai.Schema {
	props := make(map[string]*genai.Schema, len(fields))
	var required []string

	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}

	return &genai.Schema{
		Type:        genai.TypeObject,
		Description: description,
		Properties:  props,
		Required:    required,
	}
}

func fieldSchema(f Field) *genai.Schema {
	switch f.Type {
	case TypeNumber:
		return &genai.Schema{Type: genai.TypeNumber, Description: f.Description}
	case TypeArray:
		var items *genai.Schema
		if f.Items != nil {
			items = fieldSchema(*f.Items)
		}
		return &genai.Schema{Type: genai.TypeArray, Description: f.Description, Items: items}
	case TypeObject:
		return objectSchema(f.Fields, f.Description)
	default:
		return &genai.Schema{Type: genai.TypeString, Description: f.Description}
	}
}
