package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIClient implements Client on the OpenAI API. It is the alternate
// provider; the structured contract is enforced through JSON response mode
// plus a schema description appended to the prompt.
type OpenAIClient struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewOpenAIClient(apiKey, model string, log *zap.Logger) (*OpenAIClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log.With(zap.String("provider", "openai"), zap.String("model", model)),
	}, nil
}

func (c *OpenAIClient) GenerateStructured(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	full := prompt
	if schema != nil {
		full = prompt + "\n\nRespond with a single JSON object using exactly these fields:\n" + describeSchema(schema)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: scoringTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: full},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: no choices returned")
	}

	return decodeLenient(resp.Choices[0].Message.Content, c.log), nil
}

func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: scoringTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.SmallEmbedding3,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	vectors := make([][]float32, 0, len(resp.Data))
	for _, d := range resp.Data {
		vectors = append(vectors, d.Embedding)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d texts", len(vectors), len(texts))
	}

	return vectors, nil
}

func describeSchema(s *Schema) string {
	var b strings.Builder
	describeFields(&b, s.Fields, 0)
	return b.String()
}

func describeFields(b *strings.Builder, fields []Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		required := "optional"
		if f.Required {
			required = "required"
		}
		fmt.Fprintf(b, "%s- %s (%s, %s): %s\n", indent, f.Name, f.Type, required, f.Description)
		if f.Type == TypeArray && f.Items != nil && len(f.Items.Fields) > 0 {
			fmt.Fprintf(b, "%s  each item has:\n", indent)
			describeFields(b, f.Items.Fields, depth+2)
		}
		if f.Type == TypeObject {
			describeFields(b, f.Fields, depth+1)
		}
	}
}
