package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-embedding-001"

// GeminiEmbedder generates embeddings with the Google GenAI API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	taskType  string
	dimension int
}

// NewGeminiEmbedder creates a client for the Gemini API backend.
func NewGeminiEmbedder(ctx context.Context, apiKey, model, taskType string, dimension int) (*GeminiEmbedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("gemini output dimension must be positive, got %d", dimension)
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
	if taskType = strings.TrimSpace(taskType); taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	return &GeminiEmbedder{
		client:    client,
		model:     model,
		taskType:  taskType,
		dimension: dimension,
	}, nil
}

// Embed sends all texts in one request; the API batches natively.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(e.dimension)
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             e.taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("genai returned no embedding for input %d", i)
		}
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

func (e *GeminiEmbedder) ModelName() string {
	return e.model
}
