package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"

	"agrirec/config"
	"agrirec/internal/port"
	"go.uber.org/zap"
)

// New creates the configured provider wrapped in a Guard.
func New(ctx context.Context, cfg config.EmbeddingConfig, log *zap.Logger) (*Guard, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var (
		inner port.Embedder
		err   error
	)
	switch provider {
	case "", "hash", "mock":
		provider = "hash"
		inner = NewHashEmbedder(cfg.Dimension, cfg.Model)
	case "gemini":
		inner, err = NewGeminiEmbedder(ctx, os.Getenv(cfg.APIKeyEnv), cfg.Model, cfg.TaskType, cfg.Dimension)
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		inner, err = NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, baseURL, cfg.Dimension)
	case "jina":
		inner, err = NewJinaEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension)
	case "deepseek":
		inner, err = NewDeepSeekEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension)
	case "ollama":
		inner, err = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", provider, err)
	}

	return NewGuard(inner, GuardOptions{
		Provider:          provider,
		Dimension:         cfg.Dimension,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, log), nil
}
