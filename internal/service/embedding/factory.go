package embedding

import (
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/zhouzirui/rag-chatbot/backend/internal/config"
)

// New builds the embedder selected by cfg.Embedder.
func New(cfg config.VectorConfig) (embedding.Embedder, error) {
	switch cfg.Embedder {
	case "hashing", "":
		return NewHashing(cfg.Dimensions), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			BaseURL:   cfg.EmbeddingBaseURL,
			APIKeyEnv: cfg.EmbeddingAPIKeyEnv,
			Model:     cfg.EmbeddingModel,
			Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", config.ErrConfiguration, cfg.Embedder)
	}
}
