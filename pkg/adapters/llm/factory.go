package llm

import (
	"fmt"

	"github.com/aescanero/patchwork/pkg/message"
	"go.uber.org/zap"
)

// Config holds LLM router configuration
type Config struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
	System    string `yaml:"system"`
}

// NewRouter creates a completion router based on provider
func NewRouter(cfg Config, logger *zap.Logger) (message.Router, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicRouter(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
