package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aescanero/patchwork/pkg/message"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 1024
)

// CompletionRequest is the payload accepted by the completion router
type CompletionRequest struct {
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
}

// CompletionResult is the reply payload of the completion router
type CompletionResult struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// messagesAPI is the part of the Anthropic client the router uses
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicRouter answers prompts with the Anthropic Messages API
type AnthropicRouter struct {
	messages  messagesAPI
	model     string
	maxTokens int64
	system    string
	logger    *zap.Logger
}

// NewAnthropicRouter creates a completion router for Anthropic
func NewAnthropicRouter(cfg Config, logger *zap.Logger) (*AnthropicRouter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return newAnthropicRouter(&client.Messages, cfg, logger), nil
}

func newAnthropicRouter(messages messagesAPI, cfg Config, logger *zap.Logger) *AnthropicRouter {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	return &AnthropicRouter{
		messages:  messages,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		system:    cfg.System,
		logger:    logger,
	}
}

// Handle sends the prompt and replies with the completion text
func (r *AnthropicRouter) Handle(ctx context.Context, msg *message.Message) (*message.Message, error) {
	var req CompletionRequest
	if err := msg.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid completion request: %w", err)
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("invalid completion request: prompt is required")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	system := req.System
	if system == "" {
		system = r.system
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := r.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	r.logger.Debug("completion generated",
		zap.String("message_id", msg.ID),
		zap.String("model", string(resp.Model)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))

	return msg.Reply(CompletionResult{
		Text:         text.String(),
		Model:        string(resp.Model),
		StopReason:   string(resp.StopReason),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})
}
