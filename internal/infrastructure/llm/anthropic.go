package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

// AnthropicChat implements ports.ChatClient with the Messages API.
type AnthropicChat struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

var _ ports.ChatClient = (*AnthropicChat)(nil)

// NewAnthropicChat builds a client from configuration. SDK retries are disabled.
func NewAnthropicChat(cfg config.LLMConfig, opts ...option.RequestOption) *AnthropicChat {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := anthropic.Model(cfg.ChatModel)
	if cfg.ChatModel == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}

	return &AnthropicChat{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		maxTokens:   orDefault(cfg.MaxTokens, defaultMaxTokens),
		temperature: cfg.Temperature,
		timeout:     orDefault(cfg.Timeout, defaultTimeout),
	}
}

// Complete sends one user prompt with an optional system prompt.
func (c *AnthropicChat) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("anthropic message: %w", domain.ErrEmptyResponse)
	}
	return content, nil
}
