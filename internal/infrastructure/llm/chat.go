package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

const (
	defaultMaxTokens = 2048
	defaultTimeout   = 60 * time.Second
)

// OpenAIChat implements ports.ChatClient against any OpenAI-compatible API
// (DeepSeek, Together, Ollama).
type OpenAIChat struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

var _ ports.ChatClient = (*OpenAIChat)(nil)

// NewOpenAIChat builds a client from configuration. SDK retries are disabled.
func NewOpenAIChat(cfg config.LLMConfig, opts ...option.RequestOption) *OpenAIChat {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIChat{
		client:      openai.NewClient(reqOpts...),
		model:       cfg.ChatModel,
		maxTokens:   orDefault(cfg.MaxTokens, defaultMaxTokens),
		temperature: cfg.Temperature,
		timeout:     orDefault(cfg.Timeout, defaultTimeout),
	}
}

// Complete sends one user prompt with an optional system prompt.
func (c *OpenAIChat) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w", domain.ErrEmptyResponse)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat completion: %w", domain.ErrEmptyResponse)
	}
	return content, nil
}

// NewChatClient selects the provider named in cfg.
func NewChatClient(cfg config.LLMConfig) (ports.ChatClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", config.ProviderOpenAI:
		return NewOpenAIChat(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropicChat(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func orDefault[T int64 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
