// Package completion sends masked prompts to an external chat-completion
// service. Only placeholder-bearing text ever reaches it.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
)

const placeholderSystemPrompt = `You are a helpful assistant. When you see placeholders like [NAME_1], [CREDIT_CARD_1], [EMAIL_1], etc., treat them as actual values and refer to them naturally in your response. Keep the placeholders in your response so they can be unmasked later. Keep your response concise.`

// unsetKey is the value shipped in sample .env files
const unsetKey = "your-openai-api-key-here"

var (
	// ErrNotConfigured means no usable API key is set
	ErrNotConfigured = errors.New("OpenAI API key not configured")
	// ErrEmptyResponse means the service answered without choices
	ErrEmptyResponse = errors.New("completion: empty response")
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Completer produces a reply for masked input
type Completer interface {
	Complete(ctx context.Context, masked string) (string, error)
	Configured() bool
}

// OpenAICompleter calls the chat completions API
type OpenAICompleter struct {
	client      chatClient
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *logger.Logger
}

// New builds a completer from config. Without a key the completer is
// returned unconfigured and every call fails with ErrNotConfigured.
func New(cfg config.CompletionConfig, log *logger.Logger) *OpenAICompleter {
	c := newCompleter(nil, cfg, log)
	if !keyConfigured(cfg.APIKey) {
		return c
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	c.client = openai.NewClientWithConfig(clientCfg)
	return c
}

func newCompleter(client chatClient, cfg config.CompletionConfig, log *logger.Logger) *OpenAICompleter {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      log.WithComponent("completion"),
	}
}

func keyConfigured(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && key != unsetKey
}

// Configured reports whether a client is available
func (c *OpenAICompleter) Configured() bool {
	return c != nil && c.client != nil
}

// Complete sends masked text with the placeholder-preserving system prompt
func (c *OpenAICompleter) Complete(ctx context.Context, masked string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: placeholderSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: masked},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		c.logger.Error("Completion request failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("Completion received",
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}
