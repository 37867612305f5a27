// Package llm wraps the chat completion model used for column selection,
// the tabular agent and chart specs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/config"
)

// ErrEmptyResponse is returned when the model replies with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// NewChatModel creates the tool-calling chat model for cfg. Only the
// OpenAI-compatible provider is supported; BaseURL may point at any
// compatible endpoint.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "openai-compatible":
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return chatModel, nil
}

// Request is a single system+user completion.
type Request struct {
	System      string
	User        string
	Temperature float32
}

// Completer answers a single prompt with text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ChatCompleter implements Completer on an eino chat model.
type ChatCompleter struct {
	model   model.BaseChatModel
	timeout time.Duration
	logger  *zap.Logger
}

// NewChatCompleter creates a completer. A zero timeout leaves calls bounded
// only by ctx.
func NewChatCompleter(m model.BaseChatModel, timeout time.Duration, logger *zap.Logger) *ChatCompleter {
	return &ChatCompleter{model: m, timeout: timeout, logger: logger.Named("llm")}
}

// Complete sends req and returns the trimmed reply.
func (c *ChatCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.User))

	start := time.Now()
	resp, err := c.model.Generate(ctx, msgs, model.WithTemperature(req.Temperature))
	if err != nil {
		c.logger.Warn("completion failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("completion", zap.Duration("elapsed", time.Since(start)), zap.Int("chars", len(resp.Content)))
	return strings.TrimSpace(resp.Content), nil
}
