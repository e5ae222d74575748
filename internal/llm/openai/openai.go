// Package openai is a chat completion client for OpenAI-compatible APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"echodoc/internal/domain"
)

const (
	DefaultBaseURL = "https://api.upstage.ai/v1"
	DefaultModel   = "solar-pro"
	DefaultTimeout = 60 * time.Second
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Completer implements domain.Completer. It does not retry.
type Completer struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func New(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: llm API key is required", domain.ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Completer{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *Completer) Model() string { return c.model }

// Complete sends turns in order and returns the first choice's content.
func (c *Completer) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		messages[i] = openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content}
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", &domain.ProviderError{Kind: domain.ErrCompletion, Attempts: 1, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.ProviderError{Kind: domain.ErrCompletion, Attempts: 1, Err: errors.New("response has no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
