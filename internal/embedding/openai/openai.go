// Package openai is an OpenAI-compatible embedding provider. The defaults
// target Upstage, which exposes separate passage and query models.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"echodoc/internal/domain"
	"echodoc/internal/embedding"
)

// Default configuration values.
const (
	DefaultBaseURL       = "https://api.upstage.ai/v1"
	DefaultDocumentModel = "embedding-passage"
	DefaultQueryModel    = "embedding-query"
	DefaultTimeout       = 30 * time.Second
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	APIKey  string
	BaseURL string
	// DocumentModel embeds passages at ingestion time.
	DocumentModel string
	// QueryModel embeds questions at query time.
	QueryModel string
	Timeout    time.Duration
}

// Provider implements domain.EmbeddingProvider.
type Provider struct {
	client        *openai.Client
	documentModel string
	queryModel    string
}

// New creates a new embeddings provider using the provided configuration.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is required", domain.ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DocumentModel == "" {
		cfg.DocumentModel = DefaultDocumentModel
	}
	if cfg.QueryModel == "" {
		cfg.QueryModel = DefaultQueryModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Provider{
		client:        openai.NewClientWithConfig(oc),
		documentModel: cfg.DocumentModel,
		queryModel:    cfg.QueryModel,
	}, nil
}

// Model returns the provider model used for mode.
func (p *Provider) Model(mode domain.EmbedMode) string {
	if mode == domain.ModeQuery {
		return p.queryModel
	}
	return p.documentModel
}

// Embed sends one request for all texts and orders the vectors by the
// response index.
func (p *Provider) Embed(ctx context.Context, mode domain.EmbedMode, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.Model(mode)),
	})
	if err != nil {
		// A client timeout also matches context.DeadlineExceeded, so only the
		// caller's own context decides whether to stop.
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// classify marks rate limits, server errors and transport failures, timeouts
// included, as retryable.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return embedding.Retryable(err)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return embedding.Retryable(err)
		}
		return err
	}
	return embedding.Retryable(err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
