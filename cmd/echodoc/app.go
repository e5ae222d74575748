package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"echodoc/internal/chunker"
	"echodoc/internal/config"
	"echodoc/internal/conversation"
	"echodoc/internal/domain"
	"echodoc/internal/embedding"
	"echodoc/internal/embedding/hashing"
	embopenai "echodoc/internal/embedding/openai"
	"echodoc/internal/extract"
	"echodoc/internal/ingest"
	llmopenai "echodoc/internal/llm/openai"
	"echodoc/internal/notify"
	natsnotify "echodoc/internal/notify/nats"
	"echodoc/internal/notify/slack"
	"echodoc/internal/policy"
	"echodoc/internal/retriever"
	"echodoc/internal/summarizer"
	"echodoc/internal/vectorindex"
	"echodoc/internal/vectorindex/qdrant"
)

// app holds the components assembled from configuration.
type app struct {
	cfg    *config.AppConfig
	logger *slog.Logger

	index domain.VectorIndex
	// memIndex is set when the in-memory index is used, for persistence.
	memIndex *vectorindex.Index

	extractor    *extract.Extractor
	pipeline     *ingest.Pipeline
	retriever    *retriever.Retriever
	orchestrator *conversation.Orchestrator
	checklist    *policy.Builder
	notifier     domain.Notifier

	closers []func() error
}

// newApp wires every component. The language model is only built when
// withLLM is set so indexing works without a completion key.
func newApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, withLLM bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, extractor: extract.New()}

	ch, err := buildChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := buildEmbedder(cfg.Embedder, logger)
	if err != nil {
		return nil, err
	}
	if err := a.buildIndex(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency":
		sum = summarizer.NewFrequencySummarizer()
	case "none":
	default:
		a.Close()
		return nil, fmt.Errorf("%w: unknown summarizer %q", domain.ErrInvalidConfig, cfg.Summarizer.Type)
	}

	a.pipeline = ingest.NewPipeline(ch, emb, a.index, sum, a.extractor,
		ingest.Options{SummaryMaxSentences: cfg.Summarizer.MaxSentences}, logger)
	a.retriever = retriever.New(emb, a.index, cfg.Retrieval.TopK, logger)

	if withLLM {
		completer, err := buildCompleter(cfg.LLM)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.orchestrator, err = conversation.New(a.retriever, completer, conversation.Options{
			TopK:           cfg.Retrieval.TopK,
			Timeout:        cfg.ConversationTimeout(),
			SystemTemplate: cfg.Conversation.SystemTemplate,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.checklist = policy.NewBuilder(completer)
	}

	if err := a.buildNotifier(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func buildChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	cc := chunker.Config{MaxChars: cfg.MaxChars, OverlapChars: cfg.OverlapChars}
	switch cfg.Type {
	case "window":
		return chunker.NewWindowChunker(cc)
	case "sentence":
		return chunker.NewSentenceChunker(cc)
	default:
		return nil, fmt.Errorf("%w: unknown chunker %q", domain.ErrInvalidConfig, cfg.Type)
	}
}

func buildEmbedder(cfg config.EmbedderConfig, logger *slog.Logger) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing":
		return embedding.NewAdapter(hashing.New(cfg.Dimension), embedding.Options{}, logger), nil
	case "openai":
		o := cfg.OpenAI
		key, err := config.Secret(o.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		provider, err := embopenai.New(embopenai.Config{
			APIKey:        key,
			BaseURL:       o.BaseURL,
			DocumentModel: o.DocumentModel,
			QueryModel:    o.QueryModel,
			Timeout:       time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return embedding.NewAdapter(provider, embedding.Options{
			BatchSize:         o.BatchSize,
			MaxAttempts:       o.MaxAttempts,
			InitialBackoff:    time.Duration(o.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:        time.Duration(o.MaxBackoffMS) * time.Millisecond,
			RequestsPerSecond: o.RequestsPerSecond,
			Concurrency:       o.Concurrency,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfig, cfg.Type)
	}
}

func buildCompleter(cfg config.LLMConfig) (domain.Completer, error) {
	if cfg.Type != "openai" {
		return nil, fmt.Errorf("%w: unknown llm %q", domain.ErrInvalidConfig, cfg.Type)
	}
	key, err := config.Secret(cfg.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	return llmopenai.New(llmopenai.Config{
		APIKey:      key,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
	})
}

func (a *app) buildIndex(ctx context.Context) error {
	dim := a.cfg.Embedder.Dimension
	switch a.cfg.VectorIndex.Type {
	case "memory":
		ix, err := a.loadMemoryIndex(ctx, dim)
		if err != nil {
			return err
		}
		a.index, a.memIndex = ix, ix
	case "qdrant":
		q := a.cfg.VectorIndex.Qdrant
		var key string
		if q.APIKeyEnv != "" {
			key = os.Getenv(q.APIKeyEnv)
		}
		st, err := qdrant.New(qdrant.Config{Addr: q.Addr, APIKey: key, Collection: q.Collection, Dimension: dim})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, st.Close)
		if err := st.Init(ctx); err != nil {
			return err
		}
		a.index = st
	default:
		return fmt.Errorf("%w: unknown vector index %q", domain.ErrInvalidConfig, a.cfg.VectorIndex.Type)
	}
	return nil
}

// loadMemoryIndex restores the snapshot when one exists and starts empty
// otherwise.
func (a *app) loadMemoryIndex(ctx context.Context, dim int) (*vectorindex.Index, error) {
	path := a.cfg.VectorIndex.SnapshotPath()
	if path == "" {
		return vectorindex.New(dim)
	}
	ix, err := vectorindex.LoadFile(path, dim)
	switch {
	case err == nil:
		n, _ := ix.Len(ctx)
		a.logger.Info("index loaded", "path", path, "entries", n)
		return ix, nil
	case errors.Is(err, os.ErrNotExist):
		return vectorindex.New(dim)
	default:
		return nil, fmt.Errorf("load index %s: %w", path, err)
	}
}

func (a *app) buildNotifier() error {
	var targets notify.Multi
	if s := a.cfg.Notify.Slack; s != nil {
		url, err := config.Secret(s.WebhookURLEnv)
		if err != nil {
			return err
		}
		n, err := slack.New(url, 10*time.Second)
		if err != nil {
			return err
		}
		targets = append(targets, n)
	}
	if c := a.cfg.Notify.NATS; c != nil {
		n, err := natsnotify.Connect(c.URL, c.Subject)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, n.Close)
		targets = append(targets, n)
	}
	if len(targets) == 0 {
		a.notifier = notify.Nop{}
		return nil
	}
	a.notifier = targets
	return nil
}

// persist saves the in-memory index snapshot when a path is configured.
// Concurrent uploads may call it at once; SaveFile orders the writes.
func (a *app) persist() error {
	path := a.cfg.VectorIndex.SnapshotPath()
	if a.memIndex == nil || path == "" {
		return nil
	}
	if err := a.memIndex.SaveFile(path); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
