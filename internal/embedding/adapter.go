// Package embedding wraps a remote embedding provider with batching, retry
// and rate limiting.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"echodoc/internal/domain"
)

// Options configures the Adapter.
type Options struct {
	// BatchSize bounds the number of texts per provider request.
	BatchSize int
	// MaxAttempts bounds the attempts per batch, first call included.
	MaxAttempts int
	// InitialBackoff is doubled after every failed attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RequestsPerSecond throttles provider calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	// Concurrency is the number of batches in flight at once.
	Concurrency int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:      32,
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Burst:          1,
		Concurrency:    1,
	}
}

// Adapter implements domain.Embedder over a domain.EmbeddingProvider.
// It holds no per-call state and is safe for concurrent use.
type Adapter struct {
	provider domain.EmbeddingProvider
	opts     Options
	limiter  *rate.Limiter
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewAdapter creates an Adapter. Zero option fields take their defaults.
func NewAdapter(provider domain.EmbeddingProvider, opts Options, logger *slog.Logger) *Adapter {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = max(def.MaxBackoff, opts.InitialBackoff)
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, opts.Burst)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}
	return &Adapter{
		provider: provider,
		opts:     opts,
		limiter:  limiter,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// EmbedBatch returns one vector per text, in input order. If any batch fails
// after retries the whole call fails and no vectors are returned.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for start := 0; start < len(texts); start += a.opts.BatchSize {
		end := min(start+a.opts.BatchSize, len(texts))
		g.Go(func() error {
			vectors, err := a.embedWithRetry(gctx, texts[start:end], mode)
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) embedWithRetry(ctx context.Context, batch []string, mode domain.EmbedMode) ([][]float32, error) {
	var lastErr error
	attempt := 0
	for attempt < a.opts.MaxAttempts {
		attempt++
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vectors, err := a.provider.Embed(ctx, mode, batch)
		if err == nil {
			err = checkVectors(vectors, len(batch))
			if err == nil {
				return vectors, nil
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryable(err) {
			break
		}
		if attempt == a.opts.MaxAttempts {
			break
		}
		delay := a.backoff(attempt - 1)
		a.logger.Warn("embedding request failed, retrying",
			"attempt", attempt, "mode", mode.String(), "batch", len(batch), "delay", delay, "err", err)
		if err := a.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, &domain.ProviderError{Kind: domain.ErrEmbeddingProvider, Attempts: attempt, Err: lastErr}
}

func (a *Adapter) backoff(attempt int) time.Duration {
	d := a.opts.InitialBackoff << attempt
	if d <= 0 || d > a.opts.MaxBackoff {
		d = a.opts.MaxBackoff
	}
	return d
}

func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedding: provider returned %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("embedding: empty vector at position %d", i)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryableError marks a provider failure that may succeed on a later attempt,
// such as a network error or a rate-limit response.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so the Adapter retries it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
