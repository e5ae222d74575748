// Package conversation answers the latest user turn of a chat history using
// retrieved passages as grounding.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"echodoc/internal/domain"
)

// DefaultSystemTemplate renders retrieved passages into the system turn.
// The template receives a Prompt value.
const DefaultSystemTemplate = `You are a helpful assistant that answers questions based on the provided document excerpts.
Here are relevant excerpts:
{{.Excerpts}}

Respond clearly and concisely based only on the given information unless instructed otherwise.`

// Prompt is the data passed to the system template.
type Prompt struct {
	// Excerpts is the passages rendered as "- text" items separated by blank lines.
	Excerpts string
	Passages []domain.RetrievalResult
}

// Retriever is the part of retriever.Retriever the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error)
}

type Options struct {
	// TopK is passed to the retriever; zero selects the retriever default.
	TopK int
	// Timeout bounds one Continue call; zero disables it.
	Timeout        time.Duration
	SystemTemplate string
}

// Orchestrator is safe for concurrent use; it keeps no conversation state.
type Orchestrator struct {
	retriever Retriever
	completer domain.Completer
	topK      int
	timeout   time.Duration
	tmpl      *template.Template
	logger    *slog.Logger
}

func New(retriever Retriever, completer domain.Completer, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if retriever == nil || completer == nil {
		return nil, fmt.Errorf("%w: orchestrator needs a retriever and a completer", domain.ErrInvalidConfig)
	}
	if opts.TopK < 0 || opts.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative top_k or timeout", domain.ErrInvalidConfig)
	}
	src := opts.SystemTemplate
	if src == "" {
		src = DefaultSystemTemplate
	}
	tmpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: system template: %v", domain.ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		retriever: retriever,
		completer: completer,
		topK:      opts.TopK,
		timeout:   opts.Timeout,
		tmpl:      tmpl,
		logger:    logger,
	}, nil
}

// Continue answers the most recent user turn and returns history with one
// assistant turn appended. On any failure it returns history unchanged along
// with the error.
func (o *Orchestrator) Continue(ctx context.Context, history domain.History) (domain.History, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	reply, err := o.answer(ctx, history)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("conversation: %w: %w", domain.ErrTimeout, err)
		}
		o.logger.Warn("conversation turn failed", "turns", len(history), "error", err)
		return history, err
	}
	return history.Append(domain.Turn{Role: domain.RoleAssistant, Content: reply}), nil
}

func (o *Orchestrator) answer(ctx context.Context, history domain.History) (string, error) {
	last, ok := history.LastUserTurn()
	if !ok {
		return "", domain.ErrMissingUserTurn
	}

	passages, err := o.retriever.Retrieve(ctx, last.Content, o.topK)
	if err != nil {
		return "", fmt.Errorf("conversation: retrieve: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("conversation: after retrieve: %w", err)
	}

	system, err := o.SystemPrompt(passages)
	if err != nil {
		return "", err
	}
	turns := history.Prepend(domain.Turn{Role: domain.RoleSystem, Content: system})

	start := time.Now()
	reply, err := o.completer.Complete(ctx, turns)
	if err != nil {
		if !errors.Is(err, domain.ErrCompletion) {
			err = &domain.ProviderError{Kind: domain.ErrCompletion, Attempts: 1, Err: err}
		}
		return "", fmt.Errorf("conversation: complete: %w", err)
	}
	o.logger.Info("conversation turn answered",
		"passages", len(passages),
		"turns", len(turns),
		"latency", time.Since(start),
	)
	return reply, nil
}

// SystemPrompt renders the system turn for passages. No passages renders an
// empty excerpt list.
func (o *Orchestrator) SystemPrompt(passages []domain.RetrievalResult) (string, error) {
	items := make([]string, len(passages))
	for i, p := range passages {
		items[i] = "- " + p.Text
	}
	var b strings.Builder
	err := o.tmpl.Execute(&b, Prompt{Excerpts: strings.Join(items, "\n\n"), Passages: passages})
	if err != nil {
		return "", fmt.Errorf("conversation: render system prompt: %w", err)
	}
	return b.String(), nil
}
