// Package notify relays short status messages to external channels.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"echodoc/internal/domain"
)

// DefaultMessage replaces an empty message.
const DefaultMessage = "Oops.. seems like something wrong"

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Multi delivers to every notifier and joins their errors.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async sends in the background so callers never wait on delivery. Failures
// are logged and dropped.
type Async struct {
	next    domain.Notifier
	timeout time.Duration
	logger  *slog.Logger
}

func NewAsync(next domain.Notifier, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// Notify returns immediately. The delivery is detached from ctx cancellation.
func (a *Async) Notify(ctx context.Context, message string) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.next.Notify(ctx, message); err != nil {
			a.logger.Warn("notification failed", "error", err)
		}
	}()
	return nil
}

// Message returns message, or DefaultMessage when it is empty.
func Message(message string) string {
	if message == "" {
		return DefaultMessage
	}
	return message
}
