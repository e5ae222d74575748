package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig reports caller misconfiguration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrDimensionMismatch reports a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmbeddingProvider reports an embedding provider failure after retries.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrCompletion reports a language model failure.
	ErrCompletion = errors.New("completion error")
	// ErrEmptyIndex signals that there is no context to retrieve. It is not fatal.
	ErrEmptyIndex = errors.New("empty index")
	// ErrMissingUserTurn reports a history without any user turn.
	ErrMissingUserTurn = errors.New("no user message found in history")
	// ErrTimeout reports that the caller-imposed budget was exceeded.
	ErrTimeout = errors.New("timeout")
)

// ProviderError wraps the last underlying cause of a remote dependency failure.
// errors.Is matches both Kind and the cause.
type ProviderError struct {
	Kind     error
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{e.Kind, e.Err} }

// IngestError records which document, and chunk when known, failed to ingest.
type IngestError struct {
	DocumentID string
	ChunkID    string
	Err        error
}

func (e *IngestError) Error() string {
	if e.ChunkID != "" {
		return fmt.Sprintf("ingest document %s chunk %s: %v", e.DocumentID, e.ChunkID, e.Err)
	}
	return fmt.Sprintf("ingest document %s: %v", e.DocumentID, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
