package domain

import (
	"context"
	"iter"
)

// Chunker splits documents into chunks suitable for retrieval indexing.
// The returned sequence is lazy and may be ranged over more than once.
type Chunker interface {
	Chunk(document Document) iter.Seq[Chunk]
}

// EmbeddingProvider is the remote capability that turns texts into vectors.
// Vectors are returned in the order of texts.
type EmbeddingProvider interface {
	Embed(ctx context.Context, mode EmbedMode, texts []string) ([][]float32, error)
}

// Embedder produces vectors for ingestion and query time.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}

// VectorIndex stores vectors and supports k-nearest-neighbour search.
type VectorIndex interface {
	Dimension() int
	Insert(ctx context.Context, entry Entry) error
	// InsertBatch stores all entries or none of them.
	InsertBatch(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int) ([]RetrievalResult, error)
	Len(ctx context.Context) (int, error)
}

// Completer is the language model capability.
type Completer interface {
	Complete(ctx context.Context, turns []Turn) (string, error)
}

// Notifier delivers a status string to an external channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Extractor converts an uploaded file into raw text.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
