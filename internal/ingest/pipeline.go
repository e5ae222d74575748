// Package ingest chunks, embeds and indexes documents.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"echodoc/internal/domain"
	"echodoc/internal/extract"
)

// Result describes one ingested document.
type Result struct {
	DocumentID string `json:"document_id"`
	SourceName string `json:"source"`
	Chunks     int    `json:"chunks"`
	Summary    string `json:"summary,omitempty"`
}

type Options struct {
	// SummaryMaxSentences bounds the summary; zero disables summarizing.
	SummaryMaxSentences int
}

// Pipeline is safe for concurrent use when its index is.
type Pipeline struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	index      domain.VectorIndex
	summarizer domain.Summarizer
	extractor  domain.Extractor
	opts       Options
	logger     *slog.Logger
}

func NewPipeline(
	chunker domain.Chunker,
	embedder domain.Embedder,
	index domain.VectorIndex,
	summarizer domain.Summarizer,
	extractor domain.Extractor,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		summarizer: summarizer,
		extractor:  extractor,
		opts:       opts,
		logger:     logger,
	}
}

// Ingest stores every chunk of doc or none of them. Failures are reported as
// *domain.IngestError naming the document and, when known, the chunk.
func (p *Pipeline) Ingest(ctx context.Context, doc domain.Document) (Result, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	res := Result{DocumentID: doc.ID, SourceName: doc.SourceName}

	chunks := slices.Collect(p.chunker.Chunk(doc))
	if len(chunks) == 0 {
		p.logger.Info("document has no text", "document_id", doc.ID, "source", doc.SourceName)
		return res, nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts, domain.ModeDocument)
	if err != nil {
		return res, &domain.IngestError{DocumentID: doc.ID, Err: err}
	}
	if len(vectors) != len(chunks) {
		return res, &domain.IngestError{DocumentID: doc.ID,
			Err: fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))}
	}

	dim := p.index.Dimension()
	entries := make([]domain.Entry, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) != dim {
			return res, &domain.IngestError{DocumentID: doc.ID, ChunkID: ch.ID,
				Err: fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vectors[i]), dim)}
		}
		entries[i] = domain.Entry{ChunkID: ch.ID, Vector: vectors[i], Metadata: ch.Metadata(doc.SourceName)}
	}
	if err := ctx.Err(); err != nil {
		return res, &domain.IngestError{DocumentID: doc.ID, Err: err}
	}
	if err := p.index.InsertBatch(ctx, entries); err != nil {
		return res, &domain.IngestError{DocumentID: doc.ID, Err: err}
	}
	res.Chunks = len(entries)

	if p.summarizer != nil && p.opts.SummaryMaxSentences > 0 {
		summary, err := p.summarizer.Summarize(doc.RawText, p.opts.SummaryMaxSentences)
		if err != nil {
			p.logger.Warn("summarize failed", "document_id", doc.ID, "error", err)
		}
		res.Summary = summary
	}

	p.logger.Info("document ingested", "document_id", doc.ID, "source", doc.SourceName, "chunks", res.Chunks)
	return res, nil
}

// IngestFile extracts the text of an uploaded file and ingests it under a new
// document ID.
func (p *Pipeline) IngestFile(ctx context.Context, name string, data []byte) (Result, error) {
	if p.extractor == nil {
		return Result{}, fmt.Errorf("%w: no extractor configured", domain.ErrInvalidConfig)
	}
	text, err := p.extractor.Extract(ctx, name, data)
	if err != nil {
		return Result{}, err
	}
	return p.Ingest(ctx, domain.Document{ID: uuid.NewString(), SourceName: name, RawText: text})
}

// IngestPaths ingests files matching the given paths or glob patterns. Files
// with unsupported extensions are skipped. Document IDs are derived from the
// absolute path so re-ingesting a file replaces its chunks.
func (p *Pipeline) IngestPaths(ctx context.Context, patterns []string) ([]Result, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("ingest: bad pattern %q: %w", pattern, err)
		}
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			if extract.Supported(m) {
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.New("ingest: no supported documents found")
	}

	results := make([]Result, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return results, err
		}
		text, err := p.extractor.Extract(ctx, filepath.Base(path), data)
		if err != nil {
			return results, err
		}
		res, err := p.Ingest(ctx, domain.Document{ID: PathID(path), SourceName: path, RawText: text})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// PathID returns the stable document ID for a file path.
func PathID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}
