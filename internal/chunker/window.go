// Package chunker splits document text into overlapping passages.
package chunker

import (
	"fmt"
	"iter"

	"echodoc/internal/domain"
)

// Defaults used when the config does not set a window.
const (
	DefaultMaxChars     = 1000
	DefaultOverlapChars = 200
)

// Config is a character window with overlap.
type Config struct {
	MaxChars     int
	OverlapChars int
}

// Validate rejects windows that would not advance.
func (c Config) Validate() error {
	if c.MaxChars <= 0 {
		return fmt.Errorf("%w: max_chars must be positive, got %d", domain.ErrInvalidConfig, c.MaxChars)
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChars {
		return fmt.Errorf("%w: overlap_chars must be in [0, %d), got %d", domain.ErrInvalidConfig, c.MaxChars, c.OverlapChars)
	}
	return nil
}

// WindowChunker splits text purely by length. Each window holds at most
// MaxChars characters and starts MaxChars-OverlapChars after the previous one.
type WindowChunker struct {
	cfg Config
}

// NewWindowChunker creates a length-based chunker.
func NewWindowChunker(cfg Config) (*WindowChunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WindowChunker{cfg: cfg}, nil
}

// Chunk returns the document's chunks. Empty text yields no chunks.
func (c *WindowChunker) Chunk(document domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(document.RawText)
		ordinal := 0
		for start := 0; start < len(runes); {
			end := min(start+c.cfg.MaxChars, len(runes))
			if !yield(newChunk(document.ID, ordinal, runes, start, end)) {
				return
			}
			if end == len(runes) {
				return
			}
			ordinal++
			start += c.cfg.MaxChars - c.cfg.OverlapChars
		}
	}
}

func newChunk(documentID string, ordinal int, runes []rune, start, end int) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(documentID, ordinal),
		DocumentID: documentID,
		Ordinal:    ordinal,
		Text:       string(runes[start:end]),
		CharStart:  start,
		CharEnd:    end,
	}
}
