package chunker

import (
	"iter"
	"unicode"

	"echodoc/internal/domain"
)

// SentenceChunker is the boundary-aware variant of WindowChunker. It keeps the
// same windows but pulls a window's end back to the last sentence terminator
// inside it, so passages tend to end on whole sentences. Windows without a
// terminator past the overlap are cut by length, as in WindowChunker.
type SentenceChunker struct {
	cfg Config
}

// NewSentenceChunker creates a sentence-aligned window chunker.
func NewSentenceChunker(cfg Config) (*SentenceChunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SentenceChunker{cfg: cfg}, nil
}

func (c *SentenceChunker) Chunk(document domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(document.RawText)
		ordinal := 0
		for start := 0; start < len(runes); {
			end := min(start+c.cfg.MaxChars, len(runes))
			if end < len(runes) {
				end = c.sentenceEnd(runes, start, end)
			}
			if !yield(newChunk(document.ID, ordinal, runes, start, end)) {
				return
			}
			if end == len(runes) {
				return
			}
			ordinal++
			start = end - c.cfg.OverlapChars
		}
	}
}

// sentenceEnd returns the position just after the last terminator in
// runes[start+overlap+1:end], or end when there is none. The result is always
// greater than start+overlap so the next window advances.
func (c *SentenceChunker) sentenceEnd(runes []rune, start, end int) int {
	floor := start + c.cfg.OverlapChars + 1
	for i := end - 1; i >= floor; i-- {
		if isTerminator(runes[i]) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			return i + 1
		}
	}
	return end
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}
