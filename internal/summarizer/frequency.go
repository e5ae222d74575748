// Package summarizer builds short extractive summaries of uploaded documents.
package summarizer

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"echodoc/internal/textutil"
)

// DefaultMaxSentences is used when callers pass a non-positive limit.
const DefaultMaxSentences = 5

// FrequencySummarizer ranks sentences by the normalized frequency of their
// content words and keeps the best ones in document order.
type FrequencySummarizer struct{}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = textutil.Tokens(sent)
		for _, tok := range tokens[i] {
			if !textutil.IsStopword(tok) {
				freq[tok]++
			}
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}
	if maxF == 0 {
		maxF = 1
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i := range sentences {
		score := 0.0
		for _, tok := range tokens[i] {
			score += freq[tok] / maxF
		}
		// Length-normalized so long sentences don't always win.
		if n := len(tokens[i]); n > 0 {
			score /= math.Sqrt(float64(n))
		}
		scores[i] = ranked{i, score}
	}
	slices.SortStableFunc(scores, func(a, b ranked) int { return cmp.Compare(b.score, a.score) })

	selected := make([]int, 0, maxSentences)
	for _, r := range scores[:min(maxSentences, len(scores))] {
		selected = append(selected, r.idx)
	}
	slices.Sort(selected)

	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = strings.TrimSpace(sentences[idx])
	}
	return strings.Join(out, " "), nil
}
