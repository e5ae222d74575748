package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_KeepsDocumentOrder(t *testing.T) {
	text := "Refunds are issued within thirty days. The office cat is orange. " +
		"Refunds require a receipt. Refunds for annual plans are prorated."
	s := NewFrequencySummarizer()

	got, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Refunds are issued within thirty days. Refunds require a receipt.", got)
}

func TestSummarize_FewerSentencesThanLimit(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("One short sentence.", 5)
	require.NoError(t, err)
	assert.Equal(t, "One short sentence.", got)
}

func TestSummarize_NoTerminator(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("  a heading without punctuation  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "a heading without punctuation", got)
}

func TestSummarize_Empty(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("   ", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarize_OnlyStopwords(t *testing.T) {
	got, err := NewFrequencySummarizer().Summarize("It is. So it was.", 1)
	require.NoError(t, err)
	assert.Equal(t, "It is.", got)
}
