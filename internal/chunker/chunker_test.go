package chunker

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echodoc/internal/domain"
)

func doc(text string) domain.Document {
	return domain.Document{ID: "doc", SourceName: "doc.txt", RawText: text}
}

// assertCovers checks that the union of chunk ranges is [0, n) and that every
// chunk's text matches its offsets.
func assertCovers(t *testing.T, text string, chunks []domain.Chunk) {
	t.Helper()
	runes := []rune(text)
	covered := 0
	for i, c := range chunks {
		require.Less(t, c.CharStart, c.CharEnd, "chunk %d is empty", i)
		require.LessOrEqual(t, c.CharEnd, len(runes))
		require.LessOrEqual(t, c.CharStart, covered, "gap before chunk %d", i)
		assert.Equal(t, string(runes[c.CharStart:c.CharEnd]), c.Text)
		assert.Equal(t, i, c.Ordinal)
		covered = max(covered, c.CharEnd)
	}
	assert.Equal(t, len(runes), covered)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{MaxChars: 100, OverlapChars: 20}, true},
		{"no overlap", Config{MaxChars: 1, OverlapChars: 0}, true},
		{"zero max", Config{MaxChars: 0}, false},
		{"negative max", Config{MaxChars: -5}, false},
		{"overlap equals max", Config{MaxChars: 10, OverlapChars: 10}, false},
		{"negative overlap", Config{MaxChars: 10, OverlapChars: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
		})
	}
}

func TestNewWindowChunker_InvalidConfig(t *testing.T) {
	_, err := NewWindowChunker(Config{MaxChars: 10, OverlapChars: 12})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestWindowChunker_KnownWindows(t *testing.T) {
	c, err := NewWindowChunker(Config{MaxChars: 100, OverlapChars: 20})
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 25)
	chunks := slices.Collect(c.Chunk(doc(text)))

	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 80, chunks[1].CharStart)
	assert.Equal(t, 160, chunks[2].CharStart)
	assert.Equal(t, 250, chunks[2].CharEnd)
	assert.Equal(t, "doc:2", chunks[2].ID)
	assertCovers(t, text, chunks)
}

func TestWindowChunker_EmptyText(t *testing.T) {
	c, err := NewWindowChunker(Config{MaxChars: 10})
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(c.Chunk(doc(""))))
}

func TestWindowChunker_ShortText(t *testing.T) {
	c, err := NewWindowChunker(Config{MaxChars: 100, OverlapChars: 20})
	require.NoError(t, err)

	chunks := slices.Collect(c.Chunk(doc("short")))
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Text)
	assert.Equal(t, 5, chunks[0].CharEnd)
}

func TestWindowChunker_Coverage(t *testing.T) {
	text := strings.Repeat("The lessee shall pay rent monthly. ", 40)
	for _, cfg := range []Config{
		{MaxChars: 1, OverlapChars: 0},
		{MaxChars: 7, OverlapChars: 3},
		{MaxChars: 64, OverlapChars: 0},
		{MaxChars: 100, OverlapChars: 99},
		{MaxChars: 5000, OverlapChars: 10},
	} {
		c, err := NewWindowChunker(cfg)
		require.NoError(t, err)
		assertCovers(t, text, slices.Collect(c.Chunk(doc(text))))
	}
}

func TestWindowChunker_MultibyteText(t *testing.T) {
	c, err := NewWindowChunker(Config{MaxChars: 4, OverlapChars: 1})
	require.NoError(t, err)

	text := "договор аренды"
	chunks := slices.Collect(c.Chunk(doc(text)))
	assertCovers(t, text, chunks)
	assert.Equal(t, "дого", chunks[0].Text)
}

func TestWindowChunker_Restartable(t *testing.T) {
	c, err := NewWindowChunker(Config{MaxChars: 10, OverlapChars: 2})
	require.NoError(t, err)

	seq := c.Chunk(doc(strings.Repeat("x", 55)))
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
}

func TestWindowChunker_EarlyStop(t *testing.T) {
	c, err := NewWindowChunker(Config{MaxChars: 10})
	require.NoError(t, err)

	n := 0
	for range c.Chunk(doc(strings.Repeat("x", 100))) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestSentenceChunker_EndsOnSentence(t *testing.T) {
	c, err := NewSentenceChunker(Config{MaxChars: 40, OverlapChars: 5})
	require.NoError(t, err)

	text := "The term is one year. Rent is due monthly. Either party may terminate."
	chunks := slices.Collect(c.Chunk(doc(text)))

	require.NotEmpty(t, chunks)
	assert.Equal(t, "The term is one year.", chunks[0].Text)
	assertCovers(t, text, chunks)
}

func TestSentenceChunker_FallsBackToLength(t *testing.T) {
	c, err := NewSentenceChunker(Config{MaxChars: 100, OverlapChars: 20})
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 25)
	chunks := slices.Collect(c.Chunk(doc(text)))

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 80, 160}, []int{chunks[0].CharStart, chunks[1].CharStart, chunks[2].CharStart})
	assertCovers(t, text, chunks)
}

func TestSentenceChunker_Coverage(t *testing.T) {
	text := strings.Repeat("Clause applies. Another clause follows here! Does it? ", 30)
	for _, cfg := range []Config{
		{MaxChars: 3, OverlapChars: 2},
		{MaxChars: 50, OverlapChars: 10},
		{MaxChars: 200, OverlapChars: 0},
	} {
		c, err := NewSentenceChunker(cfg)
		require.NoError(t, err)
		assertCovers(t, text, slices.Collect(c.Chunk(doc(text))))
	}
}
