package domain

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_AppendDoesNotAlias(t *testing.T) {
	base := make(History, 1, 4)
	base[0] = Turn{Role: RoleUser, Content: "hi"}

	a := base.Append(Turn{Role: RoleAssistant, Content: "a"})
	b := base.Append(Turn{Role: RoleAssistant, Content: "b"})

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, "a", a[1].Content)
	assert.Equal(t, "b", b[1].Content)
	assert.Len(t, base, 1)
}

func TestHistory_Prepend(t *testing.T) {
	h := History{{Role: RoleUser, Content: "q"}}
	out := h.Prepend(Turn{Role: RoleSystem, Content: "s"})

	require.Len(t, out, 2)
	assert.Equal(t, RoleSystem, out[0].Role)
	assert.Equal(t, h[0], out[1])
	assert.Len(t, h, 1)
}

func TestHistory_LastUserTurn(t *testing.T) {
	h := History{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "reply2"},
	}
	turn, ok := h.LastUserTurn()
	require.True(t, ok)
	assert.Equal(t, "second", turn.Content)

	_, ok = History{{Role: RoleSystem, Content: "s"}}.LastUserTurn()
	assert.False(t, ok)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
}

func TestProviderError_MatchesKindAndCause(t *testing.T) {
	err := &ProviderError{Kind: ErrEmbeddingProvider, Attempts: 3, Err: io.ErrUnexpectedEOF}

	assert.True(t, errors.Is(err, ErrEmbeddingProvider))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrCompletion))
	assert.Contains(t, err.Error(), "3 attempt(s)")
}

func TestIngestError(t *testing.T) {
	err := &IngestError{DocumentID: "doc", ChunkID: "doc:2", Err: ErrDimensionMismatch}
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, "ingest document doc chunk doc:2: dimension mismatch", err.Error())
}

func TestChunk_Metadata(t *testing.T) {
	c := Chunk{ID: ChunkID("d", 3), DocumentID: "d", Ordinal: 3, Text: "body", CharStart: 10, CharEnd: 14}
	meta := c.Metadata("contract.pdf")

	assert.Equal(t, "d:3", c.ID)
	assert.Equal(t, "body", meta[MetaText])
	assert.Equal(t, "contract.pdf", meta[MetaSource])
	assert.Equal(t, "10", meta[MetaCharStart])
	assert.Equal(t, "14", meta[MetaCharEnd])
}
