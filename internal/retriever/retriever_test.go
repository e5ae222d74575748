package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echodoc/internal/domain"
	"echodoc/internal/vectorindex"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
	mode   domain.EmbedMode
	texts  []string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	f.calls++
	f.mode = mode
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vector}, nil
}

func newIndex(t *testing.T, vectors map[string][]float32, order ...string) *vectorindex.Index {
	t.Helper()
	ix, err := vectorindex.New(2)
	require.NoError(t, err)
	for _, id := range order {
		require.NoError(t, ix.Insert(context.Background(), domain.Entry{
			ChunkID:  id,
			Vector:   vectors[id],
			Metadata: map[string]string{domain.MetaText: "passage " + id},
		}))
	}
	return ix
}

func TestRetrieve_EmptyIndexReturnsNothing(t *testing.T) {
	ix, err := vectorindex.New(2)
	require.NoError(t, err)
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	r := New(emb, ix, 0, nil)

	results, err := r.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, emb.calls)
}

func TestRetrieve_EmbedsQueryModeAndSearches(t *testing.T) {
	ix := newIndex(t, map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
		"c": {1, 1},
	}, "a", "b", "c")
	emb := &fakeEmbedder{vector: []float32{1, 0.1}}
	r := New(emb, ix, 0, nil)

	results, err := r.Retrieve(context.Background(), "what is a", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.Equal(t, "passage a", results[0].Text)
	assert.Equal(t, domain.ModeQuery, emb.mode)
	assert.Equal(t, []string{"what is a"}, emb.texts)
}

func TestRetrieve_DefaultK(t *testing.T) {
	vectors := map[string][]float32{}
	var order []string
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		vectors[id] = []float32{1, 0}
		order = append(order, id)
	}
	r := New(&fakeEmbedder{vector: []float32{1, 0}}, newIndex(t, vectors, order...), 0, nil)
	assert.Equal(t, DefaultK, r.DefaultK())

	results, err := r.Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultK)
}

func TestRetrieve_NegativeK(t *testing.T) {
	r := New(&fakeEmbedder{}, newIndex(t, nil), 0, nil)
	_, err := r.Retrieve(context.Background(), "q", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	ix := newIndex(t, map[string][]float32{"a": {1, 0}}, "a")
	cause := &domain.ProviderError{Kind: domain.ErrEmbeddingProvider, Attempts: 3, Err: errors.New("503")}
	r := New(&fakeEmbedder{err: cause}, ix, 0, nil)

	_, err := r.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
}

func TestRetrieve_QueryDimensionMismatch(t *testing.T) {
	ix := newIndex(t, map[string][]float32{"a": {1, 0}}, "a")
	r := New(&fakeEmbedder{vector: []float32{1, 0, 0}}, ix, 0, nil)

	_, err := r.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
