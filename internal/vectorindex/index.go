// Package vectorindex is an in-memory vector index with cosine similarity
// search and a binary snapshot format.
package vectorindex

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"echodoc/internal/domain"
)

// Record is a stored entry as seen by a SearchStrategy. Records are shared
// between snapshots and must not be modified.
type Record struct {
	ChunkID  string
	Vector   []float32
	Norm     float64
	Metadata map[string]string
}

// snapshot is an immutable view of the entries at one revision.
type snapshot struct {
	entries []Record
}

// Index stores vectors of one fixed dimension. Writers are serialized by a
// mutex and publish a new snapshot per commit; readers load the current
// snapshot without locking and never observe a partial write.
type Index struct {
	dimension int
	strategy  SearchStrategy

	mu       sync.Mutex
	position map[string]int // guarded by mu

	current atomic.Pointer[snapshot]

	// saveMu orders SaveFile calls so a later save never writes an older
	// snapshot.
	saveMu sync.Mutex
}

// Option configures an Index.
type Option func(*Index)

// WithStrategy replaces the default LinearScan search strategy.
func WithStrategy(s SearchStrategy) Option {
	return func(ix *Index) {
		if s != nil {
			ix.strategy = s
		}
	}
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int, opts ...Option) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension must be positive, got %d", domain.ErrInvalidConfig, dimension)
	}
	ix := &Index{
		dimension: dimension,
		strategy:  LinearScan{},
		position:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.current.Store(&snapshot{})
	return ix, nil
}

// Dimension returns the configured vector dimension.
func (ix *Index) Dimension() int { return ix.dimension }

// Len returns the number of entries in the current snapshot.
func (ix *Index) Len(context.Context) (int, error) {
	return len(ix.current.Load().entries), nil
}

// Insert adds one entry. An entry with an existing chunk ID replaces the old
// one in place, keeping its original insertion position.
func (ix *Index) Insert(ctx context.Context, e domain.Entry) error {
	return ix.InsertBatch(ctx, []domain.Entry{e})
}

// InsertBatch validates every entry before storing any of them, then commits
// them in one snapshot.
func (ix *Index) InsertBatch(_ context.Context, batch []domain.Entry) error {
	if len(batch) == 0 {
		return nil
	}
	prepared := make([]Record, len(batch))
	for i, e := range batch {
		if e.ChunkID == "" {
			return fmt.Errorf("vectorindex: entry %d has no chunk id", i)
		}
		if len(e.Vector) != ix.dimension {
			return fmt.Errorf("vectorindex: insert %s: %w: got %d, want %d",
				e.ChunkID, domain.ErrDimensionMismatch, len(e.Vector), ix.dimension)
		}
		prepared[i] = newRecord(e.ChunkID, e.Vector, e.Metadata)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.commit(prepared)
	return nil
}

// commit publishes prepared entries. Must hold mu.
func (ix *Index) commit(prepared []Record) {
	entries := ix.current.Load().entries
	cloned := false
	for _, e := range prepared {
		if pos, ok := ix.position[e.ChunkID]; ok {
			// Older snapshots share the backing array; never overwrite it.
			if !cloned {
				entries = slices.Clone(entries)
				cloned = true
			}
			entries[pos] = e
			continue
		}
		ix.position[e.ChunkID] = len(entries)
		// Appending only writes past every published length.
		entries = append(entries, e)
	}
	ix.current.Store(&snapshot{entries: entries})
}

// Search returns up to k entries ordered by descending cosine similarity.
// Ties keep insertion order. It returns domain.ErrEmptyIndex when the index
// holds no entries.
func (ix *Index) Search(_ context.Context, query []float32, k int) ([]domain.RetrievalResult, error) {
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("vectorindex: search: %w: got %d, want %d",
			domain.ErrDimensionMismatch, len(query), ix.dimension)
	}
	snap := ix.current.Load()
	if len(snap.entries) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if k <= 0 {
		return []domain.RetrievalResult{}, nil
	}
	hits := ix.strategy.Search(snap.entries, query, l2(query), k)
	results := make([]domain.RetrievalResult, len(hits))
	for i, h := range hits {
		e := snap.entries[h.Position]
		results[i] = domain.RetrievalResult{
			ChunkID:  e.ChunkID,
			Text:     e.Metadata[domain.MetaText],
			Score:    h.Score,
			Metadata: maps.Clone(e.Metadata),
		}
	}
	return results, nil
}

func newRecord(chunkID string, vector []float32, metadata map[string]string) Record {
	v := slices.Clone(vector)
	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	return Record{ChunkID: chunkID, Vector: v, Norm: l2(v), Metadata: meta}
}

func l2(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
