package vectorindex

import (
	"cmp"
	"container/heap"
)

// Hit is a scored entry position within a snapshot.
type Hit struct {
	Position int
	Score    float64
}

// SearchStrategy ranks the entries of one snapshot against a query. Results
// must be the top k by descending score, ties broken by ascending Position.
// An approximate structure can be substituted here without touching callers.
type SearchStrategy interface {
	Search(entries []Record, query []float32, queryNorm float64, k int) []Hit
}

// LinearScan scores every entry. O(n·d) per query.
type LinearScan struct{}

func (LinearScan) Search(entries []Record, query []float32, queryNorm float64, k int) []Hit {
	k = min(k, len(entries))
	h := make(hitHeap, 0, k+1)
	for pos := range entries {
		hit := Hit{Position: pos, Score: cosine(entries[pos], query, queryNorm)}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if better(hit, h[0]) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}
	out := make([]Hit, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	return out
}

func cosine(e Record, query []float32, queryNorm float64) float64 {
	if e.Norm == 0 || queryNorm == 0 {
		return 0
	}
	dot := 0.0
	for i, x := range e.Vector {
		dot += float64(x) * float64(query[i])
	}
	return dot / (e.Norm * queryNorm)
}

// better reports whether a ranks before b.
func better(a, b Hit) bool {
	if c := cmp.Compare(a.Score, b.Score); c != 0 {
		return c > 0
	}
	return a.Position < b.Position
}

// hitHeap is a min-heap on rank: the root is the worst kept hit.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
