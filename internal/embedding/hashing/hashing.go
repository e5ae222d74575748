// Package hashing provides an offline embedding provider. Tokens are mapped
// into a fixed number of buckets with a signed feature hash, weighted by
// log-scaled term frequency and L2 normalized.
package hashing

import (
	"context"
	"errors"
	"hash/fnv"
	"math"

	"echodoc/internal/domain"
	"echodoc/internal/textutil"
)

// DefaultDimension is used when the configured dimension is not positive.
const DefaultDimension = 256

// Provider implements domain.EmbeddingProvider without any network call.
// The same text always maps to the same vector, in both modes.
type Provider struct {
	dimension int
}

// New creates a hashing provider producing vectors of the given dimension.
func New(dimension int) *Provider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Provider{dimension: dimension}
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (p *Provider) Dimension() int { return p.dimension }

// Embed hashes every text into a vector.
func (p *Provider) Embed(ctx context.Context, _ domain.EmbedMode, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("hashing: no texts to embed")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *Provider) vector(text string) []float32 {
	tf := make(map[string]int)
	for _, tok := range textutil.ContentTokens(text) {
		tf[tok]++
	}
	acc := make([]float64, p.dimension)
	for tok, count := range tf {
		idx, sign := p.bucket(tok)
		acc[idx] += sign * (1 + math.Log(float64(count)))
	}
	// L2 normalize
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, p.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (p *Provider) bucket(tok string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(p.dimension)), sign
}
