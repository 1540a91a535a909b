package embedder

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/mnemon-dev/mnemon/pkg/vector"
)

// StaticClient produces deterministic embeddings from a hash of the input
// text. Identical texts embed identically and different texts almost never
// collide, which is all the unit tests and the zero-infrastructure dev mode
// need from an embedder.
type StaticClient struct {
	dimensions int
}

// NewStaticClient builds a deterministic embedder.
func NewStaticClient(dimensions int) *StaticClient {
	if dimensions <= 0 {
		dimensions = 16
	}
	return &StaticClient{dimensions: dimensions}
}

func (c *StaticClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = c.vector(text)
	}
	return out, nil
}

func (c *StaticClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, c, text)
}

func (c *StaticClient) Dimensions() int { return c.dimensions }

func (c *StaticClient) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	out := make([]float32, c.dimensions)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(float64(int64(seed)) / math.MaxInt64)
	}
	return vector.Normalize(out)
}
