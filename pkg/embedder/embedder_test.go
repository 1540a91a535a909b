package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticClientDeterministic(t *testing.T) {
	ctx := context.Background()
	client := NewStaticClient(16)

	a, err := client.EmbedSingle(ctx, "hello world")
	require.NoError(t, err)
	b, err := client.EmbedSingle(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := client.EmbedSingle(ctx, "something else")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestStaticClientDimensionsAndNorm(t *testing.T) {
	ctx := context.Background()
	client := NewStaticClient(32)

	v, err := client.EmbedSingle(ctx, "text")
	require.NoError(t, err)
	require.Len(t, v, 32)
	assert.Equal(t, 32, client.Dimensions())

	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-3)
}

func TestStaticClientBatchOrder(t *testing.T) {
	ctx := context.Background()
	client := NewStaticClient(8)

	batch, err := client.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := client.EmbedSingle(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, single, batch[1])
}
