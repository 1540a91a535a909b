// Package embedder provides text embedding clients for vector recall.
//
// The engine embeds message, scene, and topic content on write to populate
// the per-label vector indexes, and embeds free-text queries on recall. The
// Client interface keeps the engine independent of any one provider.
package embedder

import (
	"context"
	"fmt"
)

// Client turns text into fixed-length float vectors.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per text,
	// in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle is a convenience wrapper for one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector length this client produces.
	Dimensions() int
}

// embedSingle implements EmbedSingle in terms of Embed for any client.
func embedSingle(ctx context.Context, c Client, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}
