// Package vector provides the small amount of vector math the engine
// needs: similarity scoring for recall and top-K selection over scored
// candidates.
package vector

import (
	"container/heap"
	"math"
)

// Cosine calculates the cosine similarity between two float32 vectors.
// Returns 0 if vectors have different lengths, are empty, or either has
// zero magnitude. The result is in the range [-1, 1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Magnitude calculates the Euclidean magnitude (L2 norm) of a vector.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place and returns it. A zero or
// empty vector is returned unchanged.
func Normalize(v []float32) []float32 {
	mag := Magnitude(v)
	if mag == 0 {
		return v
	}
	for i, x := range v {
		v[i] = float32(float64(x) / mag)
	}
	return v
}

// Scored pairs an item with a similarity score.
type Scored[T any] struct {
	Item  T
	Score float64
}

// minHeap keeps the smallest score at the root so TopK can decide in O(1)
// whether a new candidate displaces anything.
type minHeap[T any] []Scored[T]

func (h minHeap[T]) Len() int           { return len(h) }
func (h minHeap[T]) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h minHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap[T]) Push(x any) {
	*h = append(*h, x.(Scored[T]))
}

func (h *minHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// TopK returns the k highest-scored items in descending score order.
// Runs in O(n log k), which beats a full sort when k is much smaller
// than n.
func TopK[T any](items []Scored[T], k int) []Scored[T] {
	if k <= 0 || len(items) == 0 {
		return nil
	}
	if k > len(items) {
		k = len(items)
	}

	h := make(minHeap[T], 0, k)
	heap.Init(&h)
	for _, item := range items {
		if h.Len() < k {
			heap.Push(&h, item)
		} else if item.Score > h[0].Score {
			heap.Pop(&h)
			heap.Push(&h, item)
		}
	}

	result := make([]Scored[T], h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(Scored[T])
	}
	return result
}
