package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	assert.Zero(t, Cosine([]float32{1, 0}, []float32{1}))
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 1.0, Magnitude(v), 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestTopK(t *testing.T) {
	items := []Scored[string]{
		{Item: "a", Score: 0.1},
		{Item: "b", Score: 0.9},
		{Item: "c", Score: 0.5},
		{Item: "d", Score: 0.7},
	}

	top := TopK(items, 2)
	assert.Equal(t, []Scored[string]{
		{Item: "b", Score: 0.9},
		{Item: "d", Score: 0.7},
	}, top)

	all := TopK(items, 10)
	assert.Len(t, all, 4)
	assert.Equal(t, "b", all[0].Item)
	assert.Equal(t, "a", all[3].Item)

	assert.Nil(t, TopK(items, 0))
	assert.Nil(t, TopK[string](nil, 3))
}
