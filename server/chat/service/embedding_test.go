package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(32)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the same input")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the same input")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := e.Embed(ctx, "a different input")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestHashEmbedderDimensionAndNorm(t *testing.T) {
	e := NewHashEmbedder(48)
	assert.Equal(t, 48, e.Dimension())

	vec, err := e.Embed(context.Background(), "normalize me")
	require.NoError(t, err)
	require.Len(t, vec, 48)
	assert.InDelta(t, 1.0, vectorNorm(vec), 1e-5)
}

func TestHashEmbedderBatch(t *testing.T) {
	e := NewHashEmbedder(16)

	vectors, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, vec := range vectors {
		assert.Len(t, vec, 16)
	}

	single, err := e.Embed(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, single, vectors[1])
}

func TestNormalizeUnitVector(t *testing.T) {
	vec := []float32{3, 4}
	normalize(vec)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)
}
