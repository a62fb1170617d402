package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := Vector{1, 2, 3}
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	require.InDelta(t, 1.0, sim, 1e-9)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	v := Vector{1, 2, 3}
	neg := Vector{-1, -2, -3}
	sim, err := CosineSimilarity(v, neg)
	require.NoError(t, err)
	require.InDelta(t, -1.0, sim, 1e-9)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity(Vector{1, 2}, Vector{1, 2, 3})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity(Vector{0, 0}, Vector{1, 2})
	require.NoError(t, err)
	require.Equal(t, 0.0, sim)
}

func TestTopKOrdersDescending(t *testing.T) {
	query := Vector{1, 0}
	candidates := []Vector{
		{0, 1}, // orthogonal
		{1, 0}, // identical
		{1, 1}, // 45 degrees
	}
	top := TopK(query, candidates, 2)
	require.Equal(t, []int{1, 2}, top)
}

func TestHashingEmbedderStableDimension(t *testing.T) {
	h := NewHashingEmbedder(64)
	v, err := h.Embed(context.Background(), "func foo() int { return 1 }")
	require.NoError(t, err)
	require.Len(t, v, 64)
	require.Equal(t, 64, h.Dimension())
}

func TestHashingEmbedderSimilarTextHigherSimilarity(t *testing.T) {
	h := NewHashingEmbedder(128)
	ctx := context.Background()
	a, err := h.Embed(ctx, "func ParseUser(id string) (*User, error)")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "func ParseUser(id string) (*User, error) { return nil, nil }")
	require.NoError(t, err)
	c, err := h.Embed(ctx, "completely unrelated natural language sentence")
	require.NoError(t, err)

	simAB, err := CosineSimilarity(a, b)
	require.NoError(t, err)
	simAC, err := CosineSimilarity(a, c)
	require.NoError(t, err)
	require.Greater(t, simAB, simAC)
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	h := NewHashingEmbedder(32)
	v, err := h.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, f := range v {
		require.Equal(t, float32(0), f)
	}
}
