package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return []float32{1, 2, 3}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "counting/model"
}

func TestLruEmbedder_CachesByTextAndTaskType(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	cached := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	first, err := cached.Embed(ctx, "some chunk text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "some chunk text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)

	// Same text with a different task type is a different embedding space.
	_, err = cached.Embed(ctx, "some chunk text", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestLruEmbedder_ReturnsClones(t *testing.T) {
	ctx := context.Background()
	cached := WrapLruCacheToEmbedder(&countingEmbedder{}, 16, time.Minute)

	first, err := cached.Embed(ctx, "text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	first[0] = 99

	second, err := cached.Embed(ctx, "text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.EqualValues(t, 1, second[0])
}

func TestWrapLruCacheToEmbedder_Passthrough(t *testing.T) {
	inner := &countingEmbedder{}
	require.Equal(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
	require.Nil(t, WrapLruCacheToEmbedder(nil, 16, time.Minute))
}
