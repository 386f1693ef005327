package llm_test

import (
	"context"
	"testing"

	"github.com/corpuskit/corpuskit/internal/llm"
	"github.com/corpuskit/corpuskit/internal/llm/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedProviderServesRepeatedTextFromCache(t *testing.T) {
	inner := fake.New(8)
	cached, err := llm.NewCachedProvider(inner, 100)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)

	second, err := cached.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, inner.EmbedCalls, 1, "second call should have been served from cache, not reach the inner provider")
}

func TestCachedProviderOnlyComputesMisses(t *testing.T) {
	inner := fake.New(8)
	cached, err := llm.NewCachedProvider(inner, 100)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)

	_, err = cached.Embed(ctx, []string{"a", "c"})
	require.NoError(t, err)

	require.Len(t, inner.EmbedCalls, 2)
	assert.Equal(t, []string{"c"}, inner.EmbedCalls[1], "only the cache miss should be forwarded")
}
