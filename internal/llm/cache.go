package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider wraps a Provider with an LRU cache keyed on
// sha256(text + model name), adapted from the teacher's CachedEmbedder: avoid
// re-embedding identical chunk text seen across ingestion runs or repeated
// retrieval queries.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps inner with an LRU embedding cache of the given
// size (number of vectors, not bytes).
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: c}, nil
}

func (c *CachedProvider) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(h[:])
}

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, t := range texts {
		if v, ok := c.cache.Get(c.cacheKey(t)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	computed, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = computed[j]
		c.cache.Add(c.cacheKey(missTexts[j]), computed[j])
	}
	return out, nil
}

func (c *CachedProvider) CountTokens(text string) int { return c.inner.CountTokens(text) }
func (c *CachedProvider) Chat(ctx context.Context, sys, user string) (string, error) {
	return c.inner.Chat(ctx, sys, user)
}
func (c *CachedProvider) Dimensions() int   { return c.inner.Dimensions() }
func (c *CachedProvider) ModelName() string { return c.inner.ModelName() }
func (c *CachedProvider) Close() error      { return c.inner.Close() }

// Inner unwraps the underlying provider, mirroring the teacher's accessor.
func (c *CachedProvider) Inner() Provider { return c.inner }
