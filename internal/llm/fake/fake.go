// Package fake provides a deterministic, in-process llm.Provider
// implementation for tests, in place of a mocking framework — the spec's
// design notes call for "an interface with a fake implementation" rather
// than monkey-patched internals.
package fake

import (
	"context"
	"hash/fnv"

	"github.com/corpuskit/corpuskit/internal/llm"
)

type Provider struct {
	dims  int
	model string
	// ChatFn, when set, is invoked by Chat; otherwise Chat echoes userPrompt.
	ChatFn func(systemPrompt, userPrompt string) (string, error)
	// EmbedCalls records every batch passed to Embed, for assertions.
	EmbedCalls [][]string
}

func New(dims int) *Provider {
	return &Provider{dims: dims, model: "fake-embedding-model"}
}

// Embed returns a deterministic pseudo-embedding derived from the FNV hash
// of each text, so identical input always produces identical output without
// any network call.
func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.EmbedCalls = append(p.EmbedCalls, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, p.dims)
	}
	return out, nil
}

func deterministicVector(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, dims)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(seed%1000) / 1000.0
	}
	return v
}

func (p *Provider) CountTokens(text string) int { return len(text) / 4 }

func (p *Provider) Chat(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.ChatFn != nil {
		return p.ChatFn(systemPrompt, userPrompt)
	}
	return userPrompt, nil
}

func (p *Provider) Dimensions() int   { return p.dims }
func (p *Provider) ModelName() string { return p.model }
func (p *Provider) Close() error      { return nil }

var _ llm.Provider = (*Provider)(nil)
