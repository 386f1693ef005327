package llm

import (
	"fmt"

	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/llm/ollama"
	"github.com/corpuskit/corpuskit/internal/llm/openaicompat"
)

// NewProvider constructs a Provider for the configured backend and wraps it
// with an embedding cache, mirroring the teacher's factory.NewEmbedder shape
// (explicit provider selection, no silent fallback to a different backend).
func NewProvider(cfg config.LLMConfig, cacheSize int) (Provider, error) {
	var base Provider
	switch cfg.Provider {
	case "openai_compat":
		base = openaicompat.New(cfg)
	case "ollama":
		base = ollama.New(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return NewCachedProvider(base, cacheSize)
}
