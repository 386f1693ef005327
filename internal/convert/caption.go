package convert

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/corpuskit/corpuskit/internal/llm"
)

// CaptionBackend converts images and audio to a short Markdown description
// via the configured LLM provider's Chat method, so non-text attachments
// still contribute searchable content instead of being dropped entirely.
type CaptionBackend struct {
	provider llm.Provider
	mimes    []string
}

func NewCaptionBackend(provider llm.Provider, mimes []string) *CaptionBackend {
	return &CaptionBackend{provider: provider, mimes: mimes}
}

func (b *CaptionBackend) Supports(mimeType string) bool {
	for _, m := range b.mimes {
		if strings.HasPrefix(mimeType, m) {
			return true
		}
	}
	return false
}

const captionSystemPrompt = "Describe the attached file's content in two or three plain sentences suitable for a search index. Do not speculate beyond what is visible or audible."

func (b *CaptionBackend) Convert(ctx context.Context, content []byte, mimeType, filename string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(content)
	prompt := "Filename: " + filename + "\nMIME type: " + mimeType + "\nBase64 content follows:\n" + encoded
	caption, err := b.provider.Chat(ctx, captionSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return "# " + filename + "\n\n" + caption + "\n", nil
}
