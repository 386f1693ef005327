package convert

import (
	"context"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// HTMLBackend converts HTML (including office-exported HTML, which is how
// Confluence storage-format bodies and many wiki exports arrive) to
// Markdown via JohannesKaufmann/html-to-markdown.
type HTMLBackend struct {
	converter *md.Converter
}

func NewHTMLBackend() *HTMLBackend {
	return &HTMLBackend{converter: md.NewConverter("", true, nil)}
}

func (b *HTMLBackend) Supports(mimeType string) bool {
	return strings.Contains(mimeType, "html")
}

func (b *HTMLBackend) Convert(_ context.Context, content []byte, _ string, _ string) (string, error) {
	return b.converter.ConvertString(string(content))
}
