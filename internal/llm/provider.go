// Package llm abstracts the embedding/chat backend behind a small interface
// so the ingestion pipeline and the file converter never depend on a
// specific vendor's SDK. Two adapters ship: an OpenAI-compatible HTTP client
// and an Ollama HTTP client; a fake adapter backs unit tests.
package llm

import "context"

// Provider is the contract every embedding/chat backend must satisfy.
type Provider interface {
	// Embed returns one embedding vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// CountTokens estimates the token count of text for batching decisions.
	CountTokens(text string) int

	// Chat sends a single prompt/response exchange, used by the file
	// converter for image/audio captioning. Providers that don't support
	// chat return ErrChatUnsupported.
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Dimensions reports the embedding vector width.
	Dimensions() int

	// ModelName reports the configured embedding model identifier.
	ModelName() string

	Close() error
}

// ErrChatUnsupported is returned by Chat on providers without chat support.
type chatUnsupportedError struct{}

func (chatUnsupportedError) Error() string { return "llm: chat is not supported by this provider" }

var ErrChatUnsupported error = chatUnsupportedError{}
