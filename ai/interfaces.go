package ai

import "context"

// Embedder turns artifact text into vectors. Implementations are safe for
// concurrent use and return vectors of exactly Dimensions() length.
type Embedder interface {
	// EmbedText embeds a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds texts in one call, preserving input order. A
	// failure for any text fails the batch.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector the embedder returns.
	Dimensions() int
}

// AIProvider owns an embedding backend and its resources.
type AIProvider interface {
	// Embedder returns the provider's embedder.
	Embedder() Embedder

	// Close releases the backend. The embedder must not be used afterwards.
	Close() error
}

type providerEmbedder struct {
	Embedder
	provider AIProvider
}

func (p providerEmbedder) Close() error { return p.provider.Close() }

// EmbedderOf returns the provider's embedder. Closing the result (it
// implements io.Closer) closes the provider.
func EmbedderOf(p AIProvider) Embedder {
	return providerEmbedder{Embedder: p.Embedder(), provider: p}
}
