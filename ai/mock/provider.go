package mock

import "github.com/poiesic/tdz/ai"

// MockProvider hands out a single MockEmbedder and records Close.
type MockProvider struct {
	embedder *MockEmbedder
	closed   bool
}

// NewMockProvider uses a default-dimension embedder.
func NewMockProvider() *MockProvider {
	return &MockProvider{embedder: NewMockEmbedder()}
}

func NewMockProviderWithEmbedder(embedder *MockEmbedder) *MockProvider {
	return &MockProvider{embedder: embedder}
}

func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}
