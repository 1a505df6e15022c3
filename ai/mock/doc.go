// Package mock provides test doubles for the ai interfaces.
//
// MockEmbedder needs no model files or network access and produces stable
// unit vectors, so tests that exercise search, clustering or drift stay
// deterministic.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//		return nil, errors.New("boom")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
// Each lowercase word of the input is hashed (FNV-1a) into a seed that drives
// a small linear congruential generator, yielding one pseudo-random vector per
// word. The word vectors are summed and L2 normalized. Texts that share words
// therefore score a higher cosine similarity than unrelated texts, which is
// enough structure for ranking and clustering tests.
package mock
