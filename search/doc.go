// Package search ranks cached embeddings against queries.
//
// The index is the embedding cache itself, scanned linearly. Every search
// embeds its query outside any cache lock, takes a snapshot of the cache,
// scores each entry, applies the similarity threshold and filters, sorts by
// descending score and truncates to the limit.
//
// Supported searches:
//   - Semantic: cosine similarity to the query, optionally restricted by kind
//   - Tasks: semantic search over task entries with payload filters
//   - Hybrid: weighted blend of semantic and keyword scores
//   - MultiQuery: several queries aggregated by average, max, min or weights
//   - SimilarTo and Recommend: queries built from stored vectors
package search
