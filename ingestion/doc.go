// Package ingestion turns source files and chunk plans into code-chunk
// artifacts.
//
// A source is split into pieces that fit the token budget of the requested
// chunk level; each piece becomes one CodeChunk. Pieces are stored
// concurrently on a worker pool and progress is checkpointed, so an
// interrupted ingestion resumes without duplicating chunks. Chunk ids are
// derived from the project, source name and piece index, which makes
// re-ingesting the same source idempotent.
package ingestion
