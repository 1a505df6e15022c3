// Package reembed recomputes artifact embeddings in bulk: a full re-embed
// after a model change, or a backfill of artifacts stored without a usable
// vector. Runs are checkpointed so an interrupted run resumes where it
// stopped.
package reembed
