// Package analysis holds the aggregate computations over a snapshot of
// cached embeddings: flat and hierarchical clustering, outliers, cross-kind
// relations, tag suggestion, similarity graphs, drift, validation and
// diagnostics.
//
// Every function is pure over its inputs. Callers take the snapshot (for
// example cache.Cache.Entries) and pass it in, so no lock is held while the
// quadratic scans run.
package analysis
