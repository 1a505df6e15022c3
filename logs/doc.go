// Package logs persists the audit trail next to the embedding cache: the
// append-only mega log of artifact creations, per-content version logs,
// cache backups and fine-tuning exports.
//
// Logs are audit-only. Nothing on the query path reads them.
//
// Every file is JSON. Appends write one object per line; whole-file writes
// go through WriteFileAtomic. Readers skip lines that fail to parse, which
// covers a torn final record after a crash.
package logs
