// Package cache holds embedding vectors keyed by "<kind>:<content_id>".
//
// The cache is the search index: every similarity query scans its entries.
// Two shapes implement Cache. Flat is unbounded and iterates in insertion
// order. LRU caps the estimated byte size (len(vector)*4 + len(text) + 200
// per entry) and iterates most recently used first.
//
// Entries expire CreatedAt + TTLSeconds after creation. Reads report expired
// entries as misses; CleanupExpired removes them.
package cache
