// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"time"
)

// Cache stores embedding entries by key. Implementations are safe for
// concurrent use; reads never fail, a miss is reported by the bool result.
type Cache interface {
	// Get returns a live entry and records a hit or miss. Expired entries
	// are reported as misses but stay until CleanupExpired runs.
	Get(key string) (Entry, bool)

	// Peek returns an entry, expired or not, without touching statistics
	// or recency.
	Peek(key string) (Entry, bool)

	// Put inserts or replaces an entry.
	Put(key string, e Entry)

	// Delete removes an entry and reports whether it existed.
	Delete(key string) bool

	Len() int

	// Entries returns a snapshot of every entry in iteration order.
	Entries() []Entry

	// Keys returns the keys in the same order as Entries.
	Keys() []string

	// CleanupExpired removes entries expired at now and returns how many.
	CleanupExpired(now time.Time) int

	// Replace swaps the whole content for entries, keyed by Entry.Key.
	Replace(entries []Entry)

	Clear()

	Stats() Stats
}

// Stats are cumulative counters plus the current size.
type Stats struct {
	Entries   int
	Bytes     int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
}

// HitRate returns hits over lookups, or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
