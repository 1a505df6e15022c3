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
	"math"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRU bounds the total estimated entry size in bytes. Iteration order is
// most recently used first.
//
// On Put, an existing entry under the key is removed first, then least
// recently used entries are evicted while the accounted bytes exceed the
// cap, then the new entry is inserted at the head. An entry larger than the
// whole cap is evicted immediately.
type LRU struct {
	mu       sync.Mutex
	list     *simplelru.LRU[string, Entry]
	access   map[string]int
	maxBytes int64
	bytes    int64
	stats    Stats
	now      func() time.Time
}

var _ Cache = (*LRU)(nil)

// NewLRU returns an LRU holding at most maxBytes of estimated entry size.
func NewLRU(maxBytes int64, opts ...Option) *LRU {
	o := buildOptions(opts)
	c := &LRU{
		access:   make(map[string]int),
		maxBytes: max(maxBytes, 0),
		now:      o.now,
	}
	// count is unbounded; byte accounting drives eviction
	list, _ := simplelru.NewLRU[string, Entry](math.MaxInt32, c.onEvict)
	c.list = list
	return c
}

// NewLRUMegabytes returns an LRU capped at mb mebibytes.
func NewLRUMegabytes(mb int, opts ...Option) *LRU {
	return NewLRU(int64(mb)*1024*1024, opts...)
}

// onEvict runs under c.mu for every removal from the list.
func (c *LRU) onEvict(key string, e Entry) {
	c.bytes -= int64(e.SizeBytes())
	delete(c.access, key)
}

func (c *LRU) Get(key string) (Entry, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.list.Peek(key)
	if !ok || e.Expired(now) {
		c.stats.Misses++
		return Entry{}, false
	}
	c.list.Get(key)
	c.access[key]++
	c.stats.Hits++
	return e.Clone(), true
}

func (c *LRU) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.list.Peek(key)
	if !ok {
		return Entry{}, false
	}
	return e.Clone(), true
}

func (c *LRU) Put(key string, e Entry) {
	e = e.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insert(key, e)
}

func (c *LRU) insert(key string, e Entry) {
	accessed := c.access[key]
	c.list.Remove(key)
	for c.bytes > c.maxBytes && c.list.Len() > 0 {
		c.list.RemoveOldest()
		c.stats.Evictions++
	}
	if int64(e.SizeBytes()) > c.maxBytes {
		c.stats.Evictions++
		return
	}
	c.list.Add(key, e)
	c.bytes += int64(e.SizeBytes())
	c.access[key] = accessed + 1
}

func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Remove(key)
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// AccessCount returns how often key was inserted or read since it entered.
func (c *LRU) AccessCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access[key]
}

// keys returns keys newest first; simplelru lists oldest first.
func (c *LRU) keys() []string {
	keys := c.list.Keys()
	slices.Reverse(keys)
	return keys
}

func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys()
}

func (c *LRU) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e, _ := c.list.Peek(k)
		out = append(out, e.Clone())
	}
	return out
}

func (c *LRU) CleanupExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, k := range c.list.Keys() {
		if e, ok := c.list.Peek(k); ok && e.Expired(now) {
			c.list.Remove(k)
			removed++
		}
	}
	c.stats.Expired += uint64(removed)
	return removed
}

// Replace inserts entries in order, so the last entry ends up most recent
// and the cap applies as for Put.
func (c *LRU) Replace(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Purge()
	for _, e := range entries {
		c.insert(e.Key(), e.Clone())
	}
}

func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Purge()
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.list.Len()
	s.Bytes = c.bytes
	return s
}
