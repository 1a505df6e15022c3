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
	"slices"
	"sync"
	"time"
)

// Option configures a cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for expiry checks on Get.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Flat is an unbounded cache that iterates in insertion order.
type Flat struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	bytes   int64
	stats   Stats
	now     func() time.Time
}

var _ Cache = (*Flat)(nil)

func NewFlat(opts ...Option) *Flat {
	o := buildOptions(opts)
	return &Flat{entries: make(map[string]Entry), now: o.now}
}

func (f *Flat) Get(key string) (Entry, bool) {
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok || e.Expired(now) {
		f.stats.Misses++
		return Entry{}, false
	}
	f.stats.Hits++
	return e.Clone(), true
}

func (f *Flat) Peek(key string) (Entry, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.Clone(), true
}

// Put keeps the original position of a replaced key.
func (f *Flat) Put(key string, e Entry) {
	e = e.Clone()
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.entries[key]; ok {
		f.bytes -= int64(prev.SizeBytes())
	} else {
		f.order = append(f.order, key)
	}
	f.entries[key] = e
	f.bytes += int64(e.SizeBytes())
}

func (f *Flat) Delete(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remove(key)
}

func (f *Flat) remove(key string) bool {
	e, ok := f.entries[key]
	if !ok {
		return false
	}
	delete(f.entries, key)
	f.bytes -= int64(e.SizeBytes())
	if i := slices.Index(f.order, key); i >= 0 {
		f.order = slices.Delete(f.order, i, i+1)
	}
	return true
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

func (f *Flat) Entries() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Entry, 0, len(f.order))
	for _, k := range f.order {
		out = append(out, f.entries[k].Clone())
	}
	return out
}

func (f *Flat) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.order)
}

func (f *Flat) CleanupExpired(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.order[:0]
	removed := 0
	for _, k := range f.order {
		e := f.entries[k]
		if e.Expired(now) {
			delete(f.entries, k)
			f.bytes -= int64(e.SizeBytes())
			removed++
			continue
		}
		kept = append(kept, k)
	}
	clear(f.order[len(kept):])
	f.order = kept
	f.stats.Expired += uint64(removed)
	return removed
}

func (f *Flat) Replace(entries []Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]Entry, len(entries))
	f.order = f.order[:0]
	f.bytes = 0
	for _, e := range entries {
		key := e.Key()
		if prev, ok := f.entries[key]; ok {
			f.bytes -= int64(prev.SizeBytes())
		} else {
			f.order = append(f.order, key)
		}
		e = e.Clone()
		f.entries[key] = e
		f.bytes += int64(e.SizeBytes())
	}
}

func (f *Flat) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]Entry)
	f.order = nil
	f.bytes = 0
}

func (f *Flat) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := f.stats
	s.Entries = len(f.entries)
	s.Bytes = f.bytes
	return s
}
