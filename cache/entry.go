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

	"github.com/poiesic/tdz/core"
)

// entryOverhead approximates per-entry bookkeeping bytes.
const entryOverhead = 200

// Entry is one cached embedding together with the text it was computed from.
type Entry struct {
	Vector     []float32 `json:"vector"`
	Kind       core.Kind `json:"content_type"`
	ContentID  core.ID   `json:"content_id"`
	Text       string    `json:"text_content"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
	// Hash fingerprints Text so callers can tell whether a vector is current.
	Hash uint64 `json:"content_hash,omitempty"`
}

// Key returns the cache key convention "<kind>:<content_id>".
func Key(kind core.Kind, id core.ID) string {
	return kind.String() + ":" + string(id)
}

// Key returns the entry's cache key.
func (e Entry) Key() string {
	return Key(e.Kind, e.ContentID)
}

// Expired reports whether the entry's TTL, measured from CreatedAt, has
// passed at now. A non-positive TTL never expires.
func (e Entry) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// SizeBytes estimates the entry's memory footprint.
func (e Entry) SizeBytes() int {
	return len(e.Vector)*4 + len(e.Text) + entryOverhead
}

// NeedsRegeneration reports whether the vector cannot be compared with
// vectors of the active dimensionality.
func (e Entry) NeedsRegeneration(dims int) bool {
	return len(e.Vector) != dims
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	out := e
	if e.Vector != nil {
		out.Vector = append([]float32(nil), e.Vector...)
	}
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	return out
}
