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

package tdz

import (
	"context"
	"fmt"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
)

// Embed returns the unit vector of text under the default model.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch encodes texts in one call. Vectors are normalized even when
// the backend does not.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEncodingFailure, len(vecs), len(texts))
	}
	for i, v := range vecs {
		vecs[i] = core.Normalize(v)
	}
	return vecs, nil
}

// GetOrGenerate returns the cached vector of (kind, id). An entry is stale
// once its TTL has passed or when it was computed from different text.
// Stale entries are still returned unless refreshIfStale is set. A miss or
// an entry of the wrong dimensionality is always regenerated. The encoder
// runs outside any cache lock.
func (s *Service) GetOrGenerate(ctx context.Context, id core.ID, text string, kind core.Kind, refreshIfStale bool) ([]float32, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %d", core.ErrInvalidArgument, int(kind))
	}
	key := cache.Key(kind, id)
	hash := core.ContentHash(text)

	prev, found := s.cache.Peek(key)
	if found && len(prev.Vector) == s.Dimensions() {
		prevHash := prev.Hash
		if prevHash == 0 {
			prevHash = core.ContentHash(prev.Text)
		}
		stale := prev.Expired(s.now()) || prevHash != hash
		if !stale {
			// Get records the hit and promotes the entry.
			if e, ok := s.cache.Get(key); ok {
				prev = e
			}
			return append([]float32(nil), prev.Vector...), nil
		}
		if !refreshIfStale {
			return append([]float32(nil), prev.Vector...), nil
		}
	}

	vec, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	tags := append([]string{}, prev.Tags...)
	s.cache.Put(key, cache.Entry{
		Vector:     vec,
		Kind:       kind,
		ContentID:  id,
		Text:       text,
		Tags:       tags,
		CreatedAt:  s.now(),
		TTLSeconds: s.ttl(),
		Hash:       hash,
	})
	return append([]float32(nil), vec...), nil
}
