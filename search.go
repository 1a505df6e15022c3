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

	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/search"
)

// SemanticSearch ranks cached entries by cosine similarity to query.
func (s *Service) SemanticSearch(ctx context.Context, query string, p search.Params) ([]search.Result, error) {
	return s.engine.Semantic(ctx, query, p)
}

// SearchTasks is SemanticSearch over tasks matching filter.
func (s *Service) SearchTasks(ctx context.Context, query string, filter core.ArtifactFilter, p search.Params) ([]search.Result, error) {
	return s.engine.Tasks(ctx, query, filter, p)
}

// HybridSearch blends semantic and keyword scores. semanticWeight is
// clamped to [0, 1].
func (s *Service) HybridSearch(ctx context.Context, query string, keywords []string, semanticWeight float32, p search.Params) ([]search.Result, error) {
	return s.engine.Hybrid(ctx, query, keywords, semanticWeight, p)
}

// MultiQuerySearch scores every entry against several queries and combines
// the similarities with agg.
func (s *Service) MultiQuerySearch(ctx context.Context, queries []string, agg search.Aggregation, p search.Params) ([]search.Result, error) {
	return s.engine.MultiQuery(ctx, queries, agg, p)
}

// FindSimilar ranks entries by similarity to the cached vector of id.
func (s *Service) FindSimilar(ctx context.Context, id core.ID, p search.Params) ([]search.Result, error) {
	return s.engine.SimilarTo(ctx, id, p)
}

// Recommend ranks entries by similarity to the centroid of basedOn.
func (s *Service) Recommend(ctx context.Context, basedOn, exclude []core.ID, p search.Params) ([]search.Result, error) {
	return s.engine.Recommend(ctx, basedOn, exclude, p)
}
