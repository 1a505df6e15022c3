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

package reembed

import (
	"context"
	"slices"
	"strings"

	"github.com/poiesic/tdz/core"
)

const (
	// DefaultBatchSize is the default number of artifacts per batch
	DefaultBatchSize = 100
)

// Source lists stored artifacts.
type Source interface {
	ListAcross(ctx context.Context, filter core.ArtifactFilter) ([]*core.Artifact, error)
}

// ArtifactIterator yields artifacts in ascending id order, in batches.
type ArtifactIterator struct {
	source    Source
	batchSize int
	filter    core.ArtifactFilter
	keep      func(*core.Artifact) bool
	after     core.ID
}

// NewArtifactIterator creates an iterator over every live artifact.
func NewArtifactIterator(source Source, batchSize int) *ArtifactIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ArtifactIterator{
		source:    source,
		batchSize: batchSize,
	}
}

// After skips ids up to and including id.
func (it *ArtifactIterator) After(id core.ID) *ArtifactIterator {
	it.after = id
	return it
}

// Where restricts iteration to artifacts for which keep returns true.
func (it *ArtifactIterator) Where(keep func(*core.Artifact) bool) *ArtifactIterator {
	it.keep = keep
	return it
}

// Collect returns every artifact the iterator would yield.
func (it *ArtifactIterator) Collect(ctx context.Context) ([]*core.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := it.source.ListAcross(ctx, it.filter)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Artifact, 0, len(all))
	for _, a := range all {
		if it.after != "" && strings.Compare(string(a.ID), string(it.after)) <= 0 {
			continue
		}
		if it.keep != nil && !it.keep(a) {
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *core.Artifact) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

// ForEach calls fn with consecutive batches.
func (it *ArtifactIterator) ForEach(ctx context.Context, fn func([]*core.Artifact) error) error {
	artifacts, err := it.Collect(ctx)
	if err != nil {
		return err
	}
	for batch := range slices.Chunk(artifacts, it.batchSize) {
		if err := fn(batch); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
