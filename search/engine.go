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

package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
)

const (
	DefaultThreshold  float32 = 0.7
	DefaultMaxResults         = 50
)

// Settings are the live search defaults. They are read once per search.
type Settings struct {
	Threshold  float32
	MaxResults int
}

// TaskLookup loads the stored artifact behind a cache entry.
// storage.ArtifactRepository satisfies it.
type TaskLookup interface {
	Get(ctx context.Context, id core.ID) (*core.Artifact, error)
}

// Result is one ranked search hit.
type Result struct {
	ContentID core.ID            `json:"content_id"`
	Kind      core.Kind          `json:"content_type"`
	Score     float32            `json:"similarity_score"`
	Text      string             `json:"text_content"`
	Tags      []string           `json:"tags"`
	Metadata  map[string]float32 `json:"metadata,omitempty"`
}

// Params are per-call knobs shared by every search. Zero values fall back to
// the engine settings.
type Params struct {
	Kinds     []core.Kind
	Limit     int
	Threshold *float32
	Monitor   SearchMonitor
}

// Threshold returns a pointer to t for use in Params.
func Threshold(t float32) *float32 { return &t }

// Engine searches a cache of embeddings.
type Engine struct {
	cache    cache.Cache
	embedder ai.Embedder
	tasks    TaskLookup
	settings func() Settings
	observe  func(op Operation, elapsed time.Duration, results int)
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithTaskLookup enables payload filters in Tasks.
func WithTaskLookup(tasks TaskLookup) Option {
	return func(e *Engine) error {
		e.tasks = tasks
		return nil
	}
}

// WithSettings sets the source of threshold and result-limit defaults.
func WithSettings(settings func() Settings) Option {
	return func(e *Engine) error {
		if settings != nil {
			e.settings = settings
		}
		return nil
	}
}

// WithObserver registers a callback invoked after every search.
func WithObserver(observe func(op Operation, elapsed time.Duration, results int)) Option {
	return func(e *Engine) error {
		e.observe = observe
		return nil
	}
}

// NewEngine creates a search engine over c using embedder for queries.
func NewEngine(c cache.Cache, embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, ErrCacheRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		cache:    c,
		embedder: embedder,
		settings: func() Settings {
			return Settings{Threshold: DefaultThreshold, MaxResults: DefaultMaxResults}
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search")
	return e, nil
}

// run carries the resolved parameters of one search.
type run struct {
	op        Operation
	start     time.Time
	threshold float32
	limit     int
	kinds     []core.Kind
	monitor   SearchMonitor
}

func (e *Engine) begin(op Operation, query string, p Params) *run {
	s := e.settings()
	r := &run{
		op:        op,
		start:     time.Now(),
		threshold: s.Threshold,
		limit:     p.Limit,
		kinds:     p.Kinds,
		monitor:   p.Monitor,
	}
	if p.Threshold != nil {
		r.threshold = *p.Threshold
	}
	if r.limit <= 0 {
		r.limit = s.MaxResults
	}
	if r.limit <= 0 {
		r.limit = DefaultMaxResults
	}
	if r.monitor == nil {
		r.monitor = &noopMonitor{}
	}
	r.monitor.Start(op, query)
	return r
}

func (e *Engine) embedQueries(ctx context.Context, r *run, queries []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedTexts(ctx, queries)
	if err != nil {
		e.logger.Error("error generating embedding for query", "op", r.op, "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	r.monitor.AfterQueryEmbedding(vecs)
	return vecs, nil
}

// scorer returns the score of an entry, optional metadata, and whether the
// entry is eligible at all.
type scorer func(entry cache.Entry) (float32, map[string]float32, bool)

// rank scores a snapshot of the cache. Entries whose vectors cannot be
// compared with dims are skipped. The sort is stable, so ties keep cache
// iteration order.
func (e *Engine) rank(ctx context.Context, r *run, dims int, score scorer) ([]Result, error) {
	entries := e.cache.Entries()
	results := make([]Result, 0)
	for i, entry := range entries {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(r.kinds) > 0 && !slices.Contains(r.kinds, entry.Kind) {
			continue
		}
		if len(entry.Vector) == 0 {
			continue
		}
		if entry.NeedsRegeneration(dims) {
			err := fmt.Errorf("%w: %w: %s has %d dimensions, want %d",
				core.ErrValidation, core.ErrDimensionMismatch, entry.Key(), len(entry.Vector), dims)
			e.logger.Debug("skipping entry", "key", entry.Key(), "err", err)
			r.monitor.Skipped(entry, err)
			continue
		}
		s, meta, ok := score(entry)
		if !ok {
			continue
		}
		res := Result{
			ContentID: entry.ContentID,
			Kind:      entry.Kind,
			Score:     s,
			Text:      entry.Text,
			Tags:      entry.Tags,
			Metadata:  meta,
		}
		accepted := s >= r.threshold
		r.monitor.Candidate(res, accepted)
		if accepted {
			results = append(results, res)
		}
	}
	return e.finish(r, results), nil
}

func (e *Engine) finish(r *run, results []Result) []Result {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > r.limit {
		results = results[:r.limit]
	}
	r.monitor.Finish(results)
	elapsed := time.Since(r.start)
	if e.observe != nil {
		e.observe(r.op, elapsed, len(results))
	}
	e.logger.Debug("search finished", "op", r.op, "results", len(results), "elapsed", elapsed)
	return results
}

// lookup finds the cache entry for a content id regardless of kind.
func (e *Engine) lookup(id core.ID) (cache.Entry, bool) {
	for _, k := range core.Kinds {
		if entry, ok := e.cache.Peek(cache.Key(k, id)); ok {
			return entry, true
		}
	}
	return cache.Entry{}, false
}
