package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
)

// Semantic ranks entries by cosine similarity to query.
func (e *Engine) Semantic(ctx context.Context, query string, p Params) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	r := e.begin(OpSemantic, query, p)
	vecs, err := e.embedQueries(ctx, r, []string{query})
	if err != nil {
		return nil, err
	}
	q := vecs[0]
	return e.rank(ctx, r, len(q), func(entry cache.Entry) (float32, map[string]float32, bool) {
		return core.Cosine(q, entry.Vector), nil, true
	})
}

// needsPayload reports whether f filters on fields only the stored task has.
func needsPayload(f core.ArtifactFilter) bool {
	return len(f.Statuses) > 0 || len(f.Priorities) > 0 || len(f.Assignees) > 0 ||
		f.ProgressMin != nil || f.ProgressMax != nil ||
		!f.CreatedAfter.IsZero() || !f.CreatedBefore.IsZero() ||
		f.Project != "" || f.Search != ""
}

// Tasks runs a semantic search restricted to tasks matching filter. The
// filter's Kinds field is ignored. Tags are matched against the cache entry;
// every other criterion is matched against the stored task.
func (e *Engine) Tasks(ctx context.Context, query string, filter core.ArtifactFilter, p Params) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	payload := needsPayload(filter)
	if payload && e.tasks == nil {
		return nil, ErrTaskLookupRequired
	}
	filter.Kinds = nil
	p.Kinds = []core.Kind{core.KindTask}

	r := e.begin(OpTasks, query, p)
	vecs, err := e.embedQueries(ctx, r, []string{query})
	if err != nil {
		return nil, err
	}
	q := vecs[0]

	var lookupErr error
	results, err := e.rank(ctx, r, len(q), func(entry cache.Entry) (float32, map[string]float32, bool) {
		if len(filter.Tags) > 0 && !core.TagsIntersect(entry.Tags, filter.Tags) {
			return 0, nil, false
		}
		if payload {
			task, err := e.tasks.Get(ctx, entry.ContentID)
			if err != nil {
				if !errors.Is(err, core.ErrNotFound) && lookupErr == nil {
					lookupErr = err
				}
				return 0, nil, false
			}
			if task.Kind != core.KindTask || !filter.Match(task) {
				return 0, nil, false
			}
		}
		return core.Cosine(q, entry.Vector), nil, true
	})
	if err != nil {
		return nil, err
	}
	if lookupErr != nil {
		return nil, fmt.Errorf("load task: %w", lookupErr)
	}
	return results, nil
}

// SimilarTo ranks entries by similarity to the stored vector of id,
// excluding id itself.
func (e *Engine) SimilarTo(ctx context.Context, id core.ID, p Params) ([]Result, error) {
	r := e.begin(OpSimilarTo, string(id), p)
	source, ok := e.lookup(id)
	if !ok || len(source.Vector) == 0 {
		r.monitor.Finish(nil)
		return nil, fmt.Errorf("%w: %s", ErrNotInCache, id)
	}
	q := source.Vector
	return e.rank(ctx, r, len(q), func(entry cache.Entry) (float32, map[string]float32, bool) {
		if entry.ContentID == id {
			return 0, nil, false
		}
		return core.Cosine(q, entry.Vector), nil, true
	})
}

// Recommend ranks entries by similarity to the centroid of basedOn. Items in
// basedOn or exclude are never returned. Ids without a cache entry are
// ignored; if none of basedOn is cached the result is empty.
func (e *Engine) Recommend(ctx context.Context, basedOn, exclude []core.ID, p Params) ([]Result, error) {
	if len(basedOn) == 0 {
		return nil, ErrEmptyBasedOn
	}
	r := e.begin(OpRecommend, "", p)

	var base [][]float32
	for _, id := range basedOn {
		if entry, ok := e.lookup(id); ok && len(entry.Vector) > 0 {
			base = append(base, entry.Vector)
		}
	}
	if len(base) == 0 {
		return e.finish(r, []Result{}), nil
	}
	centroid := core.Centroid(base)

	return e.rank(ctx, r, len(centroid), func(entry cache.Entry) (float32, map[string]float32, bool) {
		if slices.Contains(basedOn, entry.ContentID) || slices.Contains(exclude, entry.ContentID) {
			return 0, nil, false
		}
		return core.Cosine(centroid, entry.Vector), nil, true
	})
}
