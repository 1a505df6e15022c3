package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
)

// Metadata keys recorded by Hybrid.
const (
	MetaSemantic = "semantic_score"
	MetaKeyword  = "keyword_score"
	MetaCombined = "combined_score"
)

// Hybrid blends cosine similarity with a keyword score. semanticWeight is
// clamped to [0,1]; the keyword score gets the remainder. A nil keywords
// slice is derived from the query's non-stop-word terms.
func (e *Engine) Hybrid(ctx context.Context, query string, keywords []string, semanticWeight float32, p Params) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if keywords == nil {
		keywords = Keywords(query)
	}
	semanticWeight = min(max(semanticWeight, 0), 1)
	keywordWeight := 1 - semanticWeight

	r := e.begin(OpHybrid, query, p)
	vecs, err := e.embedQueries(ctx, r, []string{query})
	if err != nil {
		return nil, err
	}
	q := vecs[0]
	return e.rank(ctx, r, len(q), func(entry cache.Entry) (float32, map[string]float32, bool) {
		semantic := core.Cosine(q, entry.Vector)
		keyword := KeywordScore(entry.Text, query, keywords)
		combined := semantic*semanticWeight + keyword*keywordWeight
		return combined, map[string]float32{
			MetaSemantic: semantic,
			MetaKeyword:  keyword,
			MetaCombined: combined,
		}, true
	})
}

// AggregationKind selects how per-query similarities are combined.
type AggregationKind int

const (
	AggregateAverage AggregationKind = iota
	AggregateMax
	AggregateMin
	AggregateWeighted
)

func (k AggregationKind) String() string {
	switch k {
	case AggregateAverage:
		return "average"
	case AggregateMax:
		return "max"
	case AggregateMin:
		return "min"
	case AggregateWeighted:
		return "weighted"
	default:
		return fmt.Sprintf("aggregation(%d)", int(k))
	}
}

// ParseAggregation parses an aggregation name.
func ParseAggregation(s string) (AggregationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "avg", "mean", "":
		return AggregateAverage, nil
	case "max":
		return AggregateMax, nil
	case "min":
		return AggregateMin, nil
	case "weighted":
		return AggregateWeighted, nil
	}
	return 0, fmt.Errorf("%w: unknown aggregation %q", core.ErrInvalidArgument, s)
}

// Aggregation is a multi-query scoring policy. Weights are used only by
// AggregateWeighted.
type Aggregation struct {
	Kind    AggregationKind
	Weights []float32
}

// Apply combines one similarity per query. Weighted falls back to the average
// when the weight count differs from the query count or the weights sum to 0.
func (a Aggregation) Apply(sims []float32) float32 {
	if len(sims) == 0 {
		return 0
	}
	switch a.Kind {
	case AggregateMax:
		best := sims[0]
		for _, s := range sims[1:] {
			best = max(best, s)
		}
		return best
	case AggregateMin:
		worst := sims[0]
		for _, s := range sims[1:] {
			worst = min(worst, s)
		}
		return worst
	case AggregateWeighted:
		if len(a.Weights) == len(sims) {
			var sum, total float32
			for i, s := range sims {
				sum += s * a.Weights[i]
				total += a.Weights[i]
			}
			if total != 0 {
				return sum / total
			}
		}
	}
	var sum float32
	for _, s := range sims {
		sum += s
	}
	return sum / float32(len(sims))
}

// MultiQuery scores each entry against every query and ranks by the
// aggregated similarity.
func (e *Engine) MultiQuery(ctx context.Context, queries []string, agg Aggregation, p Params) ([]Result, error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			return nil, ErrEmptyQuery
		}
	}
	r := e.begin(OpMultiQuery, strings.Join(queries, " | "), p)
	vecs, err := e.embedQueries(ctx, r, queries)
	if err != nil {
		return nil, err
	}
	sims := make([]float32, len(vecs))
	return e.rank(ctx, r, len(vecs[0]), func(entry cache.Entry) (float32, map[string]float32, bool) {
		for i, q := range vecs {
			sims[i] = core.Cosine(q, entry.Vector)
		}
		return agg.Apply(sims), nil, true
	})
}
