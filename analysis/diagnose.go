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

package analysis

import (
	"cmp"
	"context"
	"math"
	"runtime"
	"slices"
	"time"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"golang.org/x/sync/errgroup"
)

const DefaultTopPairs = 10

// EmbeddingStats are per-dimension distribution statistics.
type EmbeddingStats struct {
	Mean   []float32 `json:"mean"`
	StdDev []float32 `json:"std_dev"`
	Min    []float32 `json:"min"`
	Max    []float32 `json:"max"`
}

// Pair is a scored pair of content ids.
type Pair struct {
	A          core.ID `json:"a"`
	B          core.ID `json:"b"`
	Similarity float32 `json:"similarity"`
}

type DiagnosticReport struct {
	Timestamp         time.Time      `json:"timestamp"`
	CacheHitRate      float32        `json:"cache_hit_rate"`
	AverageSimilarity float32        `json:"avg_similarity_score"`
	Distribution      EmbeddingStats `json:"embedding_distribution_stats"`
	KindBreakdown     map[string]int `json:"content_type_breakdown"`
	TopSimilarPairs   []Pair         `json:"top_similar_pairs"`
}

// Diagnose summarizes a snapshot: counts per kind, per-dimension statistics
// over vectors of the dominant (first) length, the mean pairwise similarity
// and the topPairs most similar pairs. Rows of the pair scan run in
// parallel; ctx cancels the scan.
func Diagnose(ctx context.Context, entries []cache.Entry, topPairs int) (DiagnosticReport, error) {
	r := DiagnosticReport{
		Timestamp:       time.Now().UTC(),
		KindBreakdown:   make(map[string]int),
		TopSimilarPairs: []Pair{},
	}
	for _, e := range entries {
		r.KindBreakdown[e.Kind.String()]++
	}

	items := withVectors(entries)
	if len(items) == 0 {
		r.Distribution = EmbeddingStats{Mean: []float32{}, StdDev: []float32{}, Min: []float32{}, Max: []float32{}}
		return r, nil
	}
	dims := len(items[0].Vector)
	same := items[:0:0]
	for _, e := range items {
		if len(e.Vector) == dims {
			same = append(same, e)
		}
	}
	r.Distribution = distribution(same, dims)

	rows := make([][]Pair, len(same))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range same {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := make([]Pair, 0, len(same)-i-1)
			for j := i + 1; j < len(same); j++ {
				row = append(row, Pair{A: same[i].ContentID, B: same[j].ContentID, Similarity: cosine(same[i], same[j])})
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DiagnosticReport{}, err
	}

	var pairs []Pair
	var sum float64
	for _, row := range rows {
		for _, p := range row {
			sum += float64(p.Similarity)
		}
		pairs = append(pairs, row...)
	}
	if len(pairs) > 0 {
		r.AverageSimilarity = float32(sum / float64(len(pairs)))
	}
	slices.SortStableFunc(pairs, func(a, b Pair) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if topPairs <= 0 {
		topPairs = DefaultTopPairs
	}
	if len(pairs) > topPairs {
		pairs = pairs[:topPairs]
	}
	if pairs != nil {
		r.TopSimilarPairs = pairs
	}
	return r, nil
}

func distribution(items []cache.Entry, dims int) EmbeddingStats {
	s := EmbeddingStats{
		Mean:   make([]float32, dims),
		StdDev: make([]float32, dims),
		Min:    make([]float32, dims),
		Max:    make([]float32, dims),
	}
	for d := 0; d < dims; d++ {
		s.Min[d] = float32(math.Inf(1))
		s.Max[d] = float32(math.Inf(-1))
	}
	sums := make([]float64, dims)
	for _, e := range items {
		for d, x := range e.Vector {
			sums[d] += float64(x)
			s.Min[d] = min(s.Min[d], x)
			s.Max[d] = max(s.Max[d], x)
		}
	}
	n := float64(len(items))
	sq := make([]float64, dims)
	for d := range sums {
		s.Mean[d] = float32(sums[d] / n)
	}
	for _, e := range items {
		for d, x := range e.Vector {
			diff := float64(x) - float64(s.Mean[d])
			sq[d] += diff * diff
		}
	}
	for d := range sq {
		s.StdDev[d] = float32(math.Sqrt(sq[d] / n))
	}
	return s
}

// Contribution is one dimension's share of a dot product.
type Contribution struct {
	Dimension int     `json:"dimension"`
	Value     float32 `json:"value"`
}

// Explain returns the topN dimensions contributing most to the dot product
// of query and target.
func Explain(query, target []float32, topN int) []Contribution {
	n := min(len(query), len(target))
	out := make([]Contribution, n)
	for i := 0; i < n; i++ {
		out[i] = Contribution{Dimension: i, Value: query[i] * target[i]}
	}
	slices.SortStableFunc(out, func(a, b Contribution) int {
		return cmp.Compare(b.Value, a.Value)
	})
	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// Agreement is the Pearson correlation between the pairwise similarities
// two models assign to the same texts. a[i] and b[i] embed the same text.
// ok is false when there are fewer than two pairs or either side has no
// variance.
func Agreement(a, b [][]float32) (float32, bool) {
	n := min(len(a), len(b))
	var xs, ys []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			xs = append(xs, float64(core.Cosine(a[i], a[j])))
			ys = append(ys, float64(core.Cosine(b[i], b[j])))
		}
	}
	if len(xs) < 2 {
		return 0, false
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(len(xs))
	my /= float64(len(ys))
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	return float32(cov / math.Sqrt(vx*vy)), true
}

// Timing summarizes repeated runs of one operation.
type Timing struct {
	Iterations int           `json:"iterations"`
	Avg        time.Duration `json:"avg"`
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
	StdDev     time.Duration `json:"std_dev"`
}

func SummarizeTimings(samples []time.Duration) Timing {
	t := Timing{Iterations: len(samples)}
	if len(samples) == 0 {
		return t
	}
	t.Min, t.Max = samples[0], samples[0]
	var sum float64
	for _, s := range samples {
		sum += float64(s)
		t.Min = min(t.Min, s)
		t.Max = max(t.Max, s)
	}
	avg := sum / float64(len(samples))
	var variance float64
	for _, s := range samples {
		d := float64(s) - avg
		variance += d * d
	}
	variance /= float64(len(samples))
	t.Avg = time.Duration(avg)
	t.StdDev = time.Duration(math.Sqrt(variance))
	return t
}
