package analysis

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/search"
)

// ErrNotFound is returned when a referenced content id has no entry.
var ErrNotFound = fmt.Errorf("%w: content not in snapshot", core.ErrNotFound)

func cosine(a, b cache.Entry) float32 {
	return core.Cosine(a.Vector, b.Vector)
}

func find(entries []cache.Entry, id core.ID) (cache.Entry, bool) {
	for _, e := range entries {
		if e.ContentID == id {
			return e, true
		}
	}
	return cache.Entry{}, false
}

func findKind(entries []cache.Entry, id core.ID, kind core.Kind) (cache.Entry, bool) {
	for _, e := range entries {
		if e.ContentID == id && e.Kind == kind {
			return e, true
		}
	}
	return cache.Entry{}, false
}

func byScore(a, b search.Result) int {
	return cmp.Compare(b.Score, a.Score)
}

// Outliers returns the ids of entries of kind whose highest similarity to
// any other entry of that kind is below threshold. Similarities are floored
// at 0, so a lone entry is an outlier for any positive threshold.
func Outliers(entries []cache.Entry, kind core.Kind, threshold float32) []core.ID {
	var items []cache.Entry
	for _, e := range withVectors(entries) {
		if e.Kind == kind {
			items = append(items, e)
		}
	}
	outliers := make([]core.ID, 0)
	for i, item := range items {
		var best float32
		for j, other := range items {
			if i == j {
				continue
			}
			best = max(best, cosine(item, other))
		}
		if best < threshold {
			outliers = append(outliers, item.ContentID)
		}
	}
	return outliers
}

// CrossType ranks entries of every kind other than the source's by
// similarity to the source, grouped by kind. limit caps each group; 0 means
// no cap.
func CrossType(entries []cache.Entry, id core.ID, kind core.Kind, minSimilarity float32, limit int) (map[core.Kind][]search.Result, error) {
	source, ok := findKind(entries, id, kind)
	if !ok || len(source.Vector) == 0 {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, kind, id)
	}
	out := make(map[core.Kind][]search.Result)
	for _, e := range withVectors(entries) {
		if e.Kind == kind {
			continue
		}
		if sim := cosine(source, e); sim >= minSimilarity {
			out[e.Kind] = append(out[e.Kind], resultOf(e, sim))
		}
	}
	for k, list := range out {
		slices.SortStableFunc(list, byScore)
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		out[k] = list
	}
	return out, nil
}

// SuggestTags takes the k entries most similar to id and returns the k tags
// with the highest similarity-weighted frequency among them.
func SuggestTags(entries []cache.Entry, id core.ID, k int) ([]string, error) {
	target, ok := find(entries, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if k <= 0 {
		return []string{}, nil
	}

	var neighbours []search.Result
	for _, e := range withVectors(entries) {
		if e.ContentID == id {
			continue
		}
		neighbours = append(neighbours, resultOf(e, cosine(target, e)))
	}
	slices.SortStableFunc(neighbours, byScore)
	if len(neighbours) > k {
		neighbours = neighbours[:k]
	}

	type weighted struct {
		tag    string
		weight float32
	}
	index := map[string]int{}
	var tags []weighted
	for _, n := range neighbours {
		for _, t := range n.Tags {
			i, ok := index[t]
			if !ok {
				i = len(tags)
				index[t] = i
				tags = append(tags, weighted{tag: t})
			}
			tags[i].weight += n.Score
		}
	}
	slices.SortStableFunc(tags, func(a, b weighted) int {
		return cmp.Compare(b.weight, a.weight)
	})

	out := make([]string, 0, min(k, len(tags)))
	for _, t := range tags {
		if len(out) == k {
			break
		}
		out = append(out, t.tag)
	}
	return out, nil
}

// Node is a graph vertex for one cache entry.
type Node struct {
	ID         core.ID   `json:"id"`
	Kind       core.Kind `json:"content_type"`
	Label      string    `json:"label"`
	TextSample string    `json:"text_sample"`
	Tags       []string  `json:"tags"`
}

// Edge links two entries whose similarity meets the graph threshold.
type Edge struct {
	From          core.ID `json:"from"`
	To            core.ID `json:"to"`
	Similarity    float32 `json:"similarity"`
	Bidirectional bool    `json:"bidirectional"`
}

// Graph is an undirected similarity graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// BuildGraph makes a node per entry and an edge per unordered pair whose
// similarity is at least threshold. Entries without vectors get no edges.
func BuildGraph(entries []cache.Entry, threshold float32) Graph {
	g := Graph{Nodes: make([]Node, 0, len(entries)), Edges: make([]Edge, 0)}
	for _, e := range entries {
		g.Nodes = append(g.Nodes, Node{
			ID:         e.ContentID,
			Kind:       e.Kind,
			Label:      core.FirstLine(e.Text, 50),
			TextSample: core.Truncate(e.Text, 100),
			Tags:       e.Tags,
		})
	}
	items := withVectors(entries)
	for i, a := range items {
		for _, b := range items[i+1:] {
			if sim := cosine(a, b); sim >= threshold {
				g.Edges = append(g.Edges, Edge{From: a.ContentID, To: b.ContentID, Similarity: sim, Bidirectional: true})
			}
		}
	}
	return g
}

// Diversity is the mean pairwise cosine distance of vectors, 0 for fewer
// than two.
func Diversity(vectors [][]float32) float32 {
	if len(vectors) < 2 {
		return 0
	}
	var total float32
	n := 0
	for i := range vectors {
		for j := i + 1; j < len(vectors); j++ {
			total += 1 - core.Cosine(vectors[i], vectors[j])
			n++
		}
	}
	return total / float32(n)
}

// Project reduces v to dims (2 or 3) components by averaging equal slices of
// it, then normalizes the result. It is a cheap layout aid, not PCA.
func Project(v []float32, dims int) ([]float32, error) {
	if dims != 2 && dims != 3 {
		return nil, fmt.Errorf("%w: projection must have 2 or 3 dimensions, got %d", core.ErrInvalidArgument, dims)
	}
	if len(v) < dims {
		return nil, fmt.Errorf("%w: vector of length %d cannot be projected to %d", core.ErrInvalidArgument, len(v), dims)
	}
	out := make([]float32, dims)
	width := len(v) / dims
	for i := range out {
		start := i * width
		end := start + width
		var sum float32
		for _, x := range v[start:end] {
			sum += x
		}
		out[i] = sum / float32(width)
	}
	return core.Normalize(out), nil
}
