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
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/search"
)

const (
	// Decay scales the threshold at each level of a hierarchy.
	Decay float32 = 0.9

	// MinHierarchyThreshold is the floor a decayed threshold never drops below.
	MinHierarchyThreshold float32 = 0.1

	DefaultMaxDepth = 3
)

// Cluster is a group of entries similar to a seed. Members[0] is the seed,
// scored 1.
type Cluster struct {
	ID                string          `json:"cluster_id"`
	Members           []search.Result `json:"content_items"`
	Center            []float32       `json:"cluster_center"`
	Size              int             `json:"cluster_size"`
	AverageSimilarity float32         `json:"average_similarity"`
}

// HierarchicalCluster is a cluster with sub-clusters formed among its
// non-seed members.
type HierarchicalCluster struct {
	ID                string                `json:"cluster_id"`
	Level             int                   `json:"level"`
	ParentID          string                `json:"parent_id,omitempty"`
	Members           []search.Result       `json:"content_items"`
	Center            []float32             `json:"cluster_center"`
	Children          []HierarchicalCluster `json:"children"`
	AverageSimilarity float32               `json:"average_similarity"`
}

// LabeledCluster is a cluster with a human readable name.
type LabeledCluster struct {
	ID          string          `json:"cluster_id"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Confidence  float32         `json:"confidence"`
	Members     []search.Result `json:"content_items"`
}

func resultOf(e cache.Entry, score float32) search.Result {
	return search.Result{
		ContentID: e.ContentID,
		Kind:      e.Kind,
		Score:     score,
		Text:      e.Text,
		Tags:      e.Tags,
	}
}

func withVectors(entries []cache.Entry) []cache.Entry {
	out := make([]cache.Entry, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// averageMemberScore is the mean score of every member but the seed.
func averageMemberScore(members []search.Result) float32 {
	if len(members) < 2 {
		return 1
	}
	var sum float32
	for _, m := range members[1:] {
		sum += m.Score
	}
	return sum / float32(len(members)-1)
}

// FlatClusters groups entries by seed growth: each unprocessed entry seeds a
// cluster of every other unprocessed entry within threshold of it. Only
// clusters of two or more entries are returned. The center is the seed
// vector.
func FlatClusters(entries []cache.Entry, threshold float32) []Cluster {
	items := withVectors(entries)
	processed := make([]bool, len(items))
	clusters := make([]Cluster, 0)

	for i, seed := range items {
		if processed[i] {
			continue
		}
		processed[i] = true
		members := []search.Result{resultOf(seed, 1)}
		for j := i + 1; j < len(items); j++ {
			if processed[j] {
				continue
			}
			if sim := cosine(seed, items[j]); sim >= threshold {
				members = append(members, resultOf(items[j], sim))
				processed[j] = true
			}
		}
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, Cluster{
			ID:                uuid.NewString(),
			Members:           members,
			Center:            slices.Clone(seed.Vector),
			Size:              len(members),
			AverageSimilarity: averageMemberScore(members),
		})
	}
	return clusters
}

// Hierarchical clusters entries like FlatClusters, then recursively clusters the
// non-seed members of each cluster with the threshold scaled by Decay.
// Recursion stops at maxDepth levels or when fewer than two members remain.
// The decayed threshold never falls below MinHierarchyThreshold unless the
// starting threshold already did.
func Hierarchical(entries []cache.Entry, threshold float32, maxDepth int) []HierarchicalCluster {
	out := buildLevel(withVectors(entries), 0, maxDepth, threshold, "")
	if out == nil {
		out = []HierarchicalCluster{}
	}
	return out
}

func decay(threshold float32) float32 {
	return max(threshold*Decay, min(threshold, MinHierarchyThreshold))
}

func buildLevel(items []cache.Entry, level, maxDepth int, threshold float32, parent string) []HierarchicalCluster {
	if level >= maxDepth {
		return nil
	}
	var out []HierarchicalCluster
	for len(items) > 0 {
		seed := items[0]
		var members, rest []cache.Entry
		results := []search.Result{resultOf(seed, 1)}
		for _, e := range items[1:] {
			if sim := cosine(seed, e); sim >= threshold {
				members = append(members, e)
				results = append(results, resultOf(e, sim))
			} else {
				rest = append(rest, e)
			}
		}
		items = rest
		if len(members) == 0 {
			continue
		}

		c := HierarchicalCluster{
			ID:                uuid.NewString(),
			Level:             level,
			ParentID:          parent,
			Members:           results,
			Center:            slices.Clone(seed.Vector),
			AverageSimilarity: averageMemberScore(results),
		}
		if len(members) >= 2 {
			c.Children = buildLevel(members, level+1, maxDepth, decay(threshold), c.ID)
		}
		if c.Children == nil {
			c.Children = []HierarchicalCluster{}
		}
		out = append(out, c)
	}
	return out
}

// LabelClusters names each cluster after its most frequent tag, falling back
// to the first words of the seed text.
func LabelClusters(clusters []Cluster) []LabeledCluster {
	out := make([]LabeledCluster, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, LabeledCluster{
			ID:          c.ID,
			Label:       label(c.Members),
			Description: fmt.Sprintf("Contains %d items with avg similarity of %.2f", c.Size, c.AverageSimilarity),
			Confidence:  c.AverageSimilarity,
			Members:     c.Members,
		})
	}
	return out
}

func label(members []search.Result) string {
	type count struct {
		tag string
		n   int
	}
	counts := map[string]*count{}
	var order []*count
	for _, m := range members {
		for _, t := range m.Tags {
			c, ok := counts[t]
			if !ok {
				c = &count{tag: t}
				counts[t] = c
				order = append(order, c)
			}
			c.n++
		}
	}
	if len(order) > 0 {
		slices.SortStableFunc(order, func(a, b *count) int {
			return cmp.Compare(b.n, a.n)
		})
		return "Cluster: " + order[0].tag
	}
	if len(members) > 0 {
		words := strings.Fields(members[0].Text)
		if len(words) > 3 {
			words = words[:3]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	return "Unlabeled Cluster"
}
