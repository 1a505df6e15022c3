package tdz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/analysis"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/encoder"
	"github.com/poiesic/tdz/search"
)

// profileLimit is the result limit of each ProfileSearch run.
const profileLimit = 10

// clusteringThreshold returns threshold, or the configured one when zero.
func (s *Service) clusteringThreshold(threshold float32) (float32, error) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if !s.cfg.EnableClustering {
		return 0, ErrClusteringDisabled
	}
	if threshold == 0 {
		return s.cfg.ClusteringThreshold, nil
	}
	return threshold, nil
}

// Clusters groups cached entries around seeds. A zero threshold uses the
// configured clustering threshold. When kinds are given only entries of
// those kinds take part.
func (s *Service) Clusters(_ context.Context, threshold float32, kinds ...core.Kind) ([]analysis.Cluster, error) {
	t, err := s.clusteringThreshold(threshold)
	if err != nil {
		return nil, err
	}
	entries, err := s.entriesOf(kinds)
	if err != nil {
		return nil, err
	}
	return analysis.FlatClusters(entries, t), nil
}

// HierarchicalClusters clusters recursively down to hierarchy_max_depth
// levels, loosening the threshold at each level. kinds filters as in
// Clusters.
func (s *Service) HierarchicalClusters(_ context.Context, threshold float32, kinds ...core.Kind) ([]analysis.HierarchicalCluster, error) {
	t, err := s.clusteringThreshold(threshold)
	if err != nil {
		return nil, err
	}
	entries, err := s.entriesOf(kinds)
	if err != nil {
		return nil, err
	}
	return analysis.Hierarchical(entries, t, s.Config().HierarchyMaxDepth), nil
}

// entriesOf returns the cached entries of kinds, or all of them when kinds
// is empty.
func (s *Service) entriesOf(kinds []core.Kind) ([]cache.Entry, error) {
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown kind %d", core.ErrInvalidArgument, int(k))
		}
	}
	entries := s.cache.Entries()
	if len(kinds) == 0 {
		return entries, nil
	}
	return slices.DeleteFunc(entries, func(e cache.Entry) bool {
		return !slices.Contains(kinds, e.Kind)
	}), nil
}

// LabelClusters names clusters after their dominant tags and words.
func (s *Service) LabelClusters(_ context.Context, clusters []analysis.Cluster) []analysis.LabeledCluster {
	return analysis.LabelClusters(clusters)
}

// Outliers returns entries of kind whose best similarity to any other
// entry of that kind is below threshold.
func (s *Service) Outliers(_ context.Context, kind core.Kind, threshold float32) ([]core.ID, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %d", core.ErrInvalidArgument, int(kind))
	}
	return analysis.Outliers(s.cache.Entries(), kind, threshold), nil
}

// SimilarityGraph links every pair of entries at or above threshold.
func (s *Service) SimilarityGraph(_ context.Context, threshold float32) analysis.Graph {
	return analysis.BuildGraph(s.cache.Entries(), threshold)
}

// SuggestTags proposes up to k tags for id from its nearest neighbours.
func (s *Service) SuggestTags(_ context.Context, id core.ID, k int) ([]string, error) {
	return analysis.SuggestTags(s.cache.Entries(), id, k)
}

// CrossTypeRelationships finds entries of other kinds related to id,
// grouped by kind.
func (s *Service) CrossTypeRelationships(_ context.Context, id core.ID, minSimilarity float32, limit int) (map[core.Kind][]search.Result, error) {
	entry, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", search.ErrNotInCache, id)
	}
	return analysis.CrossType(s.cache.Entries(), id, entry.Kind, minSimilarity, limit)
}

// DiversityScore is the mean pairwise cosine distance of the cached
// vectors of ids, or of the whole cache when ids is empty. Uncached ids
// are ignored.
func (s *Service) DiversityScore(_ context.Context, ids []core.ID) float32 {
	var vectors [][]float32
	if len(ids) == 0 {
		for _, e := range s.cache.Entries() {
			vectors = append(vectors, e.Vector)
		}
	}
	for _, id := range ids {
		if e, ok := s.lookup(id); ok {
			vectors = append(vectors, e.Vector)
		}
	}
	return analysis.Diversity(vectors)
}

// Projection reduces the cached vector of id to 2 or 3 components for
// plotting.
func (s *Service) Projection(_ context.Context, id core.ID, dims int) ([]float32, error) {
	entry, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", search.ErrNotInCache, id)
	}
	return analysis.Project(entry.Vector, dims)
}

// Stats describes the cache and the active model.
type Stats struct {
	Cache      cache.Stats    `json:"cache"`
	HitRate    float64        `json:"hit_rate"`
	ByKind     map[string]int `json:"by_kind"`
	Model      string         `json:"model"`
	ModelAlias string         `json:"model_alias"`
	Models     []string       `json:"models"`
	Dimensions int            `json:"dimensions"`
	Backend    ai.Backend     `json:"backend"`
}

// Stats reports cache counters, entries per kind and the active model.
func (s *Service) Stats(_ context.Context) Stats {
	cs := s.cache.Stats()
	st := Stats{
		Cache:      cs,
		HitRate:    cs.HitRate(),
		ByKind:     make(map[string]int),
		Models:     s.models.Aliases(),
		Dimensions: s.Dimensions(),
		Backend:    s.Config().Embedding.Backend,
	}
	if _, alias, err := s.models.Default(); err == nil {
		st.ModelAlias = alias
		st.Model = s.models.ModelName(alias)
	}
	for _, e := range s.cache.Entries() {
		st.ByKind[e.Kind.String()]++
	}
	return st
}

// ValidateEmbeddings scans the cache for non-finite, zero, mis-sized and
// unnormalized vectors.
func (s *Service) ValidateEmbeddings(_ context.Context) analysis.ValidationReport {
	return analysis.Validate(s.cache.Entries(), s.Dimensions())
}

// QueryProfile is the timing of one profiled query.
type QueryProfile struct {
	Query   string          `json:"query"`
	Timing  analysis.Timing `json:"timing"`
	Results int             `json:"results_per_iteration"`
}

// ProfileSearch runs each query iterations times as a semantic search and
// reports the timings.
func (s *Service) ProfileSearch(ctx context.Context, queries []string, iterations int) ([]QueryProfile, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", core.ErrInvalidArgument, iterations)
	}
	out := make([]QueryProfile, 0, len(queries))
	for _, q := range queries {
		samples := make([]time.Duration, 0, iterations)
		var n int
		for range iterations {
			start := time.Now()
			results, err := s.engine.Semantic(ctx, q, search.Params{Limit: profileLimit})
			if err != nil {
				return nil, err
			}
			samples = append(samples, time.Since(start))
			n = len(results)
		}
		out = append(out, QueryProfile{Query: q, Timing: analysis.SummarizeTimings(samples), Results: n})
	}
	return out, nil
}

// Diagnostics summarizes the cache contents and hit rate.
func (s *Service) Diagnostics(ctx context.Context, topPairs int) (analysis.DiagnosticReport, error) {
	report, err := analysis.Diagnose(ctx, s.cache.Entries(), topPairs)
	if err != nil {
		return report, err
	}
	report.CacheHitRate = float32(s.cache.Stats().HitRate())
	return report, nil
}

// Explanation breaks a search hit down by vector dimension.
type Explanation struct {
	ContentID     core.ID                 `json:"content_id"`
	Kind          core.Kind               `json:"content_type"`
	Similarity    float32                 `json:"similarity_score"`
	Tags          []string                `json:"tags"`
	TopDimensions []analysis.Contribution `json:"top_dimensions"`
	TextPreview   string                  `json:"text_preview"`
}

func (e Explanation) String() string {
	dims := make([]int, len(e.TopDimensions))
	for i, c := range e.TopDimensions {
		dims[i] = c.Dimension
	}
	return fmt.Sprintf("Match %s (%s, similarity %.3f)\n  tags: %v\n  top dimensions: %v\n  semantic overlap: %.1f%%\n  text: %s",
		e.ContentID, e.Kind, e.Similarity, e.Tags, dims, e.Similarity*100, e.TextPreview)
}

const (
	explainDims  = 5
	previewRunes = 100
)

// ExplainResult embeds query and reports which dimensions contribute most
// to its similarity with the cached entry of id.
func (s *Service) ExplainResult(ctx context.Context, query string, id core.ID) (Explanation, error) {
	entry, ok := s.lookup(id)
	if !ok {
		return Explanation{}, fmt.Errorf("%w: %s", search.ErrNotInCache, id)
	}
	q, err := s.Embed(ctx, query)
	if err != nil {
		return Explanation{}, err
	}
	return Explanation{
		ContentID:     entry.ContentID,
		Kind:          entry.Kind,
		Similarity:    core.Cosine(q, entry.Vector),
		Tags:          append([]string{}, entry.Tags...),
		TopDimensions: analysis.Explain(q, entry.Vector, explainDims),
		TextPreview:   core.Truncate(entry.Text, previewRunes),
	}, nil
}

// ModelRun is one model's output in a comparison.
type ModelRun struct {
	Alias      string        `json:"alias"`
	Model      string        `json:"model_name"`
	Dimensions int           `json:"dimensions"`
	Elapsed    time.Duration `json:"generation_time"`
	Vectors    [][]float32   `json:"embeddings"`
	// Fallback is set when the alias was not loaded and the default model
	// answered instead.
	Fallback bool `json:"fallback"`
}

// ModelComparison holds each model's vectors for the same texts and how
// closely their similarity structure agrees with the first model's.
type ModelComparison struct {
	Texts     []string           `json:"texts"`
	Runs      []ModelRun         `json:"models"`
	Agreement map[string]float32 `json:"agreement"`
}

// CompareModels embeds texts with each alias. Unknown aliases fall back to
// the default model.
func (s *Service) CompareModels(ctx context.Context, aliases []string, texts []string) (ModelComparison, error) {
	if len(aliases) == 0 || len(texts) == 0 {
		return ModelComparison{}, fmt.Errorf("%w: need at least one model and one text", core.ErrInvalidArgument)
	}
	out := ModelComparison{Texts: texts, Agreement: make(map[string]float32)}
	for _, alias := range aliases {
		run := ModelRun{Alias: alias, Model: s.models.ModelName(alias)}
		e, err := s.models.Get(alias)
		if errors.Is(err, encoder.ErrUnknownModel) {
			var def string
			e, def, err = s.models.Default()
			run.Fallback = true
			run.Model = s.models.ModelName(def)
		}
		if err != nil {
			return ModelComparison{}, err
		}
		start := time.Now()
		vecs, err := e.EmbedTexts(ctx, texts)
		if err != nil {
			return ModelComparison{}, fmt.Errorf("model %s: %w", alias, err)
		}
		run.Elapsed = time.Since(start)
		run.Vectors = vecs
		run.Dimensions = e.Dimensions()
		out.Runs = append(out.Runs, run)
	}
	base := out.Runs[0].Vectors
	for _, run := range out.Runs[1:] {
		if a, ok := analysis.Agreement(base, run.Vectors); ok {
			out.Agreement[run.Alias] = a
		}
	}
	return out, nil
}

// LoadModel loads modelName with the configured backend and registers it
// under alias. Loading the default alias replaces the active model.
func (s *Service) LoadModel(ctx context.Context, alias, modelName string) error {
	_, err := s.models.Load(ctx, alias, modelName)
	return err
}

// UseModel makes a loaded alias the default. Its dimensionality must match
// the current default.
func (s *Service) UseModel(alias string) error {
	return s.models.SetDefault(alias)
}
