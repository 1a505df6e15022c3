package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/poiesic/tdz/ai/mock"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dims = mock.DefaultDim

type item struct {
	id   core.ID
	kind core.Kind
	text string
	tags []string
}

func newTestEngine(t *testing.T, items []item, opts ...Option) (*Engine, *cache.Flat, *mock.MockEmbedder) {
	t.Helper()
	c := cache.NewFlat()
	for _, it := range items {
		kind := it.kind
		if kind == 0 {
			kind = core.KindTask
		}
		e := cache.Entry{
			Vector:    mock.Vector(it.text, dims),
			Kind:      kind,
			ContentID: it.id,
			Text:      it.text,
			Tags:      it.tags,
			CreatedAt: time.Now(),
		}
		c.Put(e.Key(), e)
	}
	embedder := mock.NewMockEmbedder()
	engine, err := NewEngine(c, embedder, opts...)
	require.NoError(t, err)
	return engine, c, embedder
}

var scenarioTasks = []item{
	{id: "t1", text: "Write documentation for the REST API", tags: []string{"docs"}},
	{id: "t2", text: "Document the HTTP endpoints and schemas", tags: []string{"docs", "api"}},
	{id: "t3", text: "Deploy service to production cluster", tags: []string{"ops"}},
}

func ids(results []Result) []core.ID {
	out := make([]core.ID, len(results))
	for i, r := range results {
		out[i] = r.ContentID
	}
	return out
}

func assertDescending(t *testing.T, results []Result) {
	t.Helper()
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results out of order at %d", i)
	}
}

func TestNewEngine(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	c := cache.NewFlat()

	t.Run("valid configuration", func(t *testing.T) {
		engine, err := NewEngine(c, embedder)
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		engine, err := NewEngine(c, embedder, WithLogger(nil), WithSettings(nil))
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("with custom logger", func(t *testing.T) {
		_, err := NewEngine(c, embedder, WithLogger(slog.Default()))
		require.NoError(t, err)
	})

	t.Run("nil cache", func(t *testing.T) {
		_, err := NewEngine(nil, embedder)
		assert.Equal(t, ErrCacheRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewEngine(c, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestSearch_EmptyCache(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	zero := Params{Threshold: Threshold(0)}

	results, err := engine.Semantic(ctx, "anything", zero)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.Hybrid(ctx, "anything", nil, 0.5, zero)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.MultiQuery(ctx, []string{"a", "b"}, Aggregation{Kind: AggregateMax}, zero)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.Recommend(ctx, []core.ID{"t1"}, nil, zero)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSemantic_FindsRelatedTask(t *testing.T) {
	engine, _, _ := newTestEngine(t, scenarioTasks)

	results, err := engine.Semantic(context.Background(), "api documentation", Params{Threshold: Threshold(0.3), Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Contains(t, []core.ID{"t1", "t2"}, results[0].ContentID)
	assert.NotContains(t, ids(results), core.ID("t3"))
	assertDescending(t, results)
}

func TestSemantic_DefaultThreshold(t *testing.T) {
	engine, _, _ := newTestEngine(t, scenarioTasks)

	// an exact text match scores 1; unrelated tasks fall below 0.7
	results, err := engine.Semantic(context.Background(), "Deploy service to production cluster", Params{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.ID("t3"), results[0].ContentID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestSemantic_SettingsAndLimit(t *testing.T) {
	var observed []Operation
	engine, _, _ := newTestEngine(t, scenarioTasks,
		WithSettings(func() Settings { return Settings{Threshold: -1, MaxResults: 2} }),
		WithObserver(func(op Operation, _ time.Duration, results int) {
			observed = append(observed, op)
			assert.LessOrEqual(t, results, 2)
		}),
	)

	results, err := engine.Semantic(context.Background(), "documentation", Params{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assertDescending(t, results)

	results, err = engine.Semantic(context.Background(), "documentation", Params{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []Operation{OpSemantic, OpSemantic}, observed)
}

func TestSemantic_KindFilter(t *testing.T) {
	items := append([]item{
		{id: "m1", kind: core.KindMemory, text: "Write documentation for the REST API"},
	}, scenarioTasks...)
	engine, _, _ := newTestEngine(t, items)

	results, err := engine.Semantic(context.Background(), "Write documentation for the REST API",
		Params{Kinds: []core.Kind{core.KindMemory}, Threshold: Threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.ID("m1"), results[0].ContentID)
	assert.Equal(t, core.KindMemory, results[0].Kind)
}

func TestSemantic_SkipsMismatchedVectors(t *testing.T) {
	engine, c, _ := newTestEngine(t, scenarioTasks)
	bad := cache.Entry{Vector: []float32{1, 0, 0}, Kind: core.KindIdea, ContentID: "old", Text: "restored"}
	c.Put(bad.Key(), bad)
	c.Put("idea:novec", cache.Entry{Kind: core.KindIdea, ContentID: "novec"})

	monitor := &CountingMonitor{}
	results, err := engine.Semantic(context.Background(), "restored", Params{Threshold: Threshold(-1), Monitor: monitor})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.NotContains(t, ids(results), core.ID("old"))
	assert.Equal(t, 1, monitor.Skips)
	assert.Equal(t, 3, monitor.Scanned)
	assert.Equal(t, 3, monitor.Accepted)
}

func TestSemantic_Errors(t *testing.T) {
	engine, _, embedder := newTestEngine(t, scenarioTasks)

	_, err := engine.Semantic(context.Background(), "  ", Params{})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	embedder.EmbedTextsFunc = func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, fmt.Errorf("%w: boom", core.ErrEncodingFailure)
	}
	_, err = engine.Semantic(context.Background(), "query", Params{})
	assert.ErrorIs(t, err, core.ErrEncodingFailure)

	embedder.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Semantic(ctx, "query", Params{})
	assert.True(t, errors.Is(err, context.Canceled))
}

type fakeTasks map[core.ID]*core.Artifact

func (f fakeTasks) Get(_ context.Context, id core.ID) (*core.Artifact, error) {
	a, ok := f[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return a, nil
}

func TestTasks(t *testing.T) {
	lookup := fakeTasks{}
	for i, it := range scenarioTasks {
		a := core.NewTask(it.text)
		a.ID = it.id
		a.Tags = it.tags
		a.Task.Progress = i * 40
		if it.id == "t2" {
			a.Task.Priority = core.PriorityHigh
		}
		lookup[it.id] = a
	}
	items := append([]item{{id: "i1", kind: core.KindIdea, text: "documentation idea", tags: []string{"docs"}}}, scenarioTasks...)
	anything := Params{Threshold: Threshold(-1)}

	t.Run("tag filter works without lookup", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, items)
		results, err := engine.Tasks(context.Background(), "documentation", core.ArtifactFilter{Tags: []string{"docs"}}, anything)
		require.NoError(t, err)
		assert.ElementsMatch(t, []core.ID{"t1", "t2"}, ids(results))
	})

	t.Run("payload filter requires lookup", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, items)
		_, err := engine.Tasks(context.Background(), "documentation",
			core.ArtifactFilter{Priorities: []core.Priority{core.PriorityHigh}}, anything)
		assert.ErrorIs(t, err, ErrTaskLookupRequired)
	})

	tests := []struct {
		name   string
		filter core.ArtifactFilter
		want   []core.ID
	}{
		{"priority", core.ArtifactFilter{Priorities: []core.Priority{core.PriorityHigh}}, []core.ID{"t2"}},
		{"status", core.ArtifactFilter{Statuses: []string{"todo"}}, []core.ID{"t1", "t2", "t3"}},
		{"progress range", core.ArtifactFilter{ProgressMin: ptr(30), ProgressMax: ptr(50)}, []core.ID{"t2"}},
		{"kinds are ignored", core.ArtifactFilter{Kinds: []core.Kind{core.KindIdea}, Statuses: []string{"done"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, _ := newTestEngine(t, items, WithTaskLookup(lookup))
			results, err := engine.Tasks(context.Background(), "documentation", tt.filter, anything)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(results))
			for _, r := range results {
				assert.Equal(t, core.KindTask, r.Kind)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestHybrid_KeywordOverridesSemantic(t *testing.T) {
	engine, _, _ := newTestEngine(t, []item{
		{id: "plain", text: "deploy the billing service"},
		{id: "flagged", text: "deploy the billing service urgent"},
	})

	results, err := engine.Hybrid(context.Background(), "urgent deploy", []string{"urgent"}, 0,
		Params{Limit: 2, Threshold: Threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, core.ID("flagged"), results[0].ContentID)
	assert.Greater(t, results[0].Score, results[1].Score)

	top := results[0]
	assert.InDelta(t, 0.3, top.Score, 1e-6)
	assert.InDelta(t, 0.3, top.Metadata[MetaKeyword], 1e-6)
	assert.Equal(t, top.Score, top.Metadata[MetaCombined])
	assert.Contains(t, top.Metadata, MetaSemantic)
}

func TestHybrid_Weights(t *testing.T) {
	engine, _, _ := newTestEngine(t, scenarioTasks)
	ctx := context.Background()
	all := Params{Threshold: Threshold(-1)}

	semantic, err := engine.Semantic(ctx, "REST API", all)
	require.NoError(t, err)
	want := make(map[core.ID]float32)
	for _, r := range semantic {
		want[r.ContentID] = r.Score
	}

	t.Run("weight one is pure semantic", func(t *testing.T) {
		results, err := engine.Hybrid(ctx, "REST API", nil, 1, all)
		require.NoError(t, err)
		require.Len(t, results, len(want))
		for _, r := range results {
			assert.InDelta(t, want[r.ContentID], r.Score, 1e-6)
		}
	})

	t.Run("weight above one is clamped", func(t *testing.T) {
		results, err := engine.Hybrid(ctx, "REST API", nil, 7, all)
		require.NoError(t, err)
		for _, r := range results {
			assert.InDelta(t, want[r.ContentID], r.Score, 1e-6)
		}
	})

	t.Run("weight zero is pure keyword", func(t *testing.T) {
		results, err := engine.Hybrid(ctx, "REST API", nil, 0, all)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, core.ID("t1"), results[0].ContentID)
		// whole query 0.5 plus keywords "rest" and "api" at 0.3 each, capped
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		for _, r := range results {
			assert.Equal(t, r.Metadata[MetaKeyword], r.Score)
		}
	})
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		query    string
		keywords []string
		want     float32
	}{
		{"no match", "deploy service", "docs", nil, 0},
		{"query substring", "Write the Docs", "the docs", nil, 0.5},
		{"one keyword", "deploy urgent fix", "nothing", []string{"URGENT"}, 0.3},
		{"query and keyword", "urgent deploy now", "urgent deploy", []string{"urgent"}, 0.8},
		{"capped", "a b c d", "a b", []string{"a", "b", "c"}, 1},
		{"empty keyword ignored", "abc", "zzz", []string{""}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, KeywordScore(tt.text, tt.query, tt.keywords), 1e-6)
		})
	}
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"write", "docs", "api"}, Keywords("Write the docs for the API, docs!"))
	assert.Empty(t, Keywords("the and of"))
}

func TestAggregation_Apply(t *testing.T) {
	sims := []float32{0.2, 0.8, 0.5}
	tests := []struct {
		name string
		agg  Aggregation
		want float32
	}{
		{"average", Aggregation{Kind: AggregateAverage}, 0.5},
		{"max", Aggregation{Kind: AggregateMax}, 0.8},
		{"min", Aggregation{Kind: AggregateMin}, 0.2},
		{"weighted", Aggregation{Kind: AggregateWeighted, Weights: []float32{0, 1, 1}}, 0.65},
		{"weighted with wrong count", Aggregation{Kind: AggregateWeighted, Weights: []float32{1}}, 0.5},
		{"weighted with no weights", Aggregation{Kind: AggregateWeighted}, 0.5},
		{"weighted summing to zero", Aggregation{Kind: AggregateWeighted, Weights: []float32{0, 0, 0}}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.agg.Apply(sims), 1e-6)
		})
	}
	assert.Zero(t, Aggregation{}.Apply(nil))
}

func TestParseAggregation(t *testing.T) {
	for in, want := range map[string]AggregationKind{
		"avg": AggregateAverage, "Max": AggregateMax, "min": AggregateMin, "weighted": AggregateWeighted,
	} {
		got, err := ParseAggregation(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAggregation("median")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestMultiQuery(t *testing.T) {
	engine, _, embedder := newTestEngine(t, scenarioTasks)
	ctx := context.Background()
	queries := []string{scenarioTasks[0].text, scenarioTasks[2].text}

	results, err := engine.MultiQuery(ctx, queries, Aggregation{Kind: AggregateMax}, Params{Threshold: Threshold(0.99)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ID{"t1", "t3"}, ids(results))
	assert.Equal(t, 1, embedder.CallCount(), "queries are embedded in one batch")

	results, err = engine.MultiQuery(ctx, queries, Aggregation{Kind: AggregateMin}, Params{Threshold: Threshold(0.99)})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.MultiQuery(ctx, queries,
		Aggregation{Kind: AggregateWeighted, Weights: []float32{1, 0}}, Params{Threshold: Threshold(0.99)})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{"t1"}, ids(results))

	_, err = engine.MultiQuery(ctx, nil, Aggregation{}, Params{})
	assert.ErrorIs(t, err, ErrNoQueries)
}

func TestSimilarTo(t *testing.T) {
	engine, _, embedder := newTestEngine(t, scenarioTasks)

	results, err := engine.SimilarTo(context.Background(), "t1", Params{Threshold: Threshold(-1)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.ID{"t2", "t3"}, ids(results))
	assertDescending(t, results)
	assert.Zero(t, embedder.CallCount())

	_, err = engine.SimilarTo(context.Background(), "missing", Params{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecommend(t *testing.T) {
	items := append([]item{
		{id: "i1", kind: core.KindIdea, text: "documentation for the API"},
		{id: "i2", kind: core.KindIdea, text: "cluster deploy scripts"},
	}, scenarioTasks...)
	engine, _, _ := newTestEngine(t, items)
	ctx := context.Background()

	results, err := engine.Recommend(ctx, []core.ID{"t1", "missing"}, []core.ID{"i2"}, Params{Threshold: Threshold(-1)})
	require.NoError(t, err)
	got := ids(results)
	assert.NotContains(t, got, core.ID("t1"))
	assert.NotContains(t, got, core.ID("i2"))
	require.NotEmpty(t, got)
	assert.Equal(t, core.ID("i1"), got[0])

	_, err = engine.Recommend(ctx, nil, nil, Params{})
	assert.ErrorIs(t, err, ErrEmptyBasedOn)
}

func TestSearch_TiesKeepCacheOrder(t *testing.T) {
	engine, _, _ := newTestEngine(t, []item{
		{id: "a", text: "same words"},
		{id: "b", text: "same words"},
		{id: "c", text: "same words"},
	})
	results, err := engine.Semantic(context.Background(), "same words", Params{})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{"a", "b", "c"}, ids(results))
}
