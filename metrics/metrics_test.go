package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/tdz/ai/mock"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/search"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	m := New("")
	emb := mock.NewMockEmbedder()
	wrapped := m.Instrument(emb)
	assert.Equal(t, emb.Dimensions(), wrapped.Dimensions())

	_, err := wrapped.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	v, err := wrapped.EmbedText(context.Background(), "d")
	require.NoError(t, err)
	assert.Len(t, v, emb.Dimensions())

	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("boom")
	}
	_, err = wrapped.EmbedText(context.Background(), "e")
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbedRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbedRequests.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.EmbedTexts))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EmbedDuration))
	var sample dto.Metric
	require.NoError(t, m.EmbedDuration.Write(&sample))
	assert.Equal(t, uint64(3), sample.GetHistogram().GetSampleCount(), "one observation per call")
}

func TestObserveSearch(t *testing.T) {
	m := New("tdz")
	m.ObserveSearch(search.OpSemantic, 2*time.Millisecond, 3)
	m.ObserveSearch(search.OpSemantic, time.Millisecond, 0)
	m.ObserveSearch(search.OpHybrid, time.Millisecond, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchTotal.WithLabelValues("semantic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchTotal.WithLabelValues("hybrid")))
}

func TestCountersAndCache(t *testing.T) {
	m := New("tdz")
	c := cache.NewFlat()
	c.Put("task:t1", cache.Entry{Kind: core.KindTask, ContentID: "t1", Vector: []float32{1, 0}, Text: "x"})
	c.Get("task:t1")
	c.Get("task:missing")
	m.WatchCache("tdz", c.Stats)

	m.ArtifactCreated(core.KindIdea)
	m.MaintenanceRun("cleanup_expired", nil)
	m.MaintenanceRun("cleanup_expired", errors.New("x"))
	m.ObserveForward(4, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactsCreated.WithLabelValues("idea")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaintenanceRuns.WithLabelValues("cleanup_expired", "error")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"tdz_cache_entries 1",
		"tdz_cache_hits_total 1",
		"tdz_cache_misses_total 1",
		"tdz_cache_hit_rate 0.5",
		"tdz_artifacts_created_total{kind=\"idea\"} 1",
		"tdz_encoder_forward_seconds_count 1",
	} {
		assert.True(t, strings.Contains(body, want), "missing %q", want)
	}
}
