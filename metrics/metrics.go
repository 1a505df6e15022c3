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

// Package metrics exports Prometheus collectors for the embedding cache,
// the encoders and the search engine.
package metrics

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "tdz"

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	EmbedRequests  *prometheus.CounterVec
	EmbedDuration  prometheus.Histogram
	EmbedTexts     prometheus.Counter
	ForwardSeconds prometheus.Histogram

	SearchTotal    *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	SearchResults  *prometheus.HistogramVec

	ArtifactsCreated *prometheus.CounterVec
	MaintenanceRuns  *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EmbedRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embed_requests_total",
				Help:      "Embedding batches by outcome",
			},
			[]string{"status"},
		),
		EmbedDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embed_duration_seconds",
				Help:      "Embedding batch latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		EmbedTexts: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embed_texts_total",
				Help:      "Texts embedded",
			},
		),
		ForwardSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "encoder_forward_seconds",
				Help:      "Local encoder forward pass latency per batch",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		SearchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_total",
				Help:      "Searches by operation",
			},
			[]string{"op"},
		),
		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Search latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
		SearchResults: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_results",
				Help:      "Results returned per search",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"op"},
		),
		ArtifactsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_created_total",
				Help:      "Artifacts created by kind",
			},
			[]string{"kind"},
		),
		MaintenanceRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Scheduled maintenance jobs by job and outcome",
			},
			[]string{"job", "status"},
		),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WatchCache exports cache statistics read from stats at scrape time.
// Call it once per registry.
func (m *Metrics) WatchCache(namespace string, stats func() cache.Stats) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(m.registry)
	gauge := func(name, help string, value func(cache.Stats) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "cache", Name: name, Help: help},
			func() float64 { return value(stats()) })
	}
	counter := func(name, help string, value func(cache.Stats) float64) {
		f.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Subsystem: "cache", Name: name, Help: help},
			func() float64 { return value(stats()) })
	}

	gauge("entries", "Cached embeddings", func(s cache.Stats) float64 { return float64(s.Entries) })
	gauge("bytes", "Estimated cache size in bytes", func(s cache.Stats) float64 { return float64(s.Bytes) })
	gauge("hit_rate", "Cache hits over lookups", func(s cache.Stats) float64 { return s.HitRate() })
	counter("hits_total", "Cache hits", func(s cache.Stats) float64 { return float64(s.Hits) })
	counter("misses_total", "Cache misses", func(s cache.Stats) float64 { return float64(s.Misses) })
	counter("evictions_total", "Entries evicted by the byte cap", func(s cache.Stats) float64 { return float64(s.Evictions) })
	counter("expired_total", "Entries removed after their TTL", func(s cache.Stats) float64 { return float64(s.Expired) })
}

// ObserveSearch matches search.WithObserver.
func (m *Metrics) ObserveSearch(op search.Operation, elapsed time.Duration, results int) {
	label := string(op)
	m.SearchTotal.WithLabelValues(label).Inc()
	m.SearchDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	m.SearchResults.WithLabelValues(label).Observe(float64(results))
}

// ObserveForward matches encoder.WithObserver.
func (m *Metrics) ObserveForward(texts int, elapsed time.Duration) {
	m.ForwardSeconds.Observe(elapsed.Seconds())
}

// ArtifactCreated counts a stored artifact.
func (m *Metrics) ArtifactCreated(kind core.Kind) {
	m.ArtifactsCreated.WithLabelValues(kind.String()).Inc()
}

// MaintenanceRun counts a scheduled job outcome.
func (m *Metrics) MaintenanceRun(job string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MaintenanceRuns.WithLabelValues(job, status).Inc()
}

// Instrument wraps e so every batch is counted and timed.
func (m *Metrics) Instrument(e ai.Embedder) ai.Embedder {
	return &instrumented{Embedder: e, m: m}
}

type instrumented struct {
	ai.Embedder
	m *Metrics
}

func (i *instrumented) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := i.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (i *instrumented) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := i.Embedder.EmbedTexts(ctx, texts)
	i.m.EmbedDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		i.m.EmbedRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	i.m.EmbedRequests.WithLabelValues("ok").Inc()
	i.m.EmbedTexts.Add(float64(len(texts)))
	return vecs, nil
}

// Close closes the wrapped embedder when it holds resources.
func (i *instrumented) Close() error {
	if c, ok := i.Embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
