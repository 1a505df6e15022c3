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

package tdz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/ai/mock"
	"github.com/poiesic/tdz/ai/openai"
	"github.com/poiesic/tdz/analysis"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/config"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/encoder"
	"github.com/poiesic/tdz/logs"
	"github.com/poiesic/tdz/metrics"
	"github.com/poiesic/tdz/search"
	"github.com/poiesic/tdz/storage/badger"
	"github.com/robfig/cron/v3"
)

// Directory layout under the service root.
const (
	DBDir      = "db"
	ModelsDir  = "models"
	EmbedDir   = "embed"
	BackupsDir = "backups/embeddings"
)

// DefaultModelAlias names the model loaded at startup.
const DefaultModelAlias = "default"

// Service owns every resource of one knowledge root. It is safe for
// concurrent use.
type Service struct {
	root   string
	logger *slog.Logger
	now    func() time.Time

	cfgMu sync.RWMutex
	cfg   *config.Config

	// fileBackend is the backend named by the configuration file. UpdateConfig
	// saves it in place of a WithBackend override.
	fileBackend ai.Backend

	backend     *badger.Backend
	repo        *badger.ArtifactRepository
	checkpoints *badger.CheckpointRepository

	models   *encoder.Registry
	embedder ai.Embedder

	cache   cache.Cache
	engine  *search.Engine
	metrics *metrics.Metrics

	megaLog   *logs.MegaLog
	versions  *logs.VersionLog
	backupDir string

	driftMu sync.Mutex
	drift   map[core.ID][]analysis.DriftSnapshot

	cron    *cron.Cron
	watcher *config.Watcher

	closeOnce sync.Once
	closeErr  error
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	backend     ai.Backend
	embedder    ai.Embedder
	inMemory    bool
	now         func() time.Time
	hotReload   bool
	maintenance bool
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBackend overrides the configured embedding backend.
func WithBackend(backend ai.Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// WithEmbedder registers e as the default model instead of loading one.
func WithEmbedder(e ai.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithInMemoryStore keeps artifacts in memory instead of under the root.
func WithInMemoryStore() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithClock replaces time.Now for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithoutHotReload disables watching the configuration file.
func WithoutHotReload() Option {
	return func(o *options) {
		o.hotReload = false
	}
}

// WithoutMaintenance disables the scheduled maintenance jobs.
func WithoutMaintenance() Option {
	return func(o *options) {
		o.maintenance = false
	}
}

// Open initializes a service rooted at root: configuration, store, encoder
// (downloading model files if needed), cache warm-up, logs and scheduled
// maintenance. The model download is the only long blocking step.
func Open(ctx context.Context, root string, opts ...Option) (*Service, error) {
	o := options{
		logger:      slog.Default(),
		now:         time.Now,
		hotReload:   true,
		maintenance: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root: %w", core.ErrStorageIO, err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	fileBackend := cfg.Embedding.Backend
	if o.backend != "" {
		cfg.Embedding.Backend = o.backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	s := &Service{
		root:        root,
		logger:      o.logger.With("component", "service"),
		now:         o.now,
		cfg:         cfg,
		fileBackend: fileBackend,
		metrics:     metrics.New(metrics.DefaultNamespace),
		backupDir:   filepath.Join(root, BackupsDir),
		drift:       make(map[core.ID][]analysis.DriftSnapshot),
	}

	// Each step registers what it opened; a failure unwinds through Close.
	if err := s.open(ctx, o); err != nil {
		if cerr := s.Close(); cerr != nil {
			s.logger.Error("error closing after failed open", "err", cerr)
		}
		return nil, err
	}
	s.logger.Info("service opened", "root", root, "backend", cfg.Embedding.Backend,
		"model", cfg.Embedding.ModelName, "cached", s.cache.Len())
	return s, nil
}

func (s *Service) open(ctx context.Context, o options) error {
	cfg := s.Config()

	backend, err := badger.OpenBackend(filepath.Join(s.root, DBDir), o.inMemory, badger.WithLogger(o.logger))
	if err != nil {
		return err
	}
	s.backend = backend
	s.repo = badger.NewArtifactRepository(backend,
		badger.WithDefaultProject(cfg.DefaultProject),
		badger.WithClock(func() time.Time { return s.now().UTC() }),
	)
	s.checkpoints = badger.NewCheckpointRepository(backend, s.now)

	s.models = encoder.NewRegistry(s.loader(cfg), o.logger)
	var model ai.Embedder
	if o.embedder != nil {
		model = o.embedder
		if err := s.models.Register(DefaultModelAlias, cfg.Embedding.ModelName, model); err != nil {
			return err
		}
	} else if model, err = s.models.Load(ctx, DefaultModelAlias, cfg.Embedding.ModelName); err != nil {
		return err
	}
	// A local encoder reports its own width; stored vectors follow the config.
	if cfg.Embedding.Backend == ai.BackendLocal && model.Dimensions() != cfg.Embedding.Dimensions {
		return fmt.Errorf("%w: %w: model %s produces %d dimensions, embedding.dimensions is %d",
			core.ErrEncoderInit, core.ErrDimensionMismatch, cfg.Embedding.ModelName, model.Dimensions(), cfg.Embedding.Dimensions)
	}
	s.embedder = s.metrics.Instrument(activeModel{models: s.models})

	if bytes := cfg.CacheBytes(); bytes > 0 {
		s.cache = cache.NewLRU(int64(bytes), cache.WithClock(s.now))
	} else {
		s.cache = cache.NewFlat(cache.WithClock(s.now))
	}
	s.metrics.WatchCache(metrics.DefaultNamespace, s.cache.Stats)

	s.engine, err = search.NewEngine(s.cache, s.embedder,
		search.WithLogger(o.logger),
		search.WithTaskLookup(s.repo),
		search.WithSettings(s.searchSettings),
		search.WithObserver(s.metrics.ObserveSearch),
	)
	if err != nil {
		return err
	}

	embedDir := filepath.Join(s.root, EmbedDir)
	if s.megaLog, err = logs.OpenMegaLog(embedDir, logs.WithLogger(o.logger)); err != nil {
		return err
	}
	if s.versions, err = logs.OpenVersionLog(embedDir, logs.WithLogger(o.logger)); err != nil {
		return err
	}

	if _, err := s.warm(ctx); err != nil {
		return err
	}

	if o.maintenance {
		if err := s.startMaintenance(cfg.MaintenanceSchedule); err != nil {
			return err
		}
	}
	if o.hotReload {
		if err := s.startWatcher(o.logger); err != nil {
			return err
		}
	}
	return nil
}

// loader builds embedders for the configured backend. LoadModel uses it
// for every alias after the first.
func (s *Service) loader(cfg *config.Config) encoder.LoaderFunc {
	switch cfg.Embedding.Backend {
	case ai.BackendMock:
		dims := cfg.Embedding.Dimensions
		return func(_ context.Context, _ string) (ai.Embedder, error) {
			return ai.EmbedderOf(mock.NewMockProviderWithEmbedder(mock.NewMockEmbedderDim(dims))), nil
		}
	case ai.BackendRemote:
		return func(_ context.Context, modelName string) (ai.Embedder, error) {
			aiCfg := cfg.AI()
			aiCfg.EmbeddingModel = modelName
			provider, err := openai.NewProvider(aiCfg, openai.WithLogger(s.logger))
			if err != nil {
				return nil, err
			}
			return ai.EmbedderOf(provider), nil
		}
	default:
		hub := encoder.NewHub(filepath.Join(s.root, ModelsDir), encoder.WithHubLogger(s.logger))
		encOpts := []encoder.Option{
			encoder.WithLogger(s.logger),
			encoder.WithObserver(s.metrics.ObserveForward),
		}
		if cfg.Embedding.Workers > 0 {
			encOpts = append(encOpts, encoder.WithWorkers(cfg.Embedding.Workers))
		}
		return encoder.HubLoader(hub, encOpts...)
	}
}

// warm loads every stored vector of the active dimensionality into the
// cache. Tombstones are skipped.
func (s *Service) warm(ctx context.Context) (int, error) {
	all, err := s.repo.ListAcross(ctx, core.ArtifactFilter{})
	if err != nil {
		return 0, err
	}
	dims := s.embedder.Dimensions()
	n := 0
	for _, a := range all {
		if len(a.Vector) != dims {
			continue
		}
		entry := s.entryFor(a, core.ComposeText(a), a.Vector)
		s.cache.Put(entry.Key(), entry)
		n++
	}
	s.logger.Debug("cache warmed", "entries", n, "artifacts", len(all))
	return n, nil
}

func (s *Service) startWatcher(logger *slog.Logger) error {
	w, err := config.NewWatcher(s.root, config.WithLogger(logger))
	if err != nil {
		return err
	}
	w.OnChange(s.applyConfig)
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	s.watcher = w
	return nil
}

// applyConfig takes the settings that can change at runtime from a reloaded
// configuration. Encoder, store and cache shape stay as opened.
func (s *Service) applyConfig(next *config.Config) {
	s.cfgMu.Lock()
	cur := s.cfg.Clone()
	cur.SimilarityThreshold = next.SimilarityThreshold
	cur.ClusteringThreshold = next.ClusteringThreshold
	cur.CacheTTLSeconds = next.CacheTTLSeconds
	cur.MaxResults = next.MaxResults
	cur.EnableClustering = next.EnableClustering
	cur.HierarchyMaxDepth = next.HierarchyMaxDepth
	cur.AutoBackup = next.AutoBackup
	s.cfg = cur
	s.cfgMu.Unlock()

	if next.Embedding.ModelName != cur.Embedding.ModelName || next.Embedding.Backend != cur.Embedding.Backend {
		s.logger.Warn("encoder settings changed, restart to apply",
			"model", next.Embedding.ModelName, "backend", next.Embedding.Backend)
	}
	s.logger.Info("configuration reloaded",
		"similarity_threshold", cur.SimilarityThreshold, "max_results", cur.MaxResults)
}

// Config returns a copy of the live configuration.
func (s *Service) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone()
}

// UpdateConfig applies fn to a copy of the configuration, saves it under
// the root and installs it when it validates. Only runtime settings take
// effect before restart.
func (s *Service) UpdateConfig(fn func(cfg *config.Config)) error {
	next := s.Config()
	fn(next)
	if err := next.Validate(); err != nil {
		return err
	}

	persisted := next.Clone()
	if cur := s.Config(); next.Embedding.Backend == cur.Embedding.Backend {
		persisted.Embedding.Backend = s.fileBackend
	}
	if err := config.Save(s.root, persisted); err != nil {
		return err
	}
	s.applyConfig(next)
	return nil
}

func (s *Service) searchSettings() search.Settings {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return search.Settings{Threshold: s.cfg.SimilarityThreshold, MaxResults: s.cfg.MaxResults}
}

// Root returns the directory the service was opened on.
func (s *Service) Root() string { return s.root }

// Metrics returns the service collectors.
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Dimensions is the vector length of the default model.
func (s *Service) Dimensions() int { return s.embedder.Dimensions() }

// Close stops background work and releases resources in reverse order of
// acquisition. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.watcher != nil {
			s.watcher.Stop()
		}
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.models != nil {
			if err := s.models.Close(); err != nil {
				s.logger.Error("error closing models", "err", err)
				errs = append(errs, err)
			}
		}
		if s.repo != nil {
			if err := s.repo.Close(); err != nil {
				s.logger.Error("error closing artifact repository", "err", err)
				errs = append(errs, err)
			}
		}
		if s.backend != nil {
			if err := s.backend.Close(); err != nil {
				s.logger.Error("error closing backend storage", "err", err)
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// activeModel forwards to whichever embedder is the registry default, so
// a default switch reaches the search engine without rebuilding it.
type activeModel struct {
	models *encoder.Registry
}

func (m activeModel) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e, _, err := m.models.Default()
	if err != nil {
		return nil, err
	}
	return e.EmbedText(ctx, text)
}

func (m activeModel) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e, _, err := m.models.Default()
	if err != nil {
		return nil, err
	}
	return e.EmbedTexts(ctx, texts)
}

func (m activeModel) Dimensions() int {
	e, _, err := m.models.Default()
	if err != nil {
		return 0
	}
	return e.Dimensions()
}
