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
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/ingestion"
	"github.com/poiesic/tdz/logs"
	"github.com/poiesic/tdz/reembed"
	"github.com/robfig/cron/v3"
)

// Maintenance job names reported to metrics.
const (
	JobCleanupExpired = "cleanup_expired"
	JobBackup         = "backup"
	JobCompact        = "compact"
)

// preloadFanout is how many nearest neighbours PreloadRelated follows per item.
const preloadFanout = 5

// cronLogger adapts slog to the cron scheduler.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}

func (s *Service) startMaintenance(schedule string) error {
	cl := cronLogger{logger: s.logger.With("component", "maintenance")}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(schedule, func() {
		if err := s.RunMaintenance(context.Background()); err != nil {
			s.logger.Error("maintenance failed", "err", err)
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

// RunMaintenance sweeps expired cache entries, compacts the artifact
// database and, when auto_backup is set, writes a backup. The scheduler
// calls it; callers may too.
func (s *Service) RunMaintenance(ctx context.Context) error {
	removed := s.CleanupExpired(ctx)
	s.metrics.MaintenanceRun(JobCleanupExpired, nil)
	s.logger.Info("expired entries removed", "count", removed)

	err := s.repo.Compact(ctx)
	s.metrics.MaintenanceRun(JobCompact, err)
	if err != nil {
		return err
	}

	if !s.Config().AutoBackup {
		return nil
	}
	path, err := s.Backup(ctx)
	s.metrics.MaintenanceRun(JobBackup, err)
	if err != nil {
		return err
	}
	s.logger.Info("backup written", "path", path)
	return nil
}

// CleanupExpired removes cache entries whose TTL has passed.
func (s *Service) CleanupExpired(_ context.Context) int {
	return s.cache.CleanupExpired(s.now())
}

// Backup writes the cache to a timestamped file under the backup directory
// and returns its path.
func (s *Service) Backup(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, skipped, err := logs.Backup(s.backupDir, s.cache.Entries(), s.now())
	if err != nil {
		return "", err
	}
	if len(skipped) > 0 {
		s.logger.Warn("backup skipped entries with non-finite vectors", "path", path, "count", len(skipped), "keys", skipped)
	}
	return path, nil
}

// Restore replaces the cache with the contents of a backup file. Vectors
// are not checked against the active model; ValidateEmbeddings reports
// mismatches. A relative path is resolved against the backup directory.
func (s *Service) Restore(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(s.backupDir, path)
	}
	entries, err := logs.Restore(path)
	if err != nil {
		return 0, err
	}
	s.cache.Replace(entries)
	s.logger.Info("cache restored", "path", path, "entries", len(entries))
	return len(entries), nil
}

// ListBackups returns the backups under the backup directory by name.
func (s *Service) ListBackups(_ context.Context) ([]logs.BackupInfo, error) {
	return logs.ListBackups(s.backupDir)
}

// ExportForFineTuning writes one training example per cached entry to path.
func (s *Service) ExportForFineTuning(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return logs.ExportFineTuning(path, s.cache.Entries())
}

// PreloadRelated walks up to depth hops from id through dependencies and
// nearest cached neighbours, loading stored vectors that are missing from
// the cache. It returns the ids reached, excluding id.
func (s *Service) PreloadRelated(ctx context.Context, id core.ID, depth int) ([]core.ID, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, err
	}
	dims := s.Dimensions()
	type item struct {
		id    core.ID
		depth int
	}
	queue := []item{{id, depth}}
	seen := map[core.ID]bool{id: true}
	var reached []core.ID

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return reached, err
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.depth <= 0 {
			continue
		}

		var next []core.ID
		if a, err := s.repo.Get(ctx, cur.id); err == nil {
			next = append(next, a.Dependencies()...)
		} else if !errors.Is(err, core.ErrNotFound) {
			return reached, err
		}
		if entry, ok := s.lookup(cur.id); ok && len(entry.Vector) == dims {
			next = append(next, s.neighbours(entry, preloadFanout)...)
		}

		for _, n := range next {
			if seen[n] {
				continue
			}
			seen[n] = true
			if err := s.ensureCached(ctx, n, dims); err != nil {
				return reached, err
			}
			reached = append(reached, n)
			queue = append(queue, item{n, cur.depth - 1})
		}
	}
	return reached, nil
}

// neighbours returns the ids of the k entries most similar to entry.
func (s *Service) neighbours(entry cache.Entry, k int) []core.ID {
	type scored struct {
		id    core.ID
		score float32
	}
	var all []scored
	for _, e := range s.cache.Entries() {
		if e.ContentID == entry.ContentID || len(e.Vector) != len(entry.Vector) {
			continue
		}
		all = append(all, scored{e.ContentID, core.Cosine(entry.Vector, e.Vector)})
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	ids := make([]core.ID, 0, k)
	for _, sc := range all[:min(k, len(all))] {
		ids = append(ids, sc.id)
	}
	return ids
}

// ensureCached inserts the stored vector of id when the cache lacks it.
func (s *Service) ensureCached(ctx context.Context, id core.ID, dims int) error {
	if _, ok := s.lookup(id); ok {
		return nil
	}
	a, err := s.repo.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(a.Vector) != dims {
		return nil
	}
	entry := s.entryFor(a, core.ComposeText(a), a.Vector)
	s.cache.Put(entry.Key(), entry)
	return nil
}

// ReembedOptions tune Reembed.
type ReembedOptions struct {
	// MissingOnly limits the run to artifacts without a usable vector.
	MissingOnly bool
	// BatchSize overrides reembed.DefaultConfig().BatchSize when positive.
	BatchSize int
}

// Reembed regenerates stored vectors with the default model and refreshes
// the cache. Progress lines go to progress when non-nil. An interrupted run
// resumes from its checkpoint.
func (s *Service) Reembed(ctx context.Context, opts ReembedOptions, progress io.Writer) (reembed.Result, error) {
	cfg := reembed.DefaultConfig()
	cfg.MissingOnly = opts.MissingOnly
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
		cfg.ReportInterval = opts.BatchSize
	}
	r, err := reembed.NewReembedder(s.repo, s.embedder, s, s.checkpoints, cfg, progress, s.logger)
	if err != nil {
		return reembed.Result{}, err
	}
	return r.Run(ctx)
}

// SetVector stores a regenerated vector and replaces the cache entry.
func (s *Service) SetVector(ctx context.Context, a *core.Artifact, vector []float32, text string) error {
	_, err := s.storeVector(ctx, a.ID, vector, text)
	return err
}

// IngestOptions tune IngestSource.
type IngestOptions struct {
	// Level sets the chunk token budget. Default core.LevelMethod.
	Level core.ChunkLevel
	Tags  []string
}

// IngestSource splits a source file into code chunks and adds each as an
// artifact. Re-ingesting the same file is idempotent.
func (s *Service) IngestSource(ctx context.Context, project, name, source string, opts IngestOptions) (ingestion.Result, error) {
	if opts.Level == 0 {
		opts.Level = core.LevelMethod
	}
	p, err := s.pipeline()
	if err != nil {
		return ingestion.Result{}, err
	}
	defer p.Release()
	return p.Ingest(ctx, ingestion.Source{
		Project: project,
		Name:    name,
		Code:    source,
		Level:   opts.Level,
		Tags:    opts.Tags,
	})
}

// IngestPlan parses <chunk> blocks from a planning message and adds them.
// Chunks that fail to parse are reported in the error alongside the
// result for the rest.
func (s *Service) IngestPlan(ctx context.Context, project, message string) (ingestion.Result, error) {
	plan, parseErr := ingestion.ParseChunks(message)
	if len(plan) == 0 {
		return ingestion.Result{}, parseErr
	}
	p, err := s.pipeline()
	if err != nil {
		return ingestion.Result{}, err
	}
	defer p.Release()
	res, err := p.IngestPlan(ctx, project, plan)
	return res, errors.Join(parseErr, err)
}

func (s *Service) pipeline() (*ingestion.Pipeline, error) {
	var counter ingestion.TokenCounter = ingestion.HeuristicCounter{}
	if s.Config().Embedding.Backend != ai.BackendMock {
		if tc, err := ingestion.NewTiktokenCounter(ingestion.DefaultEncoding); err == nil {
			counter = tc
		} else {
			s.logger.Warn("tiktoken unavailable, estimating tokens", "err", err)
		}
	}
	return ingestion.NewPipeline(s,
		ingestion.WithLogger(s.logger),
		ingestion.WithTokenCounter(counter),
		ingestion.WithCheckpoints(s.checkpoints),
	)
}
