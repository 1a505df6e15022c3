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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/storage"
)

// ProcessorType names reembed checkpoints.
const ProcessorType = "reembed"

type Config struct {
	// BatchSize is the number of artifacts to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of artifacts)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// MissingOnly restricts the run to artifacts whose vector is absent or
	// has the wrong dimensionality.
	MissingOnly bool
}

func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a run.
type Result struct {
	Processed int
	Resumed   bool
	Elapsed   time.Duration
}

type Reembedder struct {
	source      Source
	embedder    ai.Embedder
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	logger      *slog.Logger
}

// NewReembedder creates a reembedder. checkpoints may be nil, in which case
// runs always start from the beginning. progress may be nil.
func NewReembedder(source Source, embedder ai.Embedder, sink Sink, checkpoints storage.CheckpointRepository,
	config *Config, progress io.Writer, logger *slog.Logger) (*Reembedder, error) {
	switch {
	case source == nil:
		return nil, ErrSourceRequired
	case embedder == nil:
		return nil, ErrEmbedderRequired
	case sink == nil:
		return nil, ErrSinkRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reembedder{
		source:      source,
		embedder:    embedder,
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(sink, embedder, config.MaxRetries, config.RetryDelay),
		logger:      logger.With("component", "reembed"),
	}, nil
}

func (r *Reembedder) needsVector(a *core.Artifact) bool {
	return len(a.Vector) != r.embedder.Dimensions()
}

// Run re-embeds every selected artifact in id order. Progress is
// checkpointed after each batch and the checkpoint is removed once the run
// completes.
func (r *Reembedder) Run(ctx context.Context) (Result, error) {
	var res Result

	it := NewArtifactIterator(r.source, r.config.BatchSize)
	if r.config.MissingOnly {
		it.Where(r.needsVector)
	}

	processed := 0
	if r.checkpoints != nil {
		cp, err := r.checkpoints.LoadCheckpoint(ctx, ProcessorType)
		if err != nil {
			return res, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if cp != nil {
			it.After(cp.LastID)
			processed = cp.Processed
			res.Resumed = true
			r.logger.Info("resuming from checkpoint", "last_id", cp.LastID, "processed", cp.Processed)
		}
	}

	artifacts, err := it.Collect(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list artifacts: %w", err)
	}

	total := processed + len(artifacts)
	if len(artifacts) == 0 {
		fmt.Fprintf(r.progress, "No artifacts to embed (0 artifacts)\n")
		return res, r.clearCheckpoint(ctx)
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d artifacts (batch size: %d)\n", len(artifacts), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()
	tracker.Update(processed)

	err = it.ForEach(ctx, func(batch []*core.Artifact) error {
		if err := r.processor.Process(ctx, batch); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(batch)
		res.Processed += len(batch)
		tracker.Update(processed)

		if r.checkpoints == nil {
			return nil
		}
		return r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
			ProcessorType: ProcessorType,
			LastID:        batch[len(batch)-1].ID,
			Processed:     processed,
			UpdatedAt:     time.Now().UTC(),
		})
	})
	if err != nil {
		return res, err
	}

	tracker.Finish()
	res.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d artifacts in %v (%.1f artifacts/sec)\n",
		res.Processed, res.Elapsed.Round(time.Millisecond), float64(res.Processed)/max(res.Elapsed.Seconds(), 1e-9))
	r.logger.Info("reembedding complete", "processed", res.Processed, "elapsed", res.Elapsed)

	return res, r.clearCheckpoint(ctx)
}

func (r *Reembedder) clearCheckpoint(ctx context.Context) error {
	if r.checkpoints == nil {
		return nil
	}
	return r.checkpoints.DeleteCheckpoint(ctx, ProcessorType)
}
