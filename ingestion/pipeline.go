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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/storage"
)

// chunkNamespace seeds the name-based ids of ingested chunks.
var chunkNamespace = uuid.MustParse("6f1d2c4e-9a57-4b8e-8c3f-2d0e5a7b9c11")

// Sink stores a new artifact, embedding and indexing it.
type Sink interface {
	AddArtifact(ctx context.Context, a *core.Artifact) (*core.Artifact, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a *core.Artifact) (*core.Artifact, error)

func (f SinkFunc) AddArtifact(ctx context.Context, a *core.Artifact) (*core.Artifact, error) {
	return f(ctx, a)
}

// Source is one file to ingest.
type Source struct {
	Project string
	Name    string
	Code    string
	Level   core.ChunkLevel
	Tags    []string
}

// Result reports the outcome of an ingestion.
type Result struct {
	IDs      []core.ID
	Created  int
	Existing int
	Resumed  bool
}

// Pipeline orchestrates chunk creation on a worker pool.
type Pipeline struct {
	sink        Sink
	checkpoints storage.CheckpointRepository
	pool        *ants.Pool
	counter     TokenCounter
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithTokenCounter sets the token estimator. Default is HeuristicCounter.
func WithTokenCounter(c TokenCounter) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.counter = c
		}
		return nil
	}
}

// WithCheckpoints enables resumable ingestion.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(p *Pipeline) error {
		p.checkpoints = repo
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(sink Sink, opts ...Option) (*Pipeline, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		sink:    sink,
		pool:    pool,
		counter: HeuristicCounter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// ChunkID returns the id of piece index of a source.
func ChunkID(project, name string, index int) core.ID {
	return core.ID(uuid.NewSHA1(chunkNamespace, []byte(project+"\x00"+name+"\x00"+strconv.Itoa(index))).String())
}

func checkpointKey(project, name string) string {
	return "ingest/" + project + "/" + name
}

// Ingest splits src and stores one chunk per piece. Pieces already stored
// by an earlier run are counted as existing. A failure leaves a checkpoint
// covering the longest stored prefix of pieces.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (Result, error) {
	var res Result
	if src.Name == "" {
		return res, fmt.Errorf("%w: source name is required", core.ErrInvalidArgument)
	}
	pieces := Split(src.Code, src.Level, p.counter)
	if len(pieces) == 0 {
		return res, ErrEmptySource
	}

	res.IDs = make([]core.ID, len(pieces))
	for i := range pieces {
		res.IDs[i] = ChunkID(src.Project, src.Name, i)
	}

	start := 0
	key := checkpointKey(src.Project, src.Name)
	if p.checkpoints != nil {
		cp, err := p.checkpoints.LoadCheckpoint(ctx, key)
		if err != nil {
			return res, err
		}
		if cp != nil && cp.Processed < len(pieces) {
			start = cp.Processed
			res.Resumed = true
			res.Existing = start
			p.logger.Info("resuming ingestion", "source", src.Name, "from", start)
		}
	}

	p.logger.Info("ingesting source", "source", src.Name, "project", src.Project, "pieces", len(pieces), "level", src.Level)

	errs := make([]error, len(pieces))
	existed := make([]bool, len(pieces))
	var wg sync.WaitGroup
	for i := start; i < len(pieces); i++ {
		a := p.artifact(src, pieces[i], res.IDs[i])
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			_, err := p.sink.AddArtifact(ctx, a)
			if errors.Is(err, storage.ErrDuplicateKey) {
				existed[i] = true
				return
			}
			errs[i] = err
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	done := start
	var firstErr error
	for i := start; i < len(pieces); i++ {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("piece %d of %s: %w", i, src.Name, errs[i])
			}
			continue
		}
		if existed[i] {
			res.Existing++
		} else {
			res.Created++
		}
		if firstErr == nil {
			done = i + 1
		}
	}

	if p.checkpoints != nil {
		if firstErr == nil {
			if err := p.checkpoints.DeleteCheckpoint(ctx, key); err != nil {
				return res, err
			}
		} else if done > 0 {
			cp := &core.Checkpoint{ProcessorType: key, LastID: res.IDs[done-1], Processed: done, UpdatedAt: time.Now().UTC()}
			if err := p.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
				p.logger.Error("error saving ingestion checkpoint", "err", err)
			}
		}
	}
	if firstErr != nil {
		p.logger.Error("ingestion incomplete", "source", src.Name, "stored", done, "err", firstErr)
		return res, firstErr
	}
	p.logger.Info("ingestion complete", "source", src.Name, "created", res.Created, "existing", res.Existing)
	return res, nil
}

func (p *Pipeline) artifact(src Source, piece Piece, id core.ID) *core.Artifact {
	a := core.NewCodeChunk(piece.Code, src.Level)
	a.ID = id
	a.Project = src.Project
	a.Tags = core.NormalizeTags(src.Tags)
	a.Chunk.Source = src.Name
	a.Chunk.StartLine = piece.StartLine
	a.Chunk.EndLine = piece.EndLine
	a.Chunk.EstimatedTokens = piece.Tokens
	return a
}

// IngestPlan stores planned chunks in order, so dependencies on earlier
// entries resolve. Chunks that already exist are counted, not replaced.
func (p *Pipeline) IngestPlan(ctx context.Context, project string, plan []PlannedChunk) (Result, error) {
	var res Result
	for _, pc := range plan {
		a := pc.Artifact(project)
		a.Chunk.EstimatedTokens = p.counter.Count(a.Chunk.Code)
		_, err := p.sink.AddArtifact(ctx, a)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			res.Existing++
		case err != nil:
			return res, fmt.Errorf("chunk %s: %w", pc.ID, err)
		default:
			res.Created++
		}
		res.IDs = append(res.IDs, pc.ID)
	}
	return res, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
