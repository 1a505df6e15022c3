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

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/logs"
	"github.com/poiesic/tdz/storage"
)

// Create validates a, embeds its composed text and stores it. An embedding
// failure is logged and the artifact is stored without a vector. A store
// failure leaves the cache untouched. The mega log append is best effort.
func (s *Service) Create(ctx context.Context, a *core.Artifact) (*core.Artifact, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: artifact is nil", core.ErrInvalidArgument)
	}
	a = a.Clone()
	fillDefaults(a)
	if a.ID == "" {
		a.ID = core.NewID()
	} else if _, err := s.repo.Get(ctx, a.ID); err == nil {
		return nil, fmt.Errorf("%w: artifact %s", storage.ErrDuplicateKey, a.ID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if a.Project == "" {
		a.Project = s.Config().DefaultProject
	}
	a.Tags = core.NormalizeTags(a.Tags)
	if err := core.ValidateArtifact(a); err != nil {
		return nil, err
	}

	text := core.ComposeText(a)
	a.Vector = nil
	if vec, err := s.Embed(ctx, text); err != nil {
		s.logger.Warn("embedding failed, storing without vector", "id", a.ID, "kind", a.Kind, "err", err)
	} else {
		a.Vector = vec
	}

	stored, err := s.repo.Add(ctx, a)
	if err != nil {
		return nil, err
	}
	if len(stored.Vector) > 0 {
		entry := s.entryFor(stored, text, stored.Vector)
		s.cache.Put(entry.Key(), entry)
	}
	s.metrics.ArtifactCreated(stored.Kind)
	s.appendLog(stored, text)
	s.logger.Debug("artifact created", "id", stored.ID, "kind", stored.Kind, "project", stored.Project)
	return stored, nil
}

// fillDefaults gives zero-valued enums their constructor defaults.
func fillDefaults(a *core.Artifact) {
	switch {
	case a.Task != nil:
		t := a.Task
		if t.Priority == 0 {
			t.Priority = core.PriorityMedium
		}
		if t.Status == 0 {
			t.Status = core.TaskTodo
		}
	case a.Memory != nil:
		m := a.Memory
		if m.Importance == 0 {
			m.Importance = core.ImportanceMedium
		}
		if m.Term == 0 {
			m.Term = core.TermShort
		}
		if m.Type == 0 {
			m.Type = core.MemoryStandard
		}
		if m.Status == 0 {
			m.Status = core.ItemActive
		}
	case a.Idea != nil:
		i := a.Idea
		if i.Share == 0 {
			i.Share = core.SharePrivate
		}
		if i.Importance == 0 {
			i.Importance = core.ImportanceMedium
		}
		if i.Status == 0 {
			i.Status = core.ItemActive
		}
	case a.Chunk != nil:
		c := a.Chunk
		if c.Level == 0 {
			c.Level = core.LevelMethod
		}
		if c.Status == 0 {
			c.Status = core.ChunkPending
		}
	}
}

// AddArtifact is Create under the name ingestion expects.
func (s *Service) AddArtifact(ctx context.Context, a *core.Artifact) (*core.Artifact, error) {
	return s.Create(ctx, a)
}

// CreateTask stores a task in project. An empty project means the default.
func (s *Service) CreateTask(ctx context.Context, project string, task core.Task, tags ...string) (*core.Artifact, error) {
	return s.Create(ctx, &core.Artifact{Kind: core.KindTask, Project: project, Tags: tags, Task: &task})
}

// CreateMemory stores a memory in project.
func (s *Service) CreateMemory(ctx context.Context, project string, memory core.Memory, tags ...string) (*core.Artifact, error) {
	return s.Create(ctx, &core.Artifact{Kind: core.KindMemory, Project: project, Tags: tags, Memory: &memory})
}

// CreateIdea stores an idea in project.
func (s *Service) CreateIdea(ctx context.Context, project string, idea core.Idea, tags ...string) (*core.Artifact, error) {
	return s.Create(ctx, &core.Artifact{Kind: core.KindIdea, Project: project, Tags: tags, Idea: &idea})
}

// CreateCodeChunk stores a code chunk in project.
func (s *Service) CreateCodeChunk(ctx context.Context, project string, chunk core.CodeChunk, tags ...string) (*core.Artifact, error) {
	return s.Create(ctx, &core.Artifact{Kind: core.KindCodeChunk, Project: project, Tags: tags, Chunk: &chunk})
}

// GetArtifact returns a stored artifact, tombstones included.
func (s *Service) GetArtifact(ctx context.Context, id core.ID) (*core.Artifact, error) {
	return s.repo.Get(ctx, id)
}

// UpdateArtifact applies patch and re-embeds when the composed text
// changed.
func (s *Service) UpdateArtifact(ctx context.Context, id core.ID, patch storage.PatchFunc) (*core.Artifact, error) {
	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, updated)
}

// UpdateStatus moves an artifact to the bucket of status.
func (s *Service) UpdateStatus(ctx context.Context, id core.ID, status string) (*core.Artifact, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, updated)
}

// DeleteArtifact tombstones an artifact and drops its cache entry.
func (s *Service) DeleteArtifact(ctx context.Context, id core.ID) (*core.Artifact, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(cache.Key(deleted.Kind, deleted.ID))
	s.appendLog(deleted, core.ComposeText(deleted))
	return deleted, nil
}

// ListArtifacts returns matching artifacts of every project.
func (s *Service) ListArtifacts(ctx context.Context, filter core.ArtifactFilter) ([]*core.Artifact, error) {
	return s.repo.ListAcross(ctx, filter)
}

// ListInProject returns matching artifacts of one project.
func (s *Service) ListInProject(ctx context.Context, project string, filter core.ArtifactFilter) ([]*core.Artifact, error) {
	return s.repo.ListIn(ctx, project, filter)
}

// ProjectStats counts a project's artifacts per bucket.
func (s *Service) ProjectStats(ctx context.Context, project string) (core.ProjectStats, error) {
	return s.repo.Stats(ctx, project)
}

func (s *Service) CreateProject(ctx context.Context, name, description string) (*core.Project, error) {
	return s.repo.CreateProject(ctx, name, description)
}

func (s *Service) ListProjects(ctx context.Context) ([]*core.Project, error) {
	return s.repo.ListProjects(ctx)
}

// ReadyChunks returns the pending chunks of project whose dependencies are
// all completed or validated. A dependency that is not stored blocks.
func (s *Service) ReadyChunks(ctx context.Context, project string) ([]*core.Artifact, error) {
	chunks, err := s.repo.ListIn(ctx, project, core.ArtifactFilter{Kinds: []core.Kind{core.KindCodeChunk}})
	if err != nil {
		return nil, err
	}
	byID := make(map[core.ID]*core.Artifact, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	done := func(id core.ID) (bool, error) {
		dep, ok := byID[id]
		if !ok {
			var err error
			dep, err = s.repo.Get(ctx, id)
			if errors.Is(err, core.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
		}
		if dep.Kind != core.KindCodeChunk {
			return core.BucketFor(dep) == core.BucketCompleted, nil
		}
		return dep.Chunk.Status == core.ChunkCompleted || dep.Chunk.Status == core.ChunkValidated, nil
	}

	ready := []*core.Artifact{}
	for _, c := range chunks {
		if c.Chunk.Status != core.ChunkPending {
			continue
		}
		ok := true
		for _, dep := range c.Chunk.Dependencies {
			d, err := done(dep)
			if err != nil {
				return nil, err
			}
			if !d {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, c)
		}
	}
	return ready, nil
}

// DependencyChain returns id's transitive dependencies in build order,
// ending with id. Dependencies that are not stored are left out.
func (s *Service) DependencyChain(ctx context.Context, id core.ID) ([]core.ID, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	var chain []core.ID
	visited := map[core.ID]bool{}
	var visit func(id core.ID) error
	visit = func(id core.ID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		a, err := s.repo.Get(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, dep := range a.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		chain = append(chain, id)
		return nil
	}
	if err := visit(id); err != nil {
		return nil, err
	}
	return chain, nil
}

// refresh brings the cache in line with a changed artifact: tombstones are
// evicted and a changed composed text is re-embedded.
func (s *Service) refresh(ctx context.Context, a *core.Artifact) (*core.Artifact, error) {
	key := cache.Key(a.Kind, a.ID)
	text := core.ComposeText(a)
	// The repository rejects tombstones, so a stored artifact sits in the
	// bucket its status routes to.
	if core.BucketFor(a) == core.BucketDeleted {
		s.cache.Delete(key)
		s.appendLog(a, text)
		return a, nil
	}
	if entry, ok := s.cache.Peek(key); ok && entry.Hash == core.ContentHash(text) && len(a.Vector) == s.Dimensions() {
		s.appendLog(a, text)
		return a, nil
	}
	vec, err := s.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("re-embedding failed, keeping previous vector", "id", a.ID, "err", err)
		s.appendLog(a, text)
		return a, nil
	}
	return s.storeVector(ctx, a.ID, vec, text)
}

func (s *Service) storeVector(ctx context.Context, id core.ID, vector []float32, text string) (*core.Artifact, error) {
	updated, err := s.repo.Update(ctx, id, func(stored *core.Artifact) error {
		stored.Vector = vector
		return nil
	})
	if err != nil {
		return nil, err
	}
	entry := s.entryFor(updated, text, vector)
	s.cache.Put(entry.Key(), entry)
	s.appendLog(updated, text)
	return updated, nil
}

// appendLog records the current state of a in the mega log. Failures are
// logged and otherwise ignored.
func (s *Service) appendLog(a *core.Artifact, text string) {
	if err := s.megaLog.Append(logs.NewRecord(a, text, s.now())); err != nil {
		s.logger.Warn("mega log append failed", "id", a.ID, "err", err)
	}
}

// entryFor builds the cache entry of an artifact.
func (s *Service) entryFor(a *core.Artifact, text string, vector []float32) cache.Entry {
	tags := append([]string{}, a.Tags...)
	return cache.Entry{
		Vector:     append([]float32(nil), vector...),
		Kind:       a.Kind,
		ContentID:  a.ID,
		Text:       text,
		Tags:       tags,
		CreatedAt:  s.now(),
		TTLSeconds: s.ttl(),
		Hash:       core.ContentHash(text),
	}
}

func (s *Service) ttl() int64 {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.CacheTTLSeconds
}

// lookup finds the cache entry of id whatever its kind, without touching
// statistics.
func (s *Service) lookup(id core.ID) (cache.Entry, bool) {
	for _, k := range core.Kinds {
		if e, ok := s.cache.Peek(cache.Key(k, id)); ok {
			return e, true
		}
	}
	return cache.Entry{}, false
}
