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

package core

import (
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"
	"time"
)

// Bucket is one of the four status partitions of a ProjectContainer.
type Bucket int

const (
	BucketActive Bucket = iota
	BucketCompleted
	BucketArchived
	BucketDeleted
)

// Buckets lists buckets in iteration order.
var Buckets = []Bucket{BucketActive, BucketCompleted, BucketArchived, BucketDeleted}

func (b Bucket) String() string {
	switch b {
	case BucketActive:
		return "active"
	case BucketCompleted:
		return "completed"
	case BucketArchived:
		return "archived"
	case BucketDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// BucketFor routes an artifact to its bucket from its kind-specific status.
func BucketFor(a *Artifact) Bucket {
	switch a.Kind {
	case KindTask:
		switch a.Task.Status {
		case TaskDone:
			return BucketCompleted
		case TaskCancelled, TaskDeferred:
			return BucketArchived
		default:
			return BucketActive
		}
	case KindMemory:
		return itemBucket(a.Memory.Status)
	case KindIdea:
		return itemBucket(a.Idea.Status)
	case KindCodeChunk:
		switch a.Chunk.Status {
		case ChunkCompleted, ChunkValidated:
			return BucketCompleted
		case ChunkFailed:
			return BucketArchived
		default:
			return BucketActive
		}
	}
	return BucketActive
}

func itemBucket(s ItemStatus) Bucket {
	switch s {
	case ItemArchived:
		return BucketArchived
	case ItemDeleted:
		return BucketDeleted
	default:
		return BucketActive
	}
}

// ProjectHash is the stable container key of a project name.
func ProjectHash(project string) string {
	sum := md5.Sum([]byte(project))
	return hex.EncodeToString(sum[:])
}

// ProjectContainer is the persistence unit for one project's artifacts.
// Every artifact lives in exactly one bucket. The deleted bucket holds
// tombstones so ids referenced as dependencies stay resolvable.
type ProjectContainer struct {
	Project   string
	Hash      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Buckets   [4]map[ID]*Artifact
}

// NewProjectContainer returns an empty container for project.
func NewProjectContainer(project string) *ProjectContainer {
	now := time.Now().UTC()
	c := &ProjectContainer{
		Project:   project,
		Hash:      ProjectHash(project),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i := range c.Buckets {
		c.Buckets[i] = make(map[ID]*Artifact)
	}
	return c
}

// Put stores a routed by its current status, removing any previous copy.
// Deleted artifacts stay in the deleted bucket regardless of status.
func (c *ProjectContainer) Put(a *Artifact) {
	_, prev, found := c.Find(a.ID)
	c.Remove(a.ID)
	bucket := BucketFor(a)
	if found && prev == BucketDeleted {
		bucket = BucketDeleted
	}
	c.Buckets[bucket][a.ID] = a
	c.UpdatedAt = time.Now().UTC()
}

// Find returns the artifact with id and its bucket.
func (c *ProjectContainer) Find(id ID) (*Artifact, Bucket, bool) {
	for _, b := range Buckets {
		if a, ok := c.Buckets[b][id]; ok {
			return a, b, true
		}
	}
	return nil, 0, false
}

// Remove drops id from whichever bucket holds it.
func (c *ProjectContainer) Remove(id ID) (*Artifact, bool) {
	for _, b := range Buckets {
		if a, ok := c.Buckets[b][id]; ok {
			delete(c.Buckets[b], id)
			c.UpdatedAt = time.Now().UTC()
			return a, true
		}
	}
	return nil, false
}

// Tombstone moves id into the deleted bucket.
func (c *ProjectContainer) Tombstone(id ID) (*Artifact, bool) {
	a, ok := c.Remove(id)
	if !ok {
		return nil, false
	}
	switch a.Kind {
	case KindTask:
		a.Task.Status = TaskCancelled
	case KindMemory:
		a.Memory.Status = ItemDeleted
	case KindIdea:
		a.Idea.Status = ItemDeleted
	case KindCodeChunk:
	}
	a.UpdatedAt = time.Now().UTC()
	c.Buckets[BucketDeleted][id] = a
	return a, true
}

// All returns artifacts in bucket order, then by id.
func (c *ProjectContainer) All() []*Artifact {
	var out []*Artifact
	for _, b := range Buckets {
		out = append(out, c.Bucket(b)...)
	}
	return out
}

// Bucket returns the artifacts of one bucket sorted by id.
func (c *ProjectContainer) Bucket(b Bucket) []*Artifact {
	ids := make([]ID, 0, len(c.Buckets[b]))
	for id := range c.Buckets[b] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*Artifact, len(ids))
	for i, id := range ids {
		out[i] = c.Buckets[b][id]
	}
	return out
}

// Stats counts artifacts per bucket.
func (c *ProjectContainer) Stats() ProjectStats {
	s := ProjectStats{
		Project:   c.Project,
		Active:    len(c.Buckets[BucketActive]),
		Completed: len(c.Buckets[BucketCompleted]),
		Archived:  len(c.Buckets[BucketArchived]),
		Deleted:   len(c.Buckets[BucketDeleted]),
	}
	s.Total = s.Active + s.Completed + s.Archived + s.Deleted
	return s
}

// Filter returns the artifacts matching f in container order.
func (c *ProjectContainer) Filter(f ArtifactFilter) []*Artifact {
	var out []*Artifact
	for _, b := range Buckets {
		if b == BucketDeleted && !f.includesDeleted() {
			continue
		}
		for _, a := range c.Bucket(b) {
			if f.Match(a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// ArtifactFilter selects artifacts. Zero-valued fields do not filter.
type ArtifactFilter struct {
	Kinds          []Kind
	Project        string
	Statuses       []string
	Priorities     []Priority
	Assignees      []Assignee
	Tags           []string
	Search         string
	ProgressMin    *int
	ProgressMax    *int
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	IncludeDeleted bool
}

func (f ArtifactFilter) includesDeleted() bool {
	if f.IncludeDeleted {
		return true
	}
	for _, s := range f.Statuses {
		switch strings.ToLower(s) {
		case "deleted", "cancelled", "canceled":
			return true
		}
	}
	return false
}

// Match reports whether a satisfies every set criterion.
func (f ArtifactFilter) Match(a *Artifact) bool {
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, a.Kind) {
		return false
	}
	if f.Project != "" && a.Project != f.Project {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if statusEquals(a, s) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Priorities) > 0 && (a.Task == nil || !slices.Contains(f.Priorities, a.Task.Priority)) {
		return false
	}
	if len(f.Assignees) > 0 {
		if a.Task == nil || a.Task.Assignee == nil || !slices.Contains(f.Assignees, *a.Task.Assignee) {
			return false
		}
	}
	if len(f.Tags) > 0 && !TagsIntersect(a.Tags, f.Tags) {
		return false
	}
	if f.ProgressMin != nil || f.ProgressMax != nil {
		if a.Task == nil {
			return false
		}
		if f.ProgressMin != nil && a.Task.Progress < *f.ProgressMin {
			return false
		}
		if f.ProgressMax != nil && a.Task.Progress > *f.ProgressMax {
			return false
		}
	}
	if !f.CreatedAfter.IsZero() && a.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !a.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(ComposeText(a)), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func statusEquals(a *Artifact, status string) bool {
	switch a.Kind {
	case KindTask:
		st, err := ParseTaskStatus(status)
		return err == nil && st == a.Task.Status
	case KindMemory:
		st, err := ParseItemStatus(status)
		return err == nil && st == a.Memory.Status
	case KindIdea:
		st, err := ParseItemStatus(status)
		return err == nil && st == a.Idea.Status
	case KindCodeChunk:
		st, err := ParseChunkStatus(status)
		return err == nil && st == a.Chunk.Status
	}
	return false
}

// TagsIntersect reports whether a and b share at least one tag.
func TagsIntersect(a, b []string) bool {
	for _, t := range b {
		if slices.Contains(a, t) {
			return true
		}
	}
	return false
}
