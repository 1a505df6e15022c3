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

package storage

import (
	"fmt"

	"github.com/poiesic/tdz/core"
)

// codecVersion prefixes every top-level record.
const codecVersion = 1

func header(e *encoder) {
	e.uint(codecVersion)
}

func checkHeader(d *decoder) error {
	v := d.uint()
	if d.err != nil {
		return d.err
	}
	if v != codecVersion {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	return nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	var e encoder
	e.string(string(id))
	return e.buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := decoder{bs: data}
	id := core.ID(d.string())
	if err := d.done(); err != nil {
		return "", err
	}
	return id, nil
}

// MarshalArtifact serializes an Artifact to bytes.
func MarshalArtifact(a *core.Artifact) []byte {
	var e encoder
	header(&e)
	encodeArtifact(&e, a)
	return e.buf
}

// UnmarshalArtifact deserializes an Artifact from bytes.
func UnmarshalArtifact(data []byte) (*core.Artifact, error) {
	d := decoder{bs: data}
	if err := checkHeader(&d); err != nil {
		return nil, err
	}
	a := decodeArtifact(&d)
	if err := d.done(); err != nil {
		return nil, err
	}
	return a, nil
}

// MarshalContainer serializes a ProjectContainer with all four buckets.
func MarshalContainer(c *core.ProjectContainer) []byte {
	var e encoder
	header(&e)
	e.string(c.Project)
	e.string(c.Hash)
	e.time(c.CreatedAt)
	e.time(c.UpdatedAt)
	for _, b := range core.Buckets {
		items := c.Bucket(b)
		e.uint(uint64(len(items)))
		for _, a := range items {
			encodeArtifact(&e, a)
		}
	}
	return e.buf
}

// UnmarshalContainer deserializes a ProjectContainer.
func UnmarshalContainer(data []byte) (*core.ProjectContainer, error) {
	d := decoder{bs: data}
	if err := checkHeader(&d); err != nil {
		return nil, err
	}
	c := core.NewProjectContainer(d.string())
	c.Hash = d.string()
	c.CreatedAt = d.time()
	c.UpdatedAt = d.time()
	for _, b := range core.Buckets {
		n := d.count(1)
		for range n {
			a := decodeArtifact(&d)
			if d.err != nil {
				break
			}
			c.Buckets[b][a.ID] = a
		}
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalProject serializes a Project to bytes.
func MarshalProject(p *core.Project) []byte {
	var e encoder
	header(&e)
	e.string(p.Name)
	e.string(p.Description)
	e.uint(uint64(p.Status))
	e.time(p.CreatedAt)
	e.time(p.UpdatedAt)
	e.ids(p.ArtifactIDs)
	return e.buf
}

// UnmarshalProject deserializes a Project from bytes.
func UnmarshalProject(data []byte) (*core.Project, error) {
	d := decoder{bs: data}
	if err := checkHeader(&d); err != nil {
		return nil, err
	}
	p := &core.Project{
		Name:        d.string(),
		Description: d.string(),
		Status:      core.ProjectStatus(d.uint()),
		CreatedAt:   d.time(),
		UpdatedAt:   d.time(),
		ArtifactIDs: d.ids(),
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	var e encoder
	header(&e)
	e.string(checkpoint.ProcessorType)
	e.string(string(checkpoint.LastID))
	e.int(int64(checkpoint.Processed))
	e.time(checkpoint.UpdatedAt)
	return e.buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	d := decoder{bs: data}
	if err := checkHeader(&d); err != nil {
		return nil, err
	}
	c := &core.Checkpoint{
		ProcessorType: d.string(),
		LastID:        core.ID(d.string()),
		Processed:     int(d.int()),
		UpdatedAt:     d.time(),
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return c, nil
}

func encodeArtifact(e *encoder, a *core.Artifact) {
	e.string(string(a.ID))
	e.uint(uint64(a.Kind))
	e.string(a.Project)
	e.time(a.CreatedAt)
	e.time(a.UpdatedAt)
	e.strings(a.Tags)
	e.floats(a.Vector)

	switch a.Kind {
	case core.KindTask:
		t := a.Task
		e.string(t.UserID)
		e.string(t.Action)
		e.string(t.Description)
		e.string(t.TimeEstimate)
		e.uint(uint64(t.Priority))
		e.uint(uint64(t.Status))
		e.int(int64(t.Progress))
		e.bool(t.Assignee != nil)
		if t.Assignee != nil {
			e.uint(uint64(t.Assignee.Kind))
			e.string(t.Assignee.Agent)
		}
		e.ids(t.Dependencies)
	case core.KindMemory:
		m := a.Memory
		e.string(m.UserID)
		e.string(m.Moment)
		e.string(m.Meaning)
		e.string(m.Reason)
		e.uint(uint64(m.Importance))
		e.uint(uint64(m.Term))
		e.uint(uint64(m.Type))
		e.string(m.Emotion)
		e.uint(uint64(m.Status))
	case core.KindIdea:
		i := a.Idea
		e.string(i.Body)
		e.string(i.Context)
		e.uint(uint64(i.Share))
		e.uint(uint64(i.Importance))
		e.uint(uint64(i.Status))
	case core.KindCodeChunk:
		c := a.Chunk
		e.string(c.Code)
		e.string(c.Tests)
		e.string(c.Source)
		e.int(int64(c.StartLine))
		e.int(int64(c.EndLine))
		e.uint(uint64(c.Level))
		e.uint(uint64(c.Status))
		e.ids(c.Dependencies)
		e.int(int64(c.EstimatedTokens))
	}
}

func decodeArtifact(d *decoder) *core.Artifact {
	a := &core.Artifact{
		ID:        core.ID(d.string()),
		Kind:      core.Kind(d.uint()),
		Project:   d.string(),
		CreatedAt: d.time(),
		UpdatedAt: d.time(),
		Tags:      d.strings(),
		Vector:    d.floats(),
	}
	if d.err != nil {
		return a
	}

	switch a.Kind {
	case core.KindTask:
		t := &core.Task{
			UserID:       d.string(),
			Action:       d.string(),
			Description:  d.string(),
			TimeEstimate: d.string(),
			Priority:     core.Priority(d.uint()),
			Status:       core.TaskStatus(d.uint()),
			Progress:     int(d.int()),
		}
		if d.bool() {
			t.Assignee = &core.Assignee{Kind: core.AssigneeKind(d.uint()), Agent: d.string()}
		}
		t.Dependencies = d.ids()
		a.Task = t
	case core.KindMemory:
		a.Memory = &core.Memory{
			UserID:     d.string(),
			Moment:     d.string(),
			Meaning:    d.string(),
			Reason:     d.string(),
			Importance: core.Importance(d.uint()),
			Term:       core.MemoryTerm(d.uint()),
			Type:       core.MemoryType(d.uint()),
			Emotion:    d.string(),
			Status:     core.ItemStatus(d.uint()),
		}
	case core.KindIdea:
		a.Idea = &core.Idea{
			Body:       d.string(),
			Context:    d.string(),
			Share:      core.ShareLevel(d.uint()),
			Importance: core.Importance(d.uint()),
			Status:     core.ItemStatus(d.uint()),
		}
	case core.KindCodeChunk:
		a.Chunk = &core.CodeChunk{
			Code:      d.string(),
			Tests:     d.string(),
			Source:    d.string(),
			StartLine: int(d.int()),
			EndLine:   int(d.int()),
			Level:     core.ChunkLevel(d.uint()),
			Status:    core.ChunkStatus(d.uint()),
		}
		a.Chunk.Dependencies = d.ids()
		a.Chunk.EstimatedTokens = int(d.int())
	default:
		d.fail(fmt.Errorf("unknown kind %d", int(a.Kind)))
	}
	return a
}
