package core

import (
	"fmt"
	"strings"
)

// Priority ranks a task.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
	PriorityUrgent:   "urgent",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority parses a case-insensitive priority name.
func ParsePriority(s string) (Priority, error) {
	return parseEnum(priorityNames, s, "priority")
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus int

const (
	TaskTodo TaskStatus = iota + 1
	TaskInProgress
	TaskBlocked
	TaskReview
	TaskDone
	TaskCancelled
	TaskDeferred
)

var taskStatusNames = map[TaskStatus]string{
	TaskTodo:       "todo",
	TaskInProgress: "in_progress",
	TaskBlocked:    "blocked",
	TaskReview:     "review",
	TaskDone:       "done",
	TaskCancelled:  "cancelled",
	TaskDeferred:   "deferred",
}

var taskStatusAliases = map[string]TaskStatus{
	"pending":     TaskTodo,
	"in-progress": TaskInProgress,
	"completed":   TaskDone,
	"canceled":    TaskCancelled,
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("task_status(%d)", int(s))
}

// ParseTaskStatus parses a task status name, accepting common aliases.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if st, ok := taskStatusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return parseEnum(taskStatusNames, s, "task status")
}

// AssigneeKind discriminates Assignee.
type AssigneeKind int

const (
	AssigneeHuman AssigneeKind = iota + 1
	AssigneeAI
	AssigneeCollaborative
	AssigneeAgent
)

// Assignee is who owns a task. Agent is set only for AssigneeAgent.
type Assignee struct {
	Kind  AssigneeKind
	Agent string
}

func (a Assignee) String() string {
	switch a.Kind {
	case AssigneeHuman:
		return "human"
	case AssigneeAI:
		return "ai"
	case AssigneeCollaborative:
		return "collaborative"
	case AssigneeAgent:
		return "agent:" + a.Agent
	default:
		return ""
	}
}

// ParseAssignee parses "human", "ai", "collaborative" or "agent:<name>".
func ParseAssignee(s string) (Assignee, error) {
	v := strings.TrimSpace(s)
	lower := strings.ToLower(v)
	switch {
	case lower == "human":
		return Assignee{Kind: AssigneeHuman}, nil
	case lower == "ai":
		return Assignee{Kind: AssigneeAI}, nil
	case lower == "collaborative":
		return Assignee{Kind: AssigneeCollaborative}, nil
	case strings.HasPrefix(lower, "agent:") && len(v) > len("agent:"):
		return Assignee{Kind: AssigneeAgent, Agent: v[len("agent:"):]}, nil
	}
	return Assignee{}, fmt.Errorf("%w: unknown assignee %q", ErrInvalidArgument, s)
}

// Importance is shared by memories (low..critical) and ideas (low..breakthrough).
type Importance int

const (
	ImportanceLow Importance = iota + 1
	ImportanceMedium
	ImportanceHigh
	ImportanceCritical
	ImportanceBreakthrough
)

var importanceNames = map[Importance]string{
	ImportanceLow:          "low",
	ImportanceMedium:       "medium",
	ImportanceHigh:         "high",
	ImportanceCritical:     "critical",
	ImportanceBreakthrough: "breakthrough",
}

func (i Importance) String() string {
	if s, ok := importanceNames[i]; ok {
		return s
	}
	return fmt.Sprintf("importance(%d)", int(i))
}

// ParseImportance parses an importance name.
func ParseImportance(s string) (Importance, error) {
	return parseEnum(importanceNames, s, "importance")
}

// MemoryTerm is the retention horizon of a memory.
type MemoryTerm int

const (
	TermShort MemoryTerm = iota + 1
	TermLong
)

var termNames = map[MemoryTerm]string{TermShort: "short", TermLong: "long"}

func (t MemoryTerm) String() string {
	if s, ok := termNames[t]; ok {
		return s
	}
	return fmt.Sprintf("term(%d)", int(t))
}

// ParseMemoryTerm parses "short" or "long".
func ParseMemoryTerm(s string) (MemoryTerm, error) {
	return parseEnum(termNames, s, "memory term")
}

// MemoryType classifies a memory. Emotion is set only for MemoryEmotional.
type MemoryType int

const (
	MemoryStandard MemoryType = iota + 1
	MemorySecret
	MemoryHuman
	MemoryShort
	MemoryLong
	MemoryEmotional
)

var memoryTypeNames = map[MemoryType]string{
	MemoryStandard:  "standard",
	MemorySecret:    "secret",
	MemoryHuman:     "human",
	MemoryShort:     "short",
	MemoryLong:      "long",
	MemoryEmotional: "emotional",
}

func (t MemoryType) String() string {
	if s, ok := memoryTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("memory_type(%d)", int(t))
}

// ParseMemoryType parses a memory type name.
func ParseMemoryType(s string) (MemoryType, error) {
	return parseEnum(memoryTypeNames, s, "memory type")
}

// CoreEmotions lists the emotions accepted for emotional memories.
var CoreEmotions = []string{
	"happy", "sad", "angry", "fearful", "surprised", "disgusted", "excited",
	"anxious", "confident", "frustrated", "motivated", "overwhelmed", "curious",
	"satisfied", "disappointed", "grateful", "proud", "ashamed", "hopeful", "resigned",
}

// ShareLevel is the visibility of an idea.
type ShareLevel int

const (
	SharePrivate ShareLevel = iota + 1
	ShareTeam
	SharePublic
)

var shareNames = map[ShareLevel]string{SharePrivate: "private", ShareTeam: "team", SharePublic: "public"}

func (s ShareLevel) String() string {
	if name, ok := shareNames[s]; ok {
		return name
	}
	return fmt.Sprintf("share(%d)", int(s))
}

// ParseShareLevel parses a share level name.
func ParseShareLevel(s string) (ShareLevel, error) {
	return parseEnum(shareNames, s, "share level")
}

// ItemStatus is the lifecycle state of memories and ideas.
type ItemStatus int

const (
	ItemActive ItemStatus = iota + 1
	ItemArchived
	ItemDeleted
)

var itemStatusNames = map[ItemStatus]string{ItemActive: "active", ItemArchived: "archived", ItemDeleted: "deleted"}

func (s ItemStatus) String() string {
	if name, ok := itemStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("item_status(%d)", int(s))
}

// ParseItemStatus parses an item status name.
func ParseItemStatus(s string) (ItemStatus, error) {
	return parseEnum(itemStatusNames, s, "item status")
}

// ChunkLevel is the granularity of a code chunk.
type ChunkLevel int

const (
	LevelProject ChunkLevel = iota + 1
	LevelModule
	LevelClass
	LevelMethod
	LevelBlock
)

var levelNames = map[ChunkLevel]string{
	LevelProject: "project",
	LevelModule:  "module",
	LevelClass:   "class",
	LevelMethod:  "method",
	LevelBlock:   "block",
}

func (l ChunkLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MaxTokens is the token budget of a chunk at this level.
func (l ChunkLevel) MaxTokens() int {
	switch l {
	case LevelProject, LevelBlock:
		return 100
	case LevelModule:
		return 500
	case LevelClass:
		return 1000
	case LevelMethod:
		return 300
	default:
		return 0
	}
}

// ParseChunkLevel parses a chunk level name.
func ParseChunkLevel(s string) (ChunkLevel, error) {
	return parseEnum(levelNames, s, "chunk level")
}

// ChunkStatus is the lifecycle state of a code chunk.
type ChunkStatus int

const (
	ChunkPending ChunkStatus = iota + 1
	ChunkInProgress
	ChunkCompleted
	ChunkValidated
	ChunkFailed
)

var chunkStatusNames = map[ChunkStatus]string{
	ChunkPending:    "pending",
	ChunkInProgress: "in_progress",
	ChunkCompleted:  "completed",
	ChunkValidated:  "validated",
	ChunkFailed:     "failed",
}

func (s ChunkStatus) String() string {
	if name, ok := chunkStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("chunk_status(%d)", int(s))
}

// ParseChunkStatus parses a chunk status name.
func ParseChunkStatus(s string) (ChunkStatus, error) {
	return parseEnum(chunkStatusNames, s, "chunk status")
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus int

const (
	ProjectActive ProjectStatus = iota + 1
	ProjectArchived
	ProjectCompleted
)

var projectStatusNames = map[ProjectStatus]string{
	ProjectActive:    "active",
	ProjectArchived:  "archived",
	ProjectCompleted: "completed",
}

func (s ProjectStatus) String() string {
	if name, ok := projectStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("project_status(%d)", int(s))
}

// ParseProjectStatus parses a project status name.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	return parseEnum(projectStatusNames, s, "project status")
}

func parseEnum[T comparable](names map[T]string, s, what string) (T, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for v, name := range names {
		if name == needle {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown %s %q", ErrInvalidArgument, what, s)
}
