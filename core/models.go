package core

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is the stable identifier of an artifact. Generated ids are canonical
// UUID strings; callers may supply their own.
type ID string

// NewID returns a fresh random 128-bit identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// ValidateID checks that an id is usable as a storage and cache key.
func ValidateID(id ID) error {
	if id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrEmptyID)
	}
	if strings.ContainsAny(string(id), ": \t\r\n/") {
		return fmt.Errorf("%w: malformed id %q", ErrInvalidArgument, id)
	}
	return nil
}

// ContentHash returns a 64-bit BLAKE2b fingerprint of text. It is used to
// detect text-affecting changes without comparing full payloads.
func ContentHash(text string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// Kind discriminates the artifact variants.
type Kind int

const (
	KindTask Kind = iota + 1
	KindMemory
	KindIdea
	KindCodeChunk
)

// Kinds lists every artifact kind in a stable order.
var Kinds = []Kind{KindTask, KindMemory, KindIdea, KindCodeChunk}

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindMemory:
		return "memory"
	case KindIdea:
		return "idea"
	case KindCodeChunk:
		return "code_chunk"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k >= KindTask && k <= KindCodeChunk
}

// ParseKind parses a kind name as produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task":
		return KindTask, nil
	case "memory":
		return KindMemory, nil
	case "idea":
		return KindIdea, nil
	case "code_chunk", "chunk", "codechunk":
		return KindCodeChunk, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidArgument, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Artifact is a Task, Memory, Idea or CodeChunk. Exactly one payload pointer
// is set and it matches Kind.
type Artifact struct {
	ID        ID
	Kind      Kind
	Project   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      []string
	Vector    []float32 // unit length when present

	Task   *Task
	Memory *Memory
	Idea   *Idea
	Chunk  *CodeChunk
}

// Task is a short actionable item.
type Task struct {
	UserID       string
	Action       string
	Description  string
	TimeEstimate string
	Priority     Priority
	Status       TaskStatus
	Progress     int
	Assignee     *Assignee
	Dependencies []ID
}

// Memory is a long-lived remembered moment.
type Memory struct {
	UserID     string
	Moment     string
	Meaning    string
	Reason     string
	Importance Importance
	Term       MemoryTerm
	Type       MemoryType
	Emotion    string
	Status     ItemStatus
}

// Idea is a captured idea.
type Idea struct {
	Body       string
	Context    string
	Share      ShareLevel
	Importance Importance
	Status     ItemStatus
}

// CodeChunk is a unit of source code with its tests and dependencies.
type CodeChunk struct {
	Code            string
	Tests           string
	Source          string
	StartLine       int
	EndLine         int
	Level           ChunkLevel
	Status          ChunkStatus
	Dependencies    []ID
	EstimatedTokens int
}

// NewTask returns a task artifact with the default priority and status.
func NewTask(action string) *Artifact {
	return &Artifact{Kind: KindTask, Task: &Task{Action: action, Priority: PriorityMedium, Status: TaskTodo}}
}

// NewMemory returns a memory artifact with default classification.
func NewMemory(moment, meaning, reason string) *Artifact {
	return &Artifact{Kind: KindMemory, Memory: &Memory{
		Moment: moment, Meaning: meaning, Reason: reason,
		Importance: ImportanceMedium, Term: TermShort, Type: MemoryStandard, Status: ItemActive,
	}}
}

// NewIdea returns an idea artifact with default share level and importance.
func NewIdea(body string) *Artifact {
	return &Artifact{Kind: KindIdea, Idea: &Idea{
		Body: body, Share: SharePrivate, Importance: ImportanceMedium, Status: ItemActive,
	}}
}

// NewCodeChunk returns a pending code chunk artifact.
func NewCodeChunk(code string, level ChunkLevel) *Artifact {
	return &Artifact{Kind: KindCodeChunk, Chunk: &CodeChunk{Code: code, Level: level, Status: ChunkPending}}
}

// Dependencies returns the dependency ids of tasks and chunks.
func (a *Artifact) Dependencies() []ID {
	switch a.Kind {
	case KindTask:
		if a.Task != nil {
			return a.Task.Dependencies
		}
	case KindCodeChunk:
		if a.Chunk != nil {
			return a.Chunk.Dependencies
		}
	case KindMemory, KindIdea:
	}
	return nil
}

// StatusName returns the kind-specific status as a string.
func (a *Artifact) StatusName() string {
	switch a.Kind {
	case KindTask:
		return a.Task.Status.String()
	case KindMemory:
		return a.Memory.Status.String()
	case KindIdea:
		return a.Idea.Status.String()
	case KindCodeChunk:
		return a.Chunk.Status.String()
	}
	return ""
}

// SetStatus parses status for the artifact's kind and applies it.
func (a *Artifact) SetStatus(status string) error {
	switch a.Kind {
	case KindTask:
		st, err := ParseTaskStatus(status)
		if err != nil {
			return err
		}
		a.Task.Status = st
		if st == TaskDone {
			a.Task.Progress = 100
		}
	case KindMemory:
		st, err := ParseItemStatus(status)
		if err != nil {
			return err
		}
		a.Memory.Status = st
	case KindIdea:
		st, err := ParseItemStatus(status)
		if err != nil {
			return err
		}
		a.Idea.Status = st
	case KindCodeChunk:
		st, err := ParseChunkStatus(status)
		if err != nil {
			return err
		}
		a.Chunk.Status = st
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidArgument, int(a.Kind))
	}
	return nil
}

// Clone returns a deep copy of the artifact.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	if a.Vector != nil {
		c.Vector = append([]float32(nil), a.Vector...)
	}
	if a.Task != nil {
		t := *a.Task
		t.Dependencies = append([]ID(nil), a.Task.Dependencies...)
		if a.Task.Assignee != nil {
			as := *a.Task.Assignee
			t.Assignee = &as
		}
		c.Task = &t
	}
	if a.Memory != nil {
		m := *a.Memory
		c.Memory = &m
	}
	if a.Idea != nil {
		i := *a.Idea
		c.Idea = &i
	}
	if a.Chunk != nil {
		ch := *a.Chunk
		ch.Dependencies = append([]ID(nil), a.Chunk.Dependencies...)
		c.Chunk = &ch
	}
	return &c
}

// Project groups artifacts. ArtifactIDs is kept in insertion order.
type Project struct {
	Name        string
	Description string
	Status      ProjectStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArtifactIDs []ID
}

// ProjectStats counts a project's artifacts per bucket.
type ProjectStats struct {
	Project   string
	Total     int
	Active    int
	Completed int
	Archived  int
	Deleted   int
}

// Checkpoint records how far a background processor has progressed.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	Processed     int
	UpdatedAt     time.Time
}
