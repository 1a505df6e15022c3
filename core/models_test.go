package core

import (
	"errors"
	"testing"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same hash", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ContentHash(tt.content) != ContentHash(tt.content) {
				t.Errorf("ContentHash() produced different hashes for %q", tt.content)
			}
		})
	}

	if ContentHash("content1") == ContentHash("content2") {
		t.Errorf("ContentHash() produced same hash for different content")
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatalf("NewID() returned duplicate ids")
	}
	if len(a) != 36 {
		t.Errorf("NewID() = %q, want canonical uuid", a)
	}
	if err := ValidateID(a); err != nil {
		t.Errorf("ValidateID(NewID()) = %v", err)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      ID
		wantErr bool
	}{
		{"t1", false},
		{"task_abc", false},
		{"", true},
		{"a:b", true},
		{"has space", true},
		{"a/b", true},
	}
	for _, tt := range tests {
		err := ValidateID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ValidateID(%q) error = %v, want ErrInvalidArgument", tt.id, err)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("widget"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ParseKind(widget) error = %v, want ErrInvalidArgument", err)
	}
}

func TestKindText(t *testing.T) {
	b, err := KindIdea.MarshalText()
	if err != nil || string(b) != "idea" {
		t.Fatalf("MarshalText() = %q, %v", b, err)
	}
	var k Kind
	if err := k.UnmarshalText([]byte("code_chunk")); err != nil || k != KindCodeChunk {
		t.Errorf("UnmarshalText() = %v, %v", k, err)
	}
	if _, err := Kind(42).MarshalText(); err == nil {
		t.Errorf("MarshalText() on invalid kind should fail")
	}
}

func TestParseTaskStatus_Aliases(t *testing.T) {
	tests := map[string]TaskStatus{
		"todo":        TaskTodo,
		"pending":     TaskTodo,
		"In_Progress": TaskInProgress,
		"in-progress": TaskInProgress,
		"completed":   TaskDone,
		"canceled":    TaskCancelled,
		"deferred":    TaskDeferred,
	}
	for in, want := range tests {
		got, err := ParseTaskStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseTaskStatus(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestParseAssignee(t *testing.T) {
	tests := []struct {
		in      string
		want    Assignee
		wantErr bool
	}{
		{in: "human", want: Assignee{Kind: AssigneeHuman}},
		{in: "AI", want: Assignee{Kind: AssigneeAI}},
		{in: "collaborative", want: Assignee{Kind: AssigneeCollaborative}},
		{in: "agent:planner", want: Assignee{Kind: AssigneeAgent, Agent: "planner"}},
		{in: "agent:", wantErr: true},
		{in: "robot", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAssignee(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAssignee(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseAssignee(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() != tt.in && tt.in != "AI" {
			t.Errorf("Assignee.String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestChunkLevel_MaxTokens(t *testing.T) {
	want := map[ChunkLevel]int{LevelProject: 100, LevelModule: 500, LevelClass: 1000, LevelMethod: 300, LevelBlock: 100}
	for level, tokens := range want {
		if level.MaxTokens() != tokens {
			t.Errorf("%s.MaxTokens() = %d, want %d", level, level.MaxTokens(), tokens)
		}
	}
}

func TestArtifact_SetStatus(t *testing.T) {
	task := NewTask("ship it")
	if err := task.SetStatus("done"); err != nil {
		t.Fatalf("SetStatus(done) = %v", err)
	}
	if task.Task.Status != TaskDone || task.Task.Progress != 100 {
		t.Errorf("done task = %+v, want status done and progress 100", task.Task)
	}
	if err := task.SetStatus("archived"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetStatus(archived) on task error = %v, want ErrInvalidArgument", err)
	}

	mem := NewMemory("moment", "meaning", "reason")
	if err := mem.SetStatus("archived"); err != nil || mem.StatusName() != "archived" {
		t.Errorf("memory SetStatus(archived) = %v, status %s", err, mem.StatusName())
	}
	chunk := NewCodeChunk("func f() {}", LevelMethod)
	if err := chunk.SetStatus("validated"); err != nil || chunk.StatusName() != "validated" {
		t.Errorf("chunk SetStatus(validated) = %v, status %s", err, chunk.StatusName())
	}
}

func TestArtifact_Clone(t *testing.T) {
	a := NewTask("original")
	a.ID = "t1"
	a.Tags = []string{"x"}
	a.Vector = []float32{1, 0}
	a.Task.Dependencies = []ID{"t0"}
	a.Task.Assignee = &Assignee{Kind: AssigneeAgent, Agent: "planner"}

	c := a.Clone()
	c.Tags[0] = "y"
	c.Vector[0] = 0
	c.Task.Dependencies[0] = "t9"
	c.Task.Assignee.Agent = "tester"
	c.Task.Action = "changed"

	if a.Tags[0] != "x" || a.Vector[0] != 1 || a.Task.Dependencies[0] != "t0" ||
		a.Task.Assignee.Agent != "planner" || a.Task.Action != "original" {
		t.Errorf("Clone() shares state with original: %+v %+v", a, a.Task)
	}
}
