package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeText(t *testing.T) {
	task := NewTask("Write documentation for the REST API")
	task.Task.Description = "cover every endpoint"
	task.Task.Priority = PriorityHigh
	task.Task.Progress = 25
	task.Task.Assignee = &Assignee{Kind: AssigneeHuman}
	task.Tags = []string{"docs", "api"}

	assert.Equal(t,
		"Task: Write documentation for the REST API\n"+
			"Description: cover every endpoint\n"+
			"Priority: high\n"+
			"Status: todo\n"+
			"Tags: docs, api\n"+
			"Assignee: human\n"+
			"Progress: 25%",
		ComposeText(task))

	mem := NewMemory("met the team", "belonging", "first day")
	mem.Memory.Type = MemoryEmotional
	mem.Memory.Emotion = "happy"
	assert.Contains(t, ComposeText(mem), "Type: emotional (happy)")
	assert.Contains(t, ComposeText(mem), "Memory: met the team\nMeaning: belonging\nReason: first day")

	idea := NewIdea("cache embeddings by content hash")
	idea.Idea.Context = "perf"
	assert.Equal(t,
		"Idea: cache embeddings by content hash\nImportance: medium\nShare Level: private\nContext: perf",
		ComposeText(idea))

	chunk := NewCodeChunk("func f() {}", LevelMethod)
	assert.Equal(t, "Code (method): func f() {}", ComposeText(chunk))
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, NormalizeTags(nil))
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{" a", "b", "a", "", "b "}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "hi", Truncate("hi", 10))
	assert.Equal(t, "", Truncate("hi", 0))
	assert.Equal(t, "first", FirstLine("first\nsecond", 50))
}
