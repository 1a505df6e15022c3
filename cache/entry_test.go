package cache

import (
	"testing"
	"time"

	"github.com/poiesic/tdz/core"
	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "task:t1", Key(core.KindTask, "t1"))
	assert.Equal(t, "code_chunk:c9", Entry{Kind: core.KindCodeChunk, ContentID: "c9"}.Key())
}

func TestEntry_Expired(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := Entry{CreatedAt: created, TTLSeconds: 60}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before ttl", created.Add(59 * time.Second), false},
		{"exactly at ttl", created.Add(60 * time.Second), false},
		{"after ttl", created.Add(60*time.Second + time.Nanosecond), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Expired(tt.at))
		})
	}

	assert.False(t, Entry{CreatedAt: created}.Expired(created.Add(1000*time.Hour)), "zero ttl never expires")
}

func TestEntry_SizeBytes(t *testing.T) {
	e := Entry{Vector: make([]float32, 384), Text: "hello"}
	assert.Equal(t, 384*4+5+200, e.SizeBytes())
}

func TestEntry_NeedsRegeneration(t *testing.T) {
	e := Entry{Vector: make([]float32, 3)}
	assert.False(t, e.NeedsRegeneration(3))
	assert.True(t, e.NeedsRegeneration(384))
}

func TestEntry_CloneIsDeep(t *testing.T) {
	e := Entry{Vector: []float32{1}, Tags: []string{"a"}}
	c := e.Clone()
	c.Vector[0] = 2
	c.Tags[0] = "b"
	assert.Equal(t, float32(1), e.Vector[0])
	assert.Equal(t, "a", e.Tags[0])
}
