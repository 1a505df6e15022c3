package logs

import (
	"bufio"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMegaLog_AppendAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "embed")
	l, err := OpenMegaLog(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, MegaLogName), l.Path())

	records, err := l.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, records)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	task := core.NewTask("Write documentation")
	task.ID = "t1"
	task.Project = "docs"
	task.Tags = []string{"docs"}
	task.Vector = []float32{0.6, 0.8}
	task.Task.Assignee = &core.Assignee{Kind: core.AssigneeHuman}

	idea := core.NewIdea("cache by hash")
	idea.ID = "i1"
	idea.Vector = []float32{1, 0}

	require.NoError(t, l.Append(NewRecord(task, "Write documentation", now)))
	require.NoError(t, l.Append(NewRecord(idea, "cache by hash", now.Add(time.Second))))

	// Torn write at the tail.
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp":"2025-03-01T12:00:02Z","content_id":"x`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err = l.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, core.ID("t1"), records[0].ContentID)
	assert.Equal(t, core.KindTask, records[0].Kind)
	assert.Equal(t, "docs", records[0].Project)
	assert.Equal(t, 2, records[0].Dimensions)
	assert.Equal(t, []float32{0.6, 0.8}, records[0].Vector)
	assert.Equal(t, "Write documentation", records[0].Fields["action"])
	assert.Equal(t, "human", records[0].Fields["assignee"])
	assert.True(t, now.Equal(records[0].Timestamp))

	assert.Equal(t, core.KindIdea, records[1].Kind)
	assert.Equal(t, "cache by hash", records[1].Fields["body"])
}

func TestNewRecord_Fields(t *testing.T) {
	mem := core.NewMemory("shipped", "it works", "demo")
	chunk := core.NewCodeChunk("func f() {}", core.LevelMethod)
	chunk.Chunk.Source = "f.go"

	tests := []struct {
		name string
		a    *core.Artifact
		keys []string
	}{
		{"memory", mem, []string{"moment", "meaning", "reason", "importance", "term", "type"}},
		{"code chunk", chunk, []string{"source", "level", "start_line", "end_line", "estimated_tokens", "dependencies"}},
		{"idea", core.NewIdea("x"), []string{"body", "share", "importance"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord(tt.a, "text", time.Now())
			for _, k := range tt.keys {
				assert.Contains(t, r.Fields, k)
			}
			assert.NotNil(t, r.Tags)
		})
	}
}

func TestVersionLog_History(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenVersionLog(dir)
	require.NoError(t, err)

	history, err := l.History("X")
	require.NoError(t, err)
	assert.Empty(t, history)

	v1, err := l.Append(VersionRecord{VersionLabel: "v1", ContentID: "X", Embedding: []float32{1, 0}, Text: "hello"})
	require.NoError(t, err)
	v2, err := l.Append(VersionRecord{VersionLabel: "v2", ContentID: "X", Embedding: []float32{0, 1}, Text: "hello world"})
	require.NoError(t, err)
	assert.NotEmpty(t, v1.VersionID)
	assert.NotEqual(t, v1.VersionID, v2.VersionID)

	history, err = l.History("X")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "hello world", history[1].Text)
	assert.Equal(t, "v1", history[0].VersionLabel)
	assert.True(t, history[1].Timestamp.After(history[0].Timestamp))

	_, err = os.Stat(filepath.Join(dir, VersionsDirName, "X"))
	assert.NoError(t, err)
}

func TestVersionLog_MonotonicTimestamps(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	l, err := OpenVersionLog(dir)
	require.NoError(t, err)
	first, err := l.Append(VersionRecord{ContentID: "X", Timestamp: at})
	require.NoError(t, err)
	second, err := l.Append(VersionRecord{ContentID: "X", Timestamp: at})
	require.NoError(t, err)
	assert.Equal(t, at.Add(time.Microsecond), second.Timestamp)
	assert.True(t, first.Timestamp.Equal(at))

	// A fresh log picks up the last timestamp from disk.
	reopened, err := OpenVersionLog(dir)
	require.NoError(t, err)
	third, err := reopened.Append(VersionRecord{ContentID: "X", Timestamp: at.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, at.Add(2*time.Microsecond), third.Timestamp)

	// Other ids are independent.
	other, err := reopened.Append(VersionRecord{ContentID: "Y", Timestamp: at})
	require.NoError(t, err)
	assert.True(t, other.Timestamp.Equal(at))
}

func TestVersionLog_InvalidIDs(t *testing.T) {
	l, err := OpenVersionLog(t.TempDir())
	require.NoError(t, err)

	for _, id := range []core.ID{"", ".", "..", "a/b", "a:b"} {
		t.Run(string(id), func(t *testing.T) {
			_, err := l.Append(VersionRecord{ContentID: id})
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidArgument))

			_, err = l.History(id)
			assert.True(t, errors.Is(err, core.ErrInvalidArgument))
		})
	}
}

func backupEntries(at time.Time) []cache.Entry {
	return []cache.Entry{
		{Kind: core.KindTask, ContentID: "t1", Vector: []float32{1, 0}, Text: "one", Tags: []string{"a"}, CreatedAt: at, TTLSeconds: 60},
		{Kind: core.KindIdea, ContentID: "i1", Vector: []float32{0, 1}, Text: "two", CreatedAt: at.Add(time.Second)},
		{Kind: core.KindMemory, ContentID: "m1", Vector: []float32{0.6, 0.8}, Text: "three", CreatedAt: at, Hash: 42},
	}
}

func TestBackupRestore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	at := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	entries := backupEntries(at)

	path, skipped, err := Backup(dir, entries, at)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, "embeddings_backup_20250607_080910", filepath.Base(path))

	again, _, err := Backup(dir, entries[:1], at)
	require.NoError(t, err)
	assert.Equal(t, "embeddings_backup_20250607_080910_1", filepath.Base(again))

	restored, err := Restore(path)
	require.NoError(t, err)
	require.Len(t, restored, 3)

	// Ordered by CreatedAt then key.
	assert.Equal(t, "memory:m1", restored[0].Key())
	assert.Equal(t, "task:t1", restored[1].Key())
	assert.Equal(t, "idea:i1", restored[2].Key())

	byKey := map[string]cache.Entry{}
	for _, e := range restored {
		byKey[e.Key()] = e
	}
	for _, e := range entries {
		got, ok := byKey[e.Key()]
		require.True(t, ok, e.Key())
		assert.Equal(t, e.Vector, got.Vector)
		assert.Equal(t, e.Text, got.Text)
		assert.Equal(t, e.TTLSeconds, got.TTLSeconds)
		assert.Equal(t, e.Hash, got.Hash)
		assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
	}

	list, err := ListBackups(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, filepath.Base(path), list[0].Name)
	assert.Equal(t, filepath.Base(again), list[1].Name)
	assert.Positive(t, list[0].Size)
}

func TestRestore_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Restore(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, core.ErrStorageIO))

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = Restore(bad)
	assert.True(t, errors.Is(err, core.ErrSerialization))
}

func TestListBackups_MissingDir(t *testing.T) {
	list, err := ListBackups(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExportFineTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "train.jsonl")
	at := time.Now()

	n, err := ExportFineTuning(path, backupEntries(at))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 3)

	first := lines[0]
	assert.Equal(t, "one", first["text"])
	assert.Len(t, first["embedding"], 2)
	meta := first["metadata"].(map[string]any)
	assert.Equal(t, "task", meta["content_type"])
	assert.Equal(t, "t1", meta["content_id"])
	assert.Equal(t, []any{"a"}, meta["tags"])

	assert.Equal(t, []any{}, lines[1]["metadata"].(map[string]any)["tags"])
}

func TestNonFiniteVectors(t *testing.T) {
	at := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	entries := backupEntries(at)
	entries = append(entries,
		cache.Entry{Kind: core.KindIdea, ContentID: "nan", Vector: []float32{float32(math.NaN()), 1}, Text: "bad", CreatedAt: at},
		cache.Entry{Kind: core.KindIdea, ContentID: "inf", Vector: []float32{float32(math.Inf(-1)), 0}, Text: "worse", CreatedAt: at},
	)

	t.Run("backup skips and reports", func(t *testing.T) {
		path, skipped, err := Backup(t.TempDir(), entries, at)
		require.NoError(t, err)
		assert.Equal(t, []string{"idea:nan", "idea:inf"}, skipped)

		restored, err := Restore(path)
		require.NoError(t, err)
		assert.Len(t, restored, 3)
	})

	t.Run("export leaves them out", func(t *testing.T) {
		n, err := ExportFineTuning(filepath.Join(t.TempDir(), "train.jsonl"), entries)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("mega log keeps the record without its vector", func(t *testing.T) {
		l, err := OpenMegaLog(t.TempDir())
		require.NoError(t, err)
		idea := core.NewIdea("diverged")
		idea.ID = "i1"
		idea.Vector = []float32{float32(math.NaN()), 0}
		require.NoError(t, l.Append(NewRecord(idea, "diverged", at)))

		ok := core.NewIdea("fine")
		ok.ID = "i2"
		ok.Vector = []float32{1, 0}
		require.NoError(t, l.Append(NewRecord(ok, "fine", at)))

		records, err := l.ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, core.ID("i1"), records[0].ContentID)
		assert.Nil(t, records[0].Vector)
		assert.Equal(t, 2, records[0].Dimensions)
		assert.Equal(t, []float32{1, 0}, records[1].Vector)
	})

	t.Run("version log rejects", func(t *testing.T) {
		l, err := OpenVersionLog(t.TempDir())
		require.NoError(t, err)
		_, err = l.Append(VersionRecord{ContentID: "i1", Embedding: []float32{float32(math.Inf(1))}})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		history, err := l.History("i1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	des, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, des, 1, "temp files must not be left behind")
}
