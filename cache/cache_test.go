package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/tdz/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func entry(id string, ttl int64) Entry {
	return Entry{
		Vector:     []float32{1, 0},
		Kind:       core.KindTask,
		ContentID:  core.ID(id),
		Text:       "text " + id,
		CreatedAt:  epoch,
		TTLSeconds: ttl,
	}
}

// implementations runs f against both cache shapes with a generous cap.
func implementations(t *testing.T, f func(t *testing.T, c Cache, clock *fakeClock)) {
	t.Run("flat", func(t *testing.T) {
		clock := &fakeClock{now: epoch}
		f(t, NewFlat(WithClock(clock.Now)), clock)
	})
	t.Run("lru", func(t *testing.T) {
		clock := &fakeClock{now: epoch}
		f(t, NewLRU(1<<20, WithClock(clock.Now)), clock)
	})
}

func TestCache_PutGetDelete(t *testing.T) {
	implementations(t, func(t *testing.T, c Cache, _ *fakeClock) {
		e := entry("t1", 0)
		c.Put(e.Key(), e)

		got, ok := c.Get("task:t1")
		require.True(t, ok)
		assert.Equal(t, e, got)
		assert.Equal(t, 1, c.Len())

		_, ok = c.Get("task:missing")
		assert.False(t, ok)

		s := c.Stats()
		assert.Equal(t, uint64(1), s.Hits)
		assert.Equal(t, uint64(1), s.Misses)
		assert.InDelta(t, 0.5, s.HitRate(), 1e-9)

		assert.True(t, c.Delete("task:t1"))
		assert.False(t, c.Delete("task:t1"))
		assert.Equal(t, 0, c.Len())
		assert.Equal(t, int64(0), c.Stats().Bytes)
	})
}

func TestCache_ReturnsCopies(t *testing.T) {
	implementations(t, func(t *testing.T, c Cache, _ *fakeClock) {
		e := entry("t1", 0)
		c.Put(e.Key(), e)
		e.Vector[0] = 42

		got, _ := c.Get("task:t1")
		assert.Equal(t, float32(1), got.Vector[0])
		got.Vector[0] = 7

		again, _ := c.Peek("task:t1")
		assert.Equal(t, float32(1), again.Vector[0])
	})
}

func TestCache_ExpiryOnReadAndSweep(t *testing.T) {
	implementations(t, func(t *testing.T, c Cache, clock *fakeClock) {
		short := entry("short", 10)
		long := entry("long", 1000)
		c.Put(short.Key(), short)
		c.Put(long.Key(), long)

		clock.Advance(11 * time.Second)

		_, ok := c.Get(short.Key())
		assert.False(t, ok, "expired entry is a miss")
		_, ok = c.Peek(short.Key())
		assert.True(t, ok, "expired entry is kept until the sweep")

		removed := c.CleanupExpired(clock.Now())
		assert.Equal(t, 1, removed)
		_, ok = c.Peek(short.Key())
		assert.False(t, ok)
		_, ok = c.Get(long.Key())
		assert.True(t, ok)
		assert.Equal(t, uint64(1), c.Stats().Expired)
	})
}

func TestCache_ReplaceAndClear(t *testing.T) {
	implementations(t, func(t *testing.T, c Cache, _ *fakeClock) {
		c.Put("task:old", entry("old", 0))

		c.Replace([]Entry{entry("a", 0), entry("b", 0)})
		assert.Equal(t, 2, c.Len())
		_, ok := c.Peek("task:old")
		assert.False(t, ok)
		assert.ElementsMatch(t, []string{"task:a", "task:b"}, c.Keys())
		assert.Equal(t, int64(2*entry("a", 0).SizeBytes()), c.Stats().Bytes)

		c.Clear()
		assert.Equal(t, 0, c.Len())
		assert.Empty(t, c.Entries())
		assert.Equal(t, int64(0), c.Stats().Bytes)
	})
}

func TestCache_ConcurrentAccess(t *testing.T) {
	implementations(t, func(t *testing.T, c Cache, _ *fakeClock) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					e := entry(fmt.Sprintf("%d-%d", i, j), 0)
					c.Put(e.Key(), e)
					c.Get(e.Key())
					_ = c.Entries()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 400, c.Len())
	})
}

func TestFlat_InsertionOrder(t *testing.T) {
	c := NewFlat()
	for _, id := range []string{"c", "a", "b"} {
		c.Put(Key(core.KindIdea, core.ID(id)), Entry{Kind: core.KindIdea, ContentID: core.ID(id)})
	}
	// replacing keeps the original position
	c.Put("idea:c", Entry{Kind: core.KindIdea, ContentID: "c", Text: "new"})

	assert.Equal(t, []string{"idea:c", "idea:a", "idea:b"}, c.Keys())
	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "new", entries[0].Text)
}

// sized returns an entry whose estimated size is exactly 600 bytes.
func sized(id string) Entry {
	return Entry{
		Vector:    make([]float32, 4),
		Kind:      core.KindTask,
		ContentID: core.ID(id),
		Text:      strings.Repeat("x", 600-16-entryOverhead),
	}
}

func TestLRU_EvictsByBytes(t *testing.T) {
	c := NewLRU(1024)
	for _, id := range []string{"1", "2", "3"} {
		e := sized(id)
		require.Equal(t, 600, e.SizeBytes())
		c.Put(e.Key(), e)
	}

	_, ok := c.Peek("task:1")
	assert.False(t, ok, "first entry evicted")
	assert.Equal(t, []string{"task:3", "task:2"}, c.Keys())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
	assert.Equal(t, int64(1200), c.Stats().Bytes)
}

func TestLRU_GetPromotes(t *testing.T) {
	c := NewLRU(1 << 20)
	for _, id := range []string{"1", "2", "3"} {
		c.Put(Key(core.KindTask, core.ID(id)), sized(id))
	}

	_, ok := c.Get("task:1")
	require.True(t, ok)
	assert.Equal(t, []string{"task:1", "task:3", "task:2"}, c.Keys())
	assert.Equal(t, 2, c.AccessCount("task:1"))
	assert.Equal(t, 1, c.AccessCount("task:2"))

	_, _ = c.Peek("task:2")
	assert.Equal(t, []string{"task:1", "task:3", "task:2"}, c.Keys(), "peek does not promote")
}

func TestLRU_ZeroCap(t *testing.T) {
	c := NewLRU(0)
	c.Put("task:1", sized("1"))
	c.Put("task:2", sized("2"))

	assert.Equal(t, 0, c.Len(), "an entry larger than the cap is not kept")
	assert.Equal(t, int64(0), c.Stats().Bytes)
}

func TestLRU_ReplaceExistingKey(t *testing.T) {
	c := NewLRU(1300)
	c.Put("task:1", sized("1"))
	c.Put("task:2", sized("2"))
	c.Put("task:1", sized("1"))

	assert.Equal(t, []string{"task:1", "task:2"}, c.Keys())
	assert.Equal(t, int64(1200), c.Stats().Bytes)
	assert.Equal(t, uint64(0), c.Stats().Evictions)
	assert.Equal(t, 2, c.AccessCount("task:1"))
}

func TestLRU_Megabytes(t *testing.T) {
	c := NewLRUMegabytes(1)
	assert.Equal(t, int64(1<<20), c.maxBytes)
}
