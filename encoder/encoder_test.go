package encoder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/tdz/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestEncoder(t *testing.T, opts ...Option) *Encoder {
	t.Helper()
	dir := writeTestModel(t, true)
	hub := NewHub(t.TempDir())
	e, err := Load(context.Background(), hub, dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEncoder_EmbedTexts(t *testing.T) {
	e := loadTestEncoder(t, WithWorkers(2))
	ctx := context.Background()
	assert.Equal(t, testHidden, e.Dimensions())

	texts := []string{"fix the login bug", "the quick brown fox", "hello world"}
	vecs, err := e.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, testHidden)
		assert.True(t, core.IsUnit(v), "norm %f", core.Norm(v))
	}

	// batched and single results agree despite padding
	for i, text := range texts {
		single, err := e.EmbedText(ctx, text)
		require.NoError(t, err)
		for d := range single {
			assert.InDelta(t, vecs[i][d], single[d], 1e-5)
		}
	}
}

func TestEncoder_Deterministic(t *testing.T) {
	e := loadTestEncoder(t)
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "login bug")
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "login bug")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncoder_EmptyBatch(t *testing.T) {
	e := loadTestEncoder(t)
	vecs, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEncoder_TruncatesLongInput(t *testing.T) {
	e := loadTestEncoder(t, WithMaxLength(6))
	long := "the quick brown fox the quick brown fox the quick brown fox the quick brown fox"

	v, err := e.EmbedText(context.Background(), long)
	require.NoError(t, err)
	assert.True(t, core.IsUnit(v))
}

func TestEncoder_Canceled(t *testing.T) {
	e := loadTestEncoder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedTexts(ctx, []string{"fox"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncoder_Closed(t *testing.T) {
	e := loadTestEncoder(t)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.EmbedText(context.Background(), "fox")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, core.ErrEncodingFailure)
}

func TestEncoder_Observer(t *testing.T) {
	var texts atomic.Int64
	e := loadTestEncoder(t, WithObserver(func(n int, _ time.Duration) {
		texts.Add(int64(n))
	}))

	_, err := e.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), texts.Load())
}

func TestNewFromFiles_InvalidConfig(t *testing.T) {
	dir := writeTestModel(t, true)
	files, err := NewHub(t.TempDir()).FetchModel(context.Background(), dir)
	require.NoError(t, err)
	files.Config = files.Tokenizer // not a BERT config

	_, err = NewFromFiles("broken", files)
	assert.ErrorIs(t, err, core.ErrEncoderInit)
}
