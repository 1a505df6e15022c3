package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRepository(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	at := time.Date(2025, 6, 1, 9, 30, 0, 123456789, time.UTC)
	repo := NewCheckpointRepository(backend, func() time.Time { return at })

	loaded, err := repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	cp := &core.Checkpoint{ProcessorType: "reembed", LastID: "t42", Processed: 42}
	require.NoError(t, repo.SaveCheckpoint(ctx, cp))
	assert.Equal(t, at.Truncate(time.Microsecond), cp.UpdatedAt)

	loaded, err = repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, core.ID("t42"), loaded.LastID)
	assert.Equal(t, 42, loaded.Processed)
	assert.True(t, cp.UpdatedAt.Equal(loaded.UpdatedAt))

	other, err := repo.LoadCheckpoint(ctx, "ingest:main.go")
	require.NoError(t, err)
	assert.Nil(t, other, "records are per job type")

	require.NoError(t, repo.DeleteCheckpoint(ctx, "reembed"))
	require.NoError(t, repo.DeleteCheckpoint(ctx, "reembed"))
	loaded, err = repo.LoadCheckpoint(ctx, "reembed")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	err = repo.SaveCheckpoint(ctx, &core.Checkpoint{})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
