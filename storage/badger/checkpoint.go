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

package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/storage"
)

// CheckpointRepository stores the resume position of long-running jobs
// such as reembedding and source ingestion, one record per job type.
type CheckpointRepository struct {
	backend *Backend
	now     func() time.Time
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a CheckpointRepository. A nil clock
// means time.Now.
func NewCheckpointRepository(backend *Backend, now func() time.Time) *CheckpointRepository {
	if now == nil {
		now = time.Now
	}
	return &CheckpointRepository{backend: backend, now: now}
}

// SaveCheckpoint stamps UpdatedAt and overwrites the job's record.
func (r *CheckpointRepository) SaveCheckpoint(_ context.Context, checkpoint *core.Checkpoint) error {
	if checkpoint.ProcessorType == "" {
		return fmt.Errorf("%w: checkpoint without processor type", storage.ErrInvalidQuery)
	}
	checkpoint.UpdatedAt = r.now().UTC().Truncate(time.Microsecond)
	value := storage.MarshalCheckpoint(checkpoint)
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeCheckpointKey(checkpoint.ProcessorType), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadCheckpoint returns nil, nil when the job has no record.
func (r *CheckpointRepository) LoadCheckpoint(_ context.Context, processorType string) (*core.Checkpoint, error) {
	var checkpoint *core.Checkpoint
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(processorType))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			checkpoint, err = storage.UnmarshalCheckpoint(val)
			return err
		})
	}, false)
	return checkpoint, err
}

// DeleteCheckpoint forgets a job's position. Deleting a missing record
// is not an error.
func (r *CheckpointRepository) DeleteCheckpoint(_ context.Context, processorType string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCheckpointKey(processorType)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
