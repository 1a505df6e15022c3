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

package storage

import (
	"fmt"

	"github.com/poiesic/tdz/core"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = fmt.Errorf("record %w", core.ErrNotFound)

	// ErrDuplicateKey indicates a duplicate key violation.
	ErrDuplicateKey = fmt.Errorf("duplicate key: %w", core.ErrConflict)

	// ErrTransactionFailed indicates that a transaction failed.
	ErrTransactionFailed = fmt.Errorf("transaction failed: %w", core.ErrStorageIO)

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = fmt.Errorf("storage is closed: %w", core.ErrStorageIO)

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = fmt.Errorf("invalid query parameters: %w", core.ErrInvalidArgument)

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = fmt.Errorf("record %w", core.ErrSerialization)

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = fmt.Errorf("truncated data: %w", core.ErrSerialization)

	// ErrUnknownVersion indicates a record written by an unknown codec version.
	ErrUnknownVersion = fmt.Errorf("unknown record version: %w", core.ErrSerialization)
)
