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

package core

import "errors"

// Error kinds shared by every layer. Package-level sentinels elsewhere wrap
// one of these so callers can classify failures with errors.Is.
var (
	// ErrNotFound indicates an artifact or cache entry with the given id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates an out-of-range value, malformed id or unknown enum string.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEncoderInit indicates encoder artifacts could not be acquired or loaded.
	ErrEncoderInit = errors.New("encoder initialization failed")

	// ErrEncodingFailure indicates tokenization or the forward pass failed for an input.
	ErrEncodingFailure = errors.New("encoding failed")

	// ErrStorageIO indicates a filesystem or database read/write failure.
	ErrStorageIO = errors.New("storage i/o failed")

	// ErrSerialization indicates a persisted record could not be encoded or parsed.
	ErrSerialization = errors.New("serialization failed")

	// ErrValidation indicates an internal invariant was violated.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a modification was rejected because of existing state.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrEmptyID indicates an artifact id is empty after assignment.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrInvalidProgress indicates task progress outside 0..100.
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")

	// ErrPayloadMismatch indicates the payload does not match the artifact kind.
	ErrPayloadMismatch = errors.New("payload does not match kind")

	// ErrDimensionMismatch indicates a vector length differs from the active dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotNormalized indicates a vector whose norm is not within tolerance of 1.
	ErrNotNormalized = errors.New("vector is not unit length")

	// ErrDependencyCycle indicates a dependency update would introduce a cycle.
	ErrDependencyCycle = errors.New("dependency cycle")
)
