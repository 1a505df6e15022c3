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

// Package storage provides the storage abstraction layer for tdz.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic, plus the binary codecs used to persist records.
//
// # Key Layout
//
// The badger implementation keeps everything in one database:
//
//	projects/<name>              project record
//	project_tasks/<md5(name)>    container with the four status buckets
//	artifact_index/<id>          project owning an artifact
//	checkpoints/<processor>      resume position of a background job
//
// # Architecture
//
//   - ArtifactRepository: project-partitioned artifacts in four status buckets
//   - ProjectRepository: project records and their artifact id lists
//   - CheckpointRepository: resumable progress for background processors
//
// Repository.Compact reclaims space left by overwritten containers.
//
// Records are encoded with MUS primitives (varints, length-prefixed strings,
// raw float32) behind a one-byte version header.
//
// # Thread Safety
//
// All repository implementations must be thread-safe. Mutations of a single
// project container are serialized; readers work on snapshots.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
