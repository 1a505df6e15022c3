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

// Package ai provides the embedding abstraction used by tdz.
//
// Every artifact, cache entry and search query is turned into a fixed-length
// unit vector by an Embedder. The service depends only on the interfaces in
// this package; concrete backends live in sub-packages:
//
//   - encoder: in-process BERT sentence encoder (the local backend)
//   - ai/openai: OpenAI-compatible embeddings endpoint (the remote backend)
//   - ai/mock: deterministic hashed vectors for tests
//
// # Vector Contract
//
// Embedders return vectors of exactly Dimensions() components with Euclidean
// norm 1. Remote responses are normalized before they are returned so that
// cosine similarity reduces to a dot product everywhere downstream.
//
// # Configuration
//
// Config uses functional options:
//
//	cfg := ai.NewConfig(
//		ai.WithBackend(ai.BackendRemote),
//		ai.WithEmbeddingHost("http://localhost:11434"),
//		ai.WithEmbeddingModel("nomic-embed-text"),
//		ai.WithDimensions(768),
//	)
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Validate also normalizes the host so that it ends with /v1.
package ai
