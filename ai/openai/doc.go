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

// Package openai implements the remote embedding backend.
//
// It uses the langchaingo client to talk to OpenAI or any OpenAI-compatible
// service (Ollama, LocalAI, vLLM). Returned vectors are checked against the
// configured dimensionality and L2 normalized.
//
// # Usage
//
//	config := ai.NewConfig(
//		ai.WithBackend(ai.BackendRemote),
//		ai.WithEmbeddingHost("http://localhost:11434"), // /v1 added automatically
//		ai.WithEmbeddingModel("nomic-embed-text"),
//		ai.WithDimensions(768),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "sample text")
package openai
