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

package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Backend selects the embedding implementation.
type Backend string

const (
	// BackendLocal runs a BERT sentence encoder in process.
	BackendLocal Backend = "local"
	// BackendRemote calls an OpenAI-compatible embeddings endpoint.
	BackendRemote Backend = "remote"
	// BackendMock produces deterministic hashed vectors. Intended for tests.
	BackendMock Backend = "mock"
)

// DefaultModel is the sentence encoder used when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// DefaultDimensions is the hidden size of DefaultModel.
const DefaultDimensions = 384

type Config struct {
	// Backend selects local, remote or mock embedding.
	Backend Backend

	// EmbeddingHost is the base URL for the remote embedding API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier. For the local backend this is
	// a model registry repository such as "sentence-transformers/all-MiniLM-L6-v2".
	EmbeddingModel string

	// Dimensions is the expected embedding size. The local backend replaces
	// it with the hidden size read from the model configuration.
	Dimensions int

	// Workers bounds concurrent sequence encoding in the local backend.
	// Zero means one worker per CPU.
	Workers int
}

type ConfigOption func(*Config)

func WithBackend(backend Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

func WithWorkers(n int) ConfigOption {
	return func(c *Config) {
		c.Workers = n
	}
}

func DefaultConfig() *Config {
	return &Config{
		Backend:        BackendLocal,
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: DefaultModel,
		Dimensions:     DefaultDimensions,
	}
}

func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// ParseBackend parses a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendLocal, BackendRemote, BackendMock:
		return b, nil
	}
	return "", fmt.Errorf("ai config: unknown backend %q", s)
}

func (c *Config) Normalize() {
	c.Backend = Backend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	// Ensure EmbeddingHost ends with /v1 for OpenAI-compatible APIs
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
}

func (c *Config) Validate() error {
	c.Normalize()

	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.Backend == BackendRemote && c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required for the remote backend")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be positive")
	}
	if c.Workers < 0 {
		return errors.New("ai config: Workers must not be negative")
	}
	return nil
}
