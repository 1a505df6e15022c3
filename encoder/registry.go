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

package encoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/core"
)

// LoaderFunc builds an embedder for a model name.
type LoaderFunc func(ctx context.Context, modelName string) (ai.Embedder, error)

// HubLoader returns a LoaderFunc that loads local encoders through hub.
func HubLoader(hub *Hub, opts ...Option) LoaderFunc {
	return func(ctx context.Context, modelName string) (ai.Embedder, error) {
		e, err := Load(ctx, hub, modelName, opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

type slot struct {
	model    string
	embedder ai.Embedder
}

// Registry holds named embedders. The first registered alias becomes the
// default until SetDefault changes it.
type Registry struct {
	mu     sync.RWMutex
	slots  map[string]slot
	def    string
	loader LoaderFunc
	logger *slog.Logger
}

// NewRegistry returns an empty registry that loads models with loader.
func NewRegistry(loader LoaderFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		slots:  make(map[string]slot),
		loader: loader,
		logger: logger.With("component", "model-registry"),
	}
}

// Load builds modelName and stores it under alias, replacing and closing
// any previous embedder with that alias. Loading happens outside the lock.
func (r *Registry) Load(ctx context.Context, alias, modelName string) (ai.Embedder, error) {
	if alias == "" {
		return nil, fmt.Errorf("%w: empty model alias", core.ErrInvalidArgument)
	}
	if r.loader == nil {
		return nil, fmt.Errorf("%w: registry has no loader", core.ErrEncoderInit)
	}
	e, err := r.loader(ctx, modelName)
	if err != nil {
		return nil, err
	}
	if err := r.Register(alias, modelName, e); err != nil {
		closeEmbedder(e)
		return nil, err
	}
	r.logger.Info("model loaded", "alias", alias, "model", modelName, "dimensions", e.Dimensions())
	return e, nil
}

// Register stores an already-built embedder under alias. Replacing the
// default alias requires the same dimensionality, as SetDefault does.
func (r *Registry) Register(alias, modelName string, e ai.Embedder) error {
	if alias == "" {
		return fmt.Errorf("%w: empty model alias", core.ErrInvalidArgument)
	}
	r.mu.Lock()
	prev, had := r.slots[alias]
	if had && alias == r.def && prev.embedder.Dimensions() != e.Dimensions() {
		r.mu.Unlock()
		return dimensionConflict(alias, e.Dimensions(), prev.embedder.Dimensions())
	}
	r.slots[alias] = slot{model: modelName, embedder: e}
	if r.def == "" {
		r.def = alias
	}
	r.mu.Unlock()

	if had && prev.embedder != e {
		closeEmbedder(prev.embedder)
	}
	return nil
}

// Get returns the embedder registered under alias.
func (r *Registry) Get(alias string) (ai.Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, alias)
	}
	return s.embedder, nil
}

// Default returns the default embedder and its alias.
func (r *Registry) Default() (ai.Embedder, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[r.def]
	if !ok {
		return nil, "", fmt.Errorf("%w: no default model", ErrUnknownModel)
	}
	return s.embedder, r.def, nil
}

// SetDefault makes alias the default. Its dimensionality must match the
// current default so that stored vectors stay comparable.
func (r *Registry) SetDefault(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.slots[alias]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, alias)
	}
	if cur, ok := r.slots[r.def]; ok && cur.embedder.Dimensions() != next.embedder.Dimensions() {
		return dimensionConflict(alias, next.embedder.Dimensions(), cur.embedder.Dimensions())
	}
	r.def = alias
	return nil
}

// ModelName returns the model identifier behind alias.
func (r *Registry) ModelName(alias string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[alias].model
}

// Aliases returns the registered aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.slots))
	for a := range r.slots {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Close closes every registered embedder that implements io.Closer.
func (r *Registry) Close() error {
	r.mu.Lock()
	slots := r.slots
	r.slots = make(map[string]slot)
	r.def = ""
	r.mu.Unlock()

	for _, s := range slots {
		closeEmbedder(s.embedder)
	}
	return nil
}

func dimensionConflict(alias string, got, want int) error {
	return fmt.Errorf("%w: %w: %s has %d dimensions, default has %d", core.ErrConflict,
		core.ErrDimensionMismatch, alias, got, want)
}

func closeEmbedder(e ai.Embedder) {
	if c, ok := e.(io.Closer); ok {
		_ = c.Close()
	}
}
