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

package search

import (
	"errors"
	"fmt"

	"github.com/poiesic/tdz/core"
)

var (
	// ErrCacheRequired is returned when a cache is not provided.
	ErrCacheRequired = errors.New("cache required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrTaskLookupRequired is returned when a task filter needs payload
	// fields but the engine has no way to load tasks.
	ErrTaskLookupRequired = errors.New("task lookup required")

	ErrEmptyQuery   = fmt.Errorf("%w: empty query", core.ErrInvalidArgument)
	ErrNoQueries    = fmt.Errorf("%w: no queries", core.ErrInvalidArgument)
	ErrEmptyBasedOn = fmt.Errorf("%w: recommendation needs at least one item", core.ErrInvalidArgument)

	// ErrNotInCache is returned when a content id has no cache entry.
	ErrNotInCache = fmt.Errorf("%w: content not in cache", core.ErrNotFound)
)
