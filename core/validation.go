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

import (
	"fmt"
	"math"
	"slices"
)

// ValidateArtifact validates an Artifact according to domain rules.
//
// Validation rules:
//   - ID must be usable as a key
//   - Kind must be known and its payload set
//   - Task progress must be within 0..100
//   - Tags must be unique
//   - An artifact may not depend on itself
//
// NOT validated here:
//   - Vector (checked against the active dimensionality by ValidateVector)
//   - Dependency cycles (require the whole graph, checked by the store)
func ValidateArtifact(a *Artifact) error {
	if a == nil {
		return fmt.Errorf("%w: artifact is nil", ErrInvalidArgument)
	}
	if err := ValidateID(a.ID); err != nil {
		return err
	}
	if err := validatePayload(a); err != nil {
		return err
	}
	if a.Kind == KindTask && (a.Task.Progress < 0 || a.Task.Progress > 100) {
		return fmt.Errorf("%w: %w: %d", ErrInvalidArgument, ErrInvalidProgress, a.Task.Progress)
	}
	if a.Kind == KindMemory && a.Memory.Type == MemoryEmotional && a.Memory.Emotion != "" &&
		!slices.Contains(CoreEmotions, a.Memory.Emotion) {
		return fmt.Errorf("%w: unknown emotion %q", ErrInvalidArgument, a.Memory.Emotion)
	}
	if len(NormalizeTags(a.Tags)) != len(a.Tags) {
		return fmt.Errorf("%w: tags must be unique and non-empty", ErrInvalidArgument)
	}
	if slices.Contains(a.Dependencies(), a.ID) {
		return fmt.Errorf("%w: %w: %s depends on itself", ErrInvalidArgument, ErrDependencyCycle, a.ID)
	}
	return nil
}

func validatePayload(a *Artifact) error {
	set := 0
	for _, p := range []bool{a.Task != nil, a.Memory != nil, a.Idea != nil, a.Chunk != nil} {
		if p {
			set++
		}
	}
	var ok bool
	switch a.Kind {
	case KindTask:
		ok = a.Task != nil
	case KindMemory:
		ok = a.Memory != nil
	case KindIdea:
		ok = a.Idea != nil
	case KindCodeChunk:
		ok = a.Chunk != nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidArgument, int(a.Kind))
	}
	if !ok || set != 1 {
		return fmt.Errorf("%w: %w: %s", ErrInvalidArgument, ErrPayloadMismatch, a.Kind)
	}
	return nil
}

// ValidateVector checks that v has dims components, finite values and unit norm.
func ValidateVector(v []float32, dims int) error {
	if len(v) != dims {
		return fmt.Errorf("%w: %w: got %d, want %d", ErrValidation, ErrDimensionMismatch, len(v), dims)
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: vector contains non-finite values", ErrValidation)
		}
	}
	if !IsUnit(v) {
		return fmt.Errorf("%w: %w: norm %f", ErrValidation, ErrNotNormalized, Norm(v))
	}
	return nil
}
