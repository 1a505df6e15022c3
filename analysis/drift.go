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

package analysis

import (
	"time"

	"github.com/poiesic/tdz/core"
)

// SignificantDrift is the drift percentage above which a change is flagged.
const SignificantDrift float32 = 20

const driftSampleRunes = 200

// DriftSnapshot is one drift measurement.
type DriftSnapshot struct {
	Timestamp            time.Time `json:"timestamp"`
	SimilarityToOriginal float32   `json:"similarity_to_original"`
	TextSample           string    `json:"text_sample"`
}

// DriftReport compares a content id's current vector to its original.
type DriftReport struct {
	ContentID                   core.ID         `json:"content_id"`
	CurrentSimilarityToOriginal float32         `json:"current_similarity_to_original"`
	DriftPercentage             float32         `json:"drift_percentage"`
	SignificantDrift            bool            `json:"significant_drift"`
	History                     []DriftSnapshot `json:"history"`
}

// MeasureDrift compares current to original. The report's history holds
// only the new snapshot; callers that keep history append to it.
func MeasureDrift(id core.ID, original, current []float32, text string, at time.Time) DriftReport {
	sim := core.Cosine(original, current)
	pct := (1 - sim) * 100
	return DriftReport{
		ContentID:                   id,
		CurrentSimilarityToOriginal: sim,
		DriftPercentage:             pct,
		SignificantDrift:            pct > SignificantDrift,
		History: []DriftSnapshot{{
			Timestamp:            at,
			SimilarityToOriginal: sim,
			TextSample:           core.Truncate(text, driftSampleRunes),
		}},
	}
}
