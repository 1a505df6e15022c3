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

package tdz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/tdz/analysis"
	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/logs"
)

// current returns the live embedding of id: the cache entry, or the stored
// vector when the cache has none.
func (s *Service) current(ctx context.Context, id core.ID) (cache.Entry, error) {
	if entry, ok := s.lookup(id); ok {
		return entry, nil
	}
	a, err := s.repo.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return cache.Entry{}, fmt.Errorf("%w: %s", ErrNotEmbedded, id)
	}
	if err != nil {
		return cache.Entry{}, err
	}
	if len(a.Vector) == 0 {
		return cache.Entry{}, fmt.Errorf("%w: %s", ErrNotEmbedded, id)
	}
	return s.entryFor(a, core.ComposeText(a), a.Vector), nil
}

// CreateVersion snapshots the current embedding and text of id under label.
func (s *Service) CreateVersion(ctx context.Context, id core.ID, label string) (logs.VersionRecord, error) {
	entry, err := s.current(ctx, id)
	if err != nil {
		return logs.VersionRecord{}, err
	}
	rec, err := s.versions.Append(logs.VersionRecord{
		VersionLabel: label,
		Timestamp:    s.now(),
		ContentID:    id,
		Embedding:    entry.Vector,
		Text:         entry.Text,
		Tags:         entry.Tags,
	})
	if err != nil {
		return logs.VersionRecord{}, err
	}
	s.logger.Info("version created", "id", id, "label", label, "version", rec.VersionID)
	return rec, nil
}

// History returns the versions of id in creation order.
func (s *Service) History(_ context.Context, id core.ID) ([]logs.VersionRecord, error) {
	return s.versions.History(id)
}

// TrackDrift embeds text and compares it with the current embedding of id.
// Each call adds a snapshot to the in-memory drift history of id, which the
// returned report carries in full.
func (s *Service) TrackDrift(ctx context.Context, id core.ID, text string) (analysis.DriftReport, error) {
	original, err := s.current(ctx, id)
	if err != nil {
		return analysis.DriftReport{}, err
	}
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return analysis.DriftReport{}, err
	}
	report := analysis.MeasureDrift(id, original.Vector, vec, text, s.now())

	s.driftMu.Lock()
	s.drift[id] = append(s.drift[id], report.History...)
	report.History = slices.Clone(s.drift[id])
	s.driftMu.Unlock()

	if report.SignificantDrift {
		s.logger.Info("significant drift", "id", id, "drift_percentage", report.DriftPercentage)
	}
	return report, nil
}

// DriftHistory returns the drift snapshots recorded for id.
func (s *Service) DriftHistory(id core.ID) []analysis.DriftSnapshot {
	s.driftMu.Lock()
	defer s.driftMu.Unlock()
	return slices.Clone(s.drift[id])
}
