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

package logs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/tdz/core"
)

// VersionsDirName is the directory under embed holding one version file
// per content id.
const VersionsDirName = "versions"

// VersionRecord is one labeled embedding version of a piece of content.
type VersionRecord struct {
	VersionID    string    `json:"version_id"`
	VersionLabel string    `json:"version_label"`
	Timestamp    time.Time `json:"timestamp"`
	ContentID    core.ID   `json:"content_id"`
	Embedding    []float32 `json:"embedding"`
	Text         string    `json:"text_content"`
	Tags         []string  `json:"tags"`
}

// VersionLog stores per-content version histories, one JSON line per
// version. Timestamps within one content id are strictly increasing.
type VersionLog struct {
	mu     sync.Mutex
	dir    string
	last   map[core.ID]time.Time
	logger *slog.Logger
}

// OpenVersionLog prepares the version directory under embedDir.
func OpenVersionLog(embedDir string, opts ...Option) (*VersionLog, error) {
	o := applyOptions(opts)
	dir := filepath.Join(embedDir, VersionsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("create directory", dir, err)
	}
	return &VersionLog{
		dir:    dir,
		last:   make(map[core.ID]time.Time),
		logger: o.logger.With("component", "version-log"),
	}, nil
}

func (l *VersionLog) path(id core.ID) (string, error) {
	if err := core.ValidateID(id); err != nil {
		return "", err
	}
	if id == "." || id == ".." || filepath.Base(string(id)) != string(id) {
		return "", fmt.Errorf("%w: id %q is not a valid file name", core.ErrInvalidArgument, id)
	}
	return filepath.Join(l.dir, string(id)), nil
}

// Append records a new version. An empty VersionID is filled with a fresh
// UUID and a zero Timestamp with the current time. The stored record is
// returned.
func (l *VersionLog) Append(rec VersionRecord) (VersionRecord, error) {
	path, err := l.path(rec.ContentID)
	if err != nil {
		return VersionRecord{}, err
	}
	if !core.IsFinite(rec.Embedding) {
		return VersionRecord{}, fmt.Errorf("%w: embedding of %s has non-finite components", core.ErrInvalidArgument, rec.ContentID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.VersionID == "" {
		rec.VersionID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	last, ok := l.last[rec.ContentID]
	if !ok {
		history, _, err := readLines[VersionRecord](path, l.logger)
		if err != nil {
			return VersionRecord{}, err
		}
		if n := len(history); n > 0 {
			last = history[n-1].Timestamp
		}
	}
	if !rec.Timestamp.After(last) {
		rec.Timestamp = last.Add(time.Microsecond)
	}

	if err := appendLine(path, rec); err != nil {
		return VersionRecord{}, err
	}
	l.last[rec.ContentID] = rec.Timestamp
	l.logger.Debug("version recorded", "content_id", rec.ContentID, "version", rec.VersionID, "label", rec.VersionLabel)
	return rec, nil
}

// History returns every version of id in chronological order. Unknown ids
// have an empty history.
func (l *VersionLog) History(id core.ID) ([]VersionRecord, error) {
	path, err := l.path(id)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	records, _, err := readLines[VersionRecord](path, l.logger)
	return records, err
}
