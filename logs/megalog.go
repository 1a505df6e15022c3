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
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/tdz/core"
)

// MegaLogName is the file name of the creation log under the embed directory.
const MegaLogName = "embedding_mega_log"

// Record is one line of the mega log: a full snapshot of an artifact at
// creation time together with its embedding.
type Record struct {
	Timestamp  time.Time      `json:"timestamp"`
	ContentID  core.ID        `json:"content_id"`
	Kind       core.Kind      `json:"kind"`
	Project    string         `json:"project"`
	Text       string         `json:"text"`
	Tags       []string       `json:"tags"`
	Fields     map[string]any `json:"fields,omitempty"`
	Vector     []float32      `json:"embedding_vector"`
	Dimensions int            `json:"embedding_dimensions"`
}

// NewRecord snapshots a for the mega log. text is the embedded text.
func NewRecord(a *core.Artifact, text string, at time.Time) Record {
	r := Record{
		Timestamp:  at.UTC(),
		ContentID:  a.ID,
		Kind:       a.Kind,
		Project:    a.Project,
		Text:       text,
		Tags:       append([]string{}, a.Tags...),
		Vector:     a.Vector,
		Dimensions: len(a.Vector),
	}

	switch {
	case a.Task != nil:
		t := a.Task
		r.Fields = map[string]any{
			"action":        t.Action,
			"priority":      t.Priority.String(),
			"status":        t.Status.String(),
			"progress":      t.Progress,
			"dependencies":  t.Dependencies,
			"time_estimate": t.TimeEstimate,
		}
		if t.Assignee != nil {
			r.Fields["assignee"] = t.Assignee.String()
		}
	case a.Memory != nil:
		m := a.Memory
		r.Fields = map[string]any{
			"moment":     m.Moment,
			"meaning":    m.Meaning,
			"reason":     m.Reason,
			"importance": m.Importance.String(),
			"term":       m.Term.String(),
			"type":       m.Type.String(),
		}
	case a.Idea != nil:
		i := a.Idea
		r.Fields = map[string]any{
			"body":       i.Body,
			"share":      i.Share.String(),
			"importance": i.Importance.String(),
		}
	case a.Chunk != nil:
		c := a.Chunk
		r.Fields = map[string]any{
			"source":           c.Source,
			"level":            c.Level.String(),
			"start_line":       c.StartLine,
			"end_line":         c.EndLine,
			"estimated_tokens": c.EstimatedTokens,
			"dependencies":     c.Dependencies,
		}
	}
	return r
}

// MegaLog is the append-only creation log. It is safe for concurrent use.
type MegaLog struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// Option configures a log.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// OpenMegaLog prepares the mega log in dir, creating the directory if needed.
func OpenMegaLog(dir string, opts ...Option) (*MegaLog, error) {
	o := applyOptions(opts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("create directory", dir, err)
	}
	return &MegaLog{
		path:   filepath.Join(dir, MegaLogName),
		logger: o.logger.With("component", "mega-log"),
	}, nil
}

// Path returns the log file path.
func (l *MegaLog) Path() string {
	return l.path
}

// Append writes rec as one line. A vector with NaN or infinite components
// is dropped from the line; the rest of the record is kept.
func (l *MegaLog) Append(rec Record) error {
	if !core.IsFinite(rec.Vector) {
		l.logger.Warn("dropping non-finite vector from mega log record", "content_id", rec.ContentID)
		rec.Vector = nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.path, rec)
}

// ReadAll returns every well-formed record in write order.
func (l *MegaLog) ReadAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	records, skipped, err := readLines[Record](l.path, l.logger)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		l.logger.Debug("mega log read", "records", len(records), "skipped", skipped)
	}
	return records, nil
}
