package logs

import (
	"bytes"
	"encoding/json"

	"github.com/poiesic/tdz/cache"
	"github.com/poiesic/tdz/core"
)

// TrainingExample is one line of a fine-tuning export.
type TrainingExample struct {
	Text      string          `json:"text"`
	Embedding []float32       `json:"embedding"`
	Metadata  TrainingDetails `json:"metadata"`
}

// TrainingDetails carries the provenance of a training example.
type TrainingDetails struct {
	Kind      core.Kind `json:"content_type"`
	Tags      []string  `json:"tags"`
	ContentID core.ID   `json:"content_id"`
}

// ExportFineTuning writes entries as JSON lines to path and returns the
// number of lines written. Entries whose vectors hold NaN or infinite
// components are left out.
func ExportFineTuning(path string, entries []cache.Entry) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	written := 0
	for _, e := range entries {
		if !core.IsFinite(e.Vector) {
			continue
		}
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		ex := TrainingExample{
			Text:      e.Text,
			Embedding: e.Vector,
			Metadata:  TrainingDetails{Kind: e.Kind, Tags: tags, ContentID: e.ContentID},
		}
		if err := enc.Encode(ex); err != nil {
			return 0, serializationError("marshal training example", err)
		}
		written++
	}
	if err := WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return 0, err
	}
	return written, nil
}
