package ingestion

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/poiesic/tdz/core"
)

var chunkTag = regexp.MustCompile(`(?s)<chunk>(.*?)</chunk>`)

// PlannedChunk is one entry of a chunk plan:
//
//	<chunk>id; level; description; dep1, dep2; code</chunk>
//
// The dependency list and code are optional.
type PlannedChunk struct {
	ID           core.ID
	Level        core.ChunkLevel
	Description  string
	Dependencies []core.ID
	Code         string
}

// ParseChunk parses the body of a single chunk tag.
func ParseChunk(body string) (PlannedChunk, error) {
	parts := strings.SplitN(body, ";", 5)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 {
		return PlannedChunk{}, fmt.Errorf("%w: need at least id; level; description", ErrMalformedChunk)
	}

	pc := PlannedChunk{ID: core.ID(parts[0]), Description: parts[2]}
	if err := core.ValidateID(pc.ID); err != nil {
		return PlannedChunk{}, fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	level, err := core.ParseChunkLevel(parts[1])
	if err != nil {
		return PlannedChunk{}, fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	pc.Level = level

	if len(parts) > 3 {
		for dep := range strings.SplitSeq(parts[3], ",") {
			if dep = strings.TrimSpace(dep); dep != "" {
				pc.Dependencies = append(pc.Dependencies, core.ID(dep))
			}
		}
	}
	if len(parts) > 4 {
		pc.Code = parts[4]
	}
	return pc, nil
}

// ParseChunks extracts every chunk tag from message. Entries that fail to
// parse are skipped; their errors are joined into the returned error, which
// may be non-nil alongside a non-empty result.
func ParseChunks(message string) ([]PlannedChunk, error) {
	var out []PlannedChunk
	var errs []error
	for _, m := range chunkTag.FindAllStringSubmatch(message, -1) {
		pc, err := ParseChunk(m[1])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, pc)
	}
	return out, errors.Join(errs...)
}

// Artifact builds the code-chunk artifact for a planned chunk. A chunk
// without code carries its description as placeholder code.
func (pc PlannedChunk) Artifact(project string) *core.Artifact {
	code := pc.Code
	if code == "" {
		code = pc.Description
	}
	a := core.NewCodeChunk(code, pc.Level)
	a.ID = pc.ID
	a.Project = project
	a.Chunk.Dependencies = pc.Dependencies
	return a
}
