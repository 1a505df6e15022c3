package ingestion

import (
	"slices"
	"strings"

	"github.com/poiesic/tdz/core"
)

// Piece is a contiguous run of source lines.
type Piece struct {
	Code      string
	StartLine int // 1-based, inclusive
	EndLine   int
	Tokens    int
}

type paragraph struct {
	lines []string
	start int
}

// Split cuts source into pieces of at most level.MaxTokens tokens. Breaks
// fall on blank lines where possible, then on line boundaries. A single
// line over budget becomes its own piece. Blank-only regions are dropped.
func Split(source string, level core.ChunkLevel, counter TokenCounter) []Piece {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	budget := level.MaxTokens()
	if budget <= 0 {
		budget = core.LevelMethod.MaxTokens()
	}

	var pieces []Piece
	var cur []string
	curStart := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		code := strings.Join(cur, "\n")
		pieces = append(pieces, Piece{
			Code:      code,
			StartLine: curStart,
			EndLine:   curStart + len(cur) - 1,
			Tokens:    counter.Count(code),
		})
		cur = nil
	}
	fits := func(extra []string) bool {
		return counter.Count(strings.Join(append(slices.Clone(cur), extra...), "\n")) <= budget
	}

	for _, para := range paragraphs(source) {
		if len(cur) > 0 {
			// Keep the original blank lines so line numbers stay exact.
			gap := make([]string, para.start-(curStart+len(cur)))
			joined := append(gap, para.lines...)
			if fits(joined) {
				cur = append(cur, joined...)
				continue
			}
			flush()
		}

		for i, line := range para.lines {
			if len(cur) > 0 && !fits([]string{line}) {
				flush()
			}
			if len(cur) == 0 {
				curStart = para.start + i
			}
			cur = append(cur, line)
		}
	}
	flush()
	return pieces
}

func paragraphs(source string) []paragraph {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	var out []paragraph
	var cur *paragraph
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			cur = nil
			continue
		}
		if cur == nil {
			out = append(out, paragraph{start: i + 1})
			cur = &out[len(out)-1]
		}
		cur.lines = append(cur.lines, line)
	}
	return out
}
