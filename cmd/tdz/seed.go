package main

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/poiesic/tdz"
	"github.com/poiesic/tdz/core"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// demoIdeas seeds an empty knowledge base when no source file is given.
var demoIdeas = []string{
	"Cache embeddings by content hash so unchanged text is never re-encoded",
	"Expose a hybrid search that blends keyword hits with semantic similarity",
	"Split large source files at function boundaries before embedding",
	"Back up the vector cache nightly and keep a week of history",
	"Track embedding drift when a task description is rewritten",
	"Cluster open tasks to find duplicated work across projects",
	"Suggest tags for new ideas from their nearest neighbours",
	"Warn when a vector is not unit length after normalization",
	"Profile search latency per query to spot slow embedding calls",
	"Recommend related memories when a task is marked done",
	"Keep the project container buckets in sync with status changes",
	"Run expiry cleanup on a schedule instead of on every read",
	"Retry remote embedding calls with exponential backoff",
	"Resume interrupted reembedding from the last checkpoint",
	"Compare two embedding models on the same sample texts",
	"Export cached entries as training examples for fine tuning",
	"Plan code chunks with explicit dependencies between them",
	"Show which vector dimensions drive a search match",
	"Limit cache memory with an LRU keyed on entry size",
	"Reload similarity thresholds when the config file changes",
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load ideas from a file, one per line, or a built-in demo set",
		Flags: []cli.Flag{
			projectFlag,
			tagFlag,
			&cli.StringFlag{Name: "src", Usage: "File of seed data"},
			&cli.IntFlag{Name: "batch-size", Usage: "Ideas embedded concurrently", Value: 5},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			var source iter.Seq[string]
			if name := c.String("src"); name != "" {
				lines, err := linesFromFile(name)
				if err != nil {
					return err
				}
				source = lines
			} else {
				source = linesFromSlice(demoIdeas)
			}
			n, err := seedBatched(c.Context, svc, source, c.String("project"), c.StringSlice("tag"), c.Int("batch-size"))
			fmt.Fprintf(c.App.Writer, "seeded %d ideas\n", n)
			return err
		}),
	}
}

// linesFromFile returns an iterator over the non-blank lines of a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}, nil
}

func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// seedBatched stores each line as an idea, embedding up to batchSize at a
// time. It returns how many ideas were stored.
func seedBatched(ctx context.Context, svc *tdz.Service, source iter.Seq[string], project string, tags []string, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch-size must be greater than 0")
	}
	stored := 0
	batch := make([]string, 0, batchSize)

	flush := func() error {
		g, gctx := errgroup.WithContext(ctx)
		for _, line := range batch {
			g.Go(func() error {
				_, err := svc.CreateIdea(gctx, project, core.Idea{Body: line}, tags...)
				return err
			})
		}
		err := g.Wait()
		if err == nil {
			stored += len(batch)
		}
		batch = batch[:0]
		return err
	}

	for line := range source {
		batch = append(batch, line)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return stored, err
			}
		}
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return stored, err
		}
	}
	return stored, nil
}
