package search

import "github.com/poiesic/tdz/cache"

// Operation names a kind of search for monitors and metrics.
type Operation string

const (
	OpSemantic   Operation = "semantic"
	OpTasks      Operation = "tasks"
	OpHybrid     Operation = "hybrid"
	OpMultiQuery Operation = "multi_query"
	OpSimilarTo  Operation = "similar_to"
	OpRecommend  Operation = "recommend"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(op Operation, query string)
	AfterQueryEmbedding(vectors [][]float32)
	Skipped(entry cache.Entry, err error)
	Candidate(result Result, accepted bool)
	Finish(results []Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Operation, _ string) {}
func (n *noopMonitor) AfterQueryEmbedding(_ [][]float32) {}
func (n *noopMonitor) Skipped(_ cache.Entry, _ error) {}
func (n *noopMonitor) Candidate(_ Result, _ bool) {}
func (n *noopMonitor) Finish(_ []Result) {}

// CountingMonitor tallies what a search looked at.
type CountingMonitor struct {
	noopMonitor
	Scanned  int
	Accepted int
	Skips    int
}

func (c *CountingMonitor) Skipped(_ cache.Entry, _ error) { c.Skips++ }

func (c *CountingMonitor) Candidate(_ Result, accepted bool) {
	c.Scanned++
	if accepted {
		c.Accepted++
	}
}
