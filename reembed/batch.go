package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/core"
)

// Sink receives recomputed vectors. text is the composed text the vector
// was computed from.
type Sink interface {
	SetVector(ctx context.Context, a *core.Artifact, vector []float32, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a *core.Artifact, vector []float32, text string) error

func (f SinkFunc) SetVector(ctx context.Context, a *core.Artifact, vector []float32, text string) error {
	return f(ctx, a, vector, text)
}

// BatchProcessor embeds one batch of artifacts and hands the vectors to a sink.
type BatchProcessor struct {
	sink           Sink
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

func NewBatchProcessor(sink Sink, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		sink:           sink,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the composed text of every artifact with retry, normalizes
// the vectors and stores them.
func (bp *BatchProcessor) Process(ctx context.Context, artifacts []*core.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	texts := make([]string, len(artifacts))
	for i, a := range artifacts {
		texts[i] = core.ComposeText(a)
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(artifacts) {
		return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
			core.ErrEncodingFailure, len(artifacts), len(embeddings))
	}

	for i, a := range artifacts {
		if err := bp.sink.SetVector(ctx, a, core.Normalize(embeddings[i]), texts[i]); err != nil {
			return fmt.Errorf("failed to store vector for %s: %w", a.ID, err)
		}
	}
	return nil
}
