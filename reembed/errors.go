package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrSourceRequired is returned when no artifact source is provided.
	ErrSourceRequired = errors.New("artifact source required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrSinkRequired is returned when no vector sink is provided.
	ErrSinkRequired = errors.New("vector sink required")
)
