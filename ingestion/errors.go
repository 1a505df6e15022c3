package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/tdz/core"
)

var (
	// ErrSinkRequired is returned when no artifact sink is provided.
	ErrSinkRequired = errors.New("artifact sink required")

	// ErrEmptySource is returned when a source contains no code.
	ErrEmptySource = fmt.Errorf("%w: source is empty", core.ErrInvalidArgument)

	// ErrMalformedChunk is returned for a chunk plan entry that cannot be parsed.
	ErrMalformedChunk = fmt.Errorf("%w: malformed chunk", core.ErrInvalidArgument)
)
