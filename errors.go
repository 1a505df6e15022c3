package tdz

import (
	"fmt"

	"github.com/poiesic/tdz/core"
)

var (
	// ErrClusteringDisabled is returned by clustering when enable_clustering is off.
	ErrClusteringDisabled = fmt.Errorf("%w: clustering is disabled", core.ErrInvalidArgument)

	// ErrNotEmbedded indicates content has neither a cache entry nor a stored vector.
	ErrNotEmbedded = fmt.Errorf("%w: content has no embedding", core.ErrNotFound)
)
