package logs

import (
	"fmt"

	"github.com/poiesic/tdz/core"
)

func ioError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", core.ErrStorageIO, op, path, err)
}

func serializationError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrSerialization, op, err)
}
