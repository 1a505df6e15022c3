package encoder

import (
	"errors"
	"fmt"

	"github.com/poiesic/tdz/core"
)

var (
	// ErrFileNotFound indicates the model repository has no such file.
	ErrFileNotFound = fmt.Errorf("%w: model file not found", core.ErrEncoderInit)

	// ErrLegacyWeights indicates the repository only ships pickled PyTorch weights.
	ErrLegacyWeights = fmt.Errorf("%w: pytorch_model.bin is not supported, model.safetensors required", core.ErrEncoderInit)

	// ErrInvalidModel indicates a malformed config, vocabulary or weights file.
	ErrInvalidModel = fmt.Errorf("%w: invalid model files", core.ErrEncoderInit)

	// ErrMissingTensor indicates a weight the architecture needs is absent.
	ErrMissingTensor = fmt.Errorf("%w: missing tensor", core.ErrEncoderInit)

	// ErrUnknownModel indicates a registry alias that has not been loaded.
	ErrUnknownModel = fmt.Errorf("%w: model alias not loaded", core.ErrNotFound)

	// ErrClosed indicates the encoder was used after Close.
	ErrClosed = fmt.Errorf("%w: encoder closed", core.ErrEncodingFailure)

	errEmptyRepo = errors.New("model repository name is empty")
)
