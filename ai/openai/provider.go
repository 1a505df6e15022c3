package openai

import (
	"log/slog"

	"github.com/poiesic/tdz/ai"
)

// Option configures the provider and embedder.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger. A nil logger falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

type Provider struct {
	config   *ai.Config
	embedder *Embedder
	logger   *slog.Logger
}

func NewProvider(config *ai.Config, opts ...Option) (*Provider, error) {
	o := applyOptions(opts)

	// Create embedder (using internal constructor for concrete type)
	embedder, err := newEmbedder(config, o.logger)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		embedder: embedder,
		logger:   o.logger.With("component", "openai-provider"),
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
