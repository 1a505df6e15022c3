package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/tdz/ai"
	"github.com/poiesic/tdz/core"
)

// DefaultMaxLength caps tokenized sequences, [CLS] and [SEP] included.
const DefaultMaxLength = 512

// Encoder is the local sentence embedding backend. Sequences of a batch are
// encoded in parallel on a worker pool. Encoder is safe for concurrent use.
type Encoder struct {
	name      string
	tokenizer *Tokenizer
	model     *Model
	maxLen    int
	pool      *ants.Pool
	logger    *slog.Logger
	observe   func(texts int, elapsed time.Duration)
	closed    atomic.Bool
}

var _ ai.Embedder = (*Encoder)(nil)

type options struct {
	logger  *slog.Logger
	workers int
	maxLen  int
	observe func(int, time.Duration)
}

// Option configures an Encoder.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWorkers bounds concurrent sequence encoding. Default runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMaxLength lowers the truncation length below the model's position limit.
func WithMaxLength(n int) Option {
	return func(o *options) {
		o.maxLen = n
	}
}

// WithObserver registers a callback invoked after every successful batch.
func WithObserver(fn func(texts int, elapsed time.Duration)) Option {
	return func(o *options) {
		o.observe = fn
	}
}

// Load fetches repo through hub and builds an Encoder from its files.
func Load(ctx context.Context, hub *Hub, repo string, opts ...Option) (*Encoder, error) {
	files, err := hub.FetchModel(ctx, repo)
	if err != nil {
		return nil, err
	}
	return NewFromFiles(repo, files, opts...)
}

// NewFromFiles builds an Encoder from already-local model files.
func NewFromFiles(name string, files ModelFiles, opts ...Option) (*Encoder, error) {
	cfg, err := LoadBertConfig(files.Config)
	if err != nil {
		return nil, err
	}

	var tok *Tokenizer
	if files.Tokenizer != "" {
		tok, err = LoadTokenizerJSON(files.Tokenizer)
	} else {
		tok, err = LoadVocab(files.Vocab)
	}
	if err != nil {
		return nil, err
	}

	tensors, err := LoadSafetensors(files.Weights)
	if err != nil {
		return nil, err
	}
	model, err := NewModel(cfg, tensors)
	if err != nil {
		return nil, err
	}
	return New(name, tok, model, opts...)
}

// New wires a tokenizer and model into an Encoder.
func New(name string, tok *Tokenizer, model *Model, opts ...Option) (*Encoder, error) {
	o := options{logger: slog.Default(), workers: runtime.NumCPU(), maxLen: DefaultMaxLength}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.workers < 1 {
		o.workers = 1
	}
	maxLen := min(o.maxLen, model.MaxPositions())
	if maxLen < 3 {
		return nil, fmt.Errorf("%w: max length %d leaves no room for tokens", core.ErrEncoderInit, maxLen)
	}

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEncoderInit, err)
	}

	e := &Encoder{
		name:      name,
		tokenizer: tok,
		model:     model,
		maxLen:    maxLen,
		pool:      pool,
		observe:   o.observe,
		logger:    o.logger.With("component", "encoder", "model", name),
	}
	e.logger.Info("encoder ready", "dimensions", model.HiddenSize(), "max_length", maxLen, "workers", o.workers)
	return e, nil
}

// Name returns the model identifier the encoder was loaded from.
func (e *Encoder) Name() string {
	return e.name
}

func (e *Encoder) Dimensions() int {
	return e.model.HiddenSize()
}

func (e *Encoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts encodes texts in order. Cancellation is checked before each
// sequence starts; sequences already running finish.
func (e *Encoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	start := time.Now()
	e.logger.Debug("encoding batch", "count", len(texts))

	encs := e.tokenizer.EncodeBatch(texts, e.maxLen)
	out := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}
	for i := range encs {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			vec, err := e.model.Embed(encs[i].IDs, encs[i].AttentionMask)
			if err != nil {
				fail(err)
				return
			}
			out[i] = vec
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("%w: %w", ErrClosed, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		e.logger.Error("failed to encode batch", "count", len(texts), "err", firstErr)
		return nil, firstErr
	}
	if e.observe != nil {
		e.observe(len(texts), time.Since(start))
	}
	return out, nil
}

// Close releases the worker pool.
func (e *Encoder) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.pool.Release()
	}
	return nil
}
