// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/tdz/core"
	"github.com/poiesic/tdz/reembed"
	"golang.org/x/sync/errgroup"
)

// DefaultEndpoint is the public model registry.
const DefaultEndpoint = "https://huggingface.co"

const (
	configFile      = "config.json"
	tokenizerFile   = "tokenizer.json"
	vocabFile       = "vocab.txt"
	safetensorsFile = "model.safetensors"
	pytorchFile     = "pytorch_model.bin"
)

// Hub downloads model files into a local directory and serves them from
// there on later calls. Files are written to a temporary name and renamed
// into place, so a partially downloaded file is never mistaken for a
// complete one.
type Hub struct {
	endpoint  string
	token     string
	revision  string
	dir       string
	client    *http.Client
	attempts  int
	baseDelay time.Duration
	logger    *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithEndpoint overrides the registry base URL.
func WithEndpoint(endpoint string) HubOption {
	return func(h *Hub) {
		h.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// WithRevision selects a branch, tag or commit. Default "main".
func WithRevision(revision string) HubOption {
	return func(h *Hub) {
		h.revision = revision
	}
}

func WithHTTPClient(client *http.Client) HubOption {
	return func(h *Hub) {
		h.client = client
	}
}

// WithRetry sets the download attempt count and the first backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) HubOption {
	return func(h *Hub) {
		h.attempts = attempts
		h.baseDelay = baseDelay
	}
}

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger == nil {
			logger = slog.Default()
		}
		h.logger = logger
	}
}

// NewHub returns a Hub caching files under dir. The HF_ENDPOINT and
// HF_TOKEN environment variables set the default endpoint and token.
func NewHub(dir string, opts ...HubOption) *Hub {
	endpoint := os.Getenv("HF_ENDPOINT")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	h := &Hub{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		token:     os.Getenv("HF_TOKEN"),
		revision:  "main",
		dir:       dir,
		client:    &http.Client{Timeout: 10 * time.Minute},
		attempts:  3,
		baseDelay: 500 * time.Millisecond,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "model-hub")
	return h
}

// ModelFiles are the local paths of a model's files. Exactly one of
// Tokenizer and Vocab is set.
type ModelFiles struct {
	Config    string
	Tokenizer string
	Vocab     string
	Weights   string
}

// LocalDir returns the directory holding files of repo.
func (h *Hub) LocalDir(repo string) string {
	return filepath.Join(h.dir, strings.ReplaceAll(repo, "/", "--"))
}

// Fetch returns the local path of file in repo, downloading it if needed.
// A missing remote file yields ErrFileNotFound.
func (h *Hub) Fetch(ctx context.Context, repo, file string) (string, error) {
	if repo == "" {
		return "", fmt.Errorf("%w: %w", core.ErrEncoderInit, errEmptyRepo)
	}
	local := filepath.Join(h.LocalDir(repo), file)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrEncoderInit, err)
	}

	url := fmt.Sprintf("%s/%s/resolve/%s/%s", h.endpoint, repo, h.revision, file)
	h.logger.Info("downloading model file", "repo", repo, "file", file)

	err := reembed.RetryWithBackoff(ctx, func() error {
		return h.download(ctx, url, local)
	}, h.attempts, h.baseDelay)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s/%s", err, repo, file)
		}
		h.logger.Error("model download failed", "repo", repo, "file", file, "err", err)
		return "", fmt.Errorf("%w: download %s: %w", core.ErrEncoderInit, file, err)
	}
	return local, nil
}

func (h *Hub) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return reembed.Permanent(err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return reembed.Permanent(ErrFileNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return reembed.Permanent(fmt.Errorf("access denied (%s)", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return reembed.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// remoteExists reports whether the registry serves file, without downloading it.
func (h *Hub) remoteExists(ctx context.Context, repo, file string) bool {
	url := fmt.Sprintf("%s/%s/resolve/%s/%s", h.endpoint, repo, h.revision, file)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// FetchModel acquires everything needed to build an Encoder. A repo naming
// an existing local directory is used as is, without network access.
func (h *Hub) FetchModel(ctx context.Context, repo string) (ModelFiles, error) {
	if info, err := os.Stat(repo); err == nil && info.IsDir() {
		return localModelFiles(repo)
	}

	var files ModelFiles
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		files.Config, err = h.Fetch(gctx, repo, configFile)
		return err
	})
	g.Go(func() error {
		path, err := h.Fetch(gctx, repo, tokenizerFile)
		if errors.Is(err, ErrFileNotFound) {
			files.Vocab, err = h.Fetch(gctx, repo, vocabFile)
			return err
		}
		files.Tokenizer = path
		return err
	})
	g.Go(func() error {
		path, err := h.Fetch(gctx, repo, safetensorsFile)
		if errors.Is(err, ErrFileNotFound) {
			if h.remoteExists(gctx, repo, pytorchFile) {
				return fmt.Errorf("%w: %s", ErrLegacyWeights, repo)
			}
		}
		files.Weights = path
		return err
	})
	if err := g.Wait(); err != nil {
		return ModelFiles{}, err
	}
	return files, nil
}

func localModelFiles(dir string) (ModelFiles, error) {
	exists := func(name string) (string, bool) {
		p := filepath.Join(dir, name)
		_, err := os.Stat(p)
		return p, err == nil
	}

	var files ModelFiles
	var ok bool
	if files.Config, ok = exists(configFile); !ok {
		return ModelFiles{}, fmt.Errorf("%w: %s", ErrFileNotFound, files.Config)
	}
	if p, ok := exists(tokenizerFile); ok {
		files.Tokenizer = p
	} else if p, ok := exists(vocabFile); ok {
		files.Vocab = p
	} else {
		return ModelFiles{}, fmt.Errorf("%w: %s or %s in %s", ErrFileNotFound, tokenizerFile, vocabFile, dir)
	}
	if files.Weights, ok = exists(safetensorsFile); !ok {
		if _, legacy := exists(pytorchFile); legacy {
			return ModelFiles{}, fmt.Errorf("%w: %s", ErrLegacyWeights, dir)
		}
		return ModelFiles{}, fmt.Errorf("%w: %s", ErrFileNotFound, files.Weights)
	}
	return files, nil
}
